package adapter

import (
	"strconv"
	"strings"
)

// StatementStatus derives a statement tag from the SQL text, mirroring the
// command tags Postgres reports: "CREATE TABLE", "INSERT 0 5", "DELETE 3".
// rowsAffected < 0 means the driver did not report a count.
func StatementStatus(sql string, rowsAffected int64) string {
	words := leadingKeywords(sql, 6)
	if len(words) == 0 {
		return "OK"
	}

	withCount := func(tag string) string {
		if rowsAffected < 0 {
			return tag
		}
		return tag + " " + strconv.FormatInt(rowsAffected, 10)
	}

	switch words[0] {
	case "CREATE", "DROP", "ALTER":
		return words[0] + " " + objectKeyword(words[1:])
	case "INSERT":
		if rowsAffected < 0 {
			return "INSERT"
		}
		return "INSERT 0 " + strconv.FormatInt(rowsAffected, 10)
	case "UPDATE", "DELETE", "MERGE", "SELECT", "COPY":
		return withCount(words[0])
	case "WITH":
		// a CTE prefix hides the real verb
		for _, w := range leadingKeywords(sql, 256)[1:] {
			switch w {
			case "INSERT", "UPDATE", "DELETE":
				return StatementStatus(w, rowsAffected)
			}
		}
		return withCount("SELECT")
	case "BEGIN", "START":
		return "BEGIN"
	default:
		return words[0]
	}
}

// objectKeyword finds the object kind after CREATE/DROP/ALTER, skipping
// modifiers such as OR REPLACE, TEMP and UNIQUE.
func objectKeyword(words []string) string {
	for _, w := range words {
		switch w {
		case "OR", "REPLACE", "TEMP", "TEMPORARY", "UNIQUE", "MATERIALIZED", "UNLOGGED":
			continue
		default:
			return w
		}
	}
	return ""
}

// leadingKeywords returns up to n upper-cased leading words, skipping
// comments, punctuation and literals.
func leadingKeywords(sql string, n int) []string {
	s := stripLeadingComments(sql)
	var words []string
	for _, f := range strings.Fields(s) {
		f = strings.TrimLeft(f, "(")
		if f == "" {
			continue
		}
		end := strings.IndexFunc(f, func(r rune) bool {
			return !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z')
		})
		if end == 0 {
			continue
		}
		if end > 0 {
			f = f[:end]
		}
		words = append(words, strings.ToUpper(f))
		if len(words) == n {
			break
		}
	}
	return words
}

func stripLeadingComments(sql string) string {
	s := strings.TrimSpace(sql)
	for {
		switch {
		case strings.HasPrefix(s, "--"):
			idx := strings.IndexByte(s, '\n')
			if idx < 0 {
				return ""
			}
			s = strings.TrimSpace(s[idx+1:])
		case strings.HasPrefix(s, "/*"):
			idx := strings.Index(s, "*/")
			if idx < 0 {
				return ""
			}
			s = strings.TrimSpace(s[idx+2:])
		default:
			return s
		}
	}
}
