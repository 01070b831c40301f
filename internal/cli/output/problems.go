package output

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/leapstack-labs/leaprun/pkg/core"
)

// RenderProblems prints a table of errored nodes and failed tests.
// Nothing is printed when there are none or in JSON mode.
func (r *Renderer) RenderProblems(problems []core.RunOutcome) {
	if len(problems) == 0 || r.EffectiveMode() == ModeJSON {
		return
	}

	errored, failed := 0, 0
	for _, o := range problems {
		if o.Errored() {
			errored++
		} else {
			failed++
		}
	}

	s := r.Styles()
	r.Println()
	r.Println(s.Error.Render(fmt.Sprintf("Completed with %s and %s:", plural(errored, "error"), plural(failed, "failure"))))

	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Node", "State", "Message"})
	for _, o := range problems {
		msg := o.Error
		if o.Failed() {
			msg = fmt.Sprintf("Got %s, expected 0", plural(int(o.Failures), "result"))
		}
		t.AppendRow(table.Row{o.Node.UniqueID, string(o.State()), firstLine(msg)})
	}
	t.Render()
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
