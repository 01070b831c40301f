// Package starlark provides Starlark execution context and builtins for template rendering.
package starlark

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/leapstack-labs/leaprun/pkg/core"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// TargetInfo is the "target" global: the adapter type and its defaults.
// Credentials never reach templates.
type TargetInfo struct {
	Type     string
	Schema   string
	Database string
}

// ThisInfo is the "this" global: the node being compiled.
type ThisInfo struct {
	Name   string
	Schema string
}

// Relation returns the qualified relation name, e.g. "analytics.orders".
func (t *ThisInfo) Relation() string {
	if t.Schema == "" {
		return t.Name
	}
	return t.Schema + "." + t.Name
}

func (t *TargetInfo) ToStarlark() starlark.Value {
	return starlarkstruct.FromStringDict(starlark.String("target"), starlark.StringDict{
		"type":     starlark.String(t.Type),
		"schema":   starlark.String(t.Schema),
		"database": starlark.String(t.Database),
	})
}

func (t *ThisInfo) ToStarlark() starlark.Value {
	return starlarkstruct.FromStringDict(starlark.String("this"), starlark.StringDict{
		"name":     starlark.String(t.Name),
		"schema":   starlark.String(t.Schema),
		"relation": starlark.String(t.Relation()),
	})
}

// TargetInfoFromConfig returns nil for a nil target.
func TargetInfoFromConfig(t *core.TargetConfig) *TargetInfo {
	if t == nil {
		return nil
	}
	return &TargetInfo{Type: t.Type, Schema: t.Schema, Database: t.Database}
}

// ThisInfoFromNode exposes a node's name and schema to templates.
func ThisInfoFromNode(n *core.Node) *ThisInfo {
	if n == nil {
		return nil
	}
	return &ThisInfo{Name: n.Name, Schema: n.Schema}
}

// GoToStarlark converts config values and fetched cells to Starlark.
// Maps become dicts with sorted keys so iteration order is stable
// across runs. Timestamps become RFC 3339 strings.
func GoToStarlark(v any) (starlark.Value, error) {
	if sv, ok := scalarToStarlark(v); ok {
		return sv, nil
	}

	switch val := v.(type) {
	case []string:
		items := make([]starlark.Value, 0, len(val))
		for _, s := range val {
			items = append(items, starlark.String(s))
		}
		return starlark.NewList(items), nil
	case []any:
		items := make([]starlark.Value, 0, len(val))
		for i, item := range val {
			sv, err := GoToStarlark(item)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			items = append(items, sv)
		}
		return starlark.NewList(items), nil
	case map[string]any:
		dict := starlark.NewDict(len(val))
		for _, k := range slices.Sorted(maps.Keys(val)) {
			sv, err := GoToStarlark(val[k])
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
			if err := dict.SetKey(starlark.String(k), sv); err != nil {
				return nil, err
			}
		}
		return dict, nil
	}
	return nil, fmt.Errorf("cannot convert %T to a starlark value", v)
}

func scalarToStarlark(v any) (starlark.Value, bool) {
	switch val := v.(type) {
	case nil:
		return starlark.None, true
	case string:
		return starlark.String(val), true
	case []byte:
		return starlark.String(val), true
	case bool:
		return starlark.Bool(val), true
	case int:
		return starlark.MakeInt(val), true
	case int8:
		return starlark.MakeInt(int(val)), true
	case int16:
		return starlark.MakeInt(int(val)), true
	case int32:
		return starlark.MakeInt(int(val)), true
	case int64:
		return starlark.MakeInt64(val), true
	case uint8:
		return starlark.MakeUint(uint(val)), true
	case uint16:
		return starlark.MakeUint(uint(val)), true
	case uint32:
		return starlark.MakeUint(uint(val)), true
	case uint64:
		return starlark.MakeUint64(val), true
	case float32:
		return starlark.Float(val), true
	case float64:
		return starlark.Float(val), true
	case time.Time:
		return starlark.String(val.Format(time.RFC3339Nano)), true
	}
	return nil, false
}

// ToGo converts a Starlark value to plain Go values: nil, string, bool,
// int64, float64, []any or map[string]any. Integers beyond int64 and
// values of any other type come back as their Starlark string form.
func ToGo(v starlark.Value) (any, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.String:
		return string(val), nil
	case starlark.Bool:
		return bool(val), nil
	case starlark.Float:
		return float64(val), nil
	case starlark.Int:
		if i, ok := val.Int64(); ok {
			return i, nil
		}
		return val.String(), nil
	case starlark.Indexable:
		return sequenceToGo(val)
	case *starlark.Dict:
		out := make(map[string]any, val.Len())
		for _, kv := range val.Items() {
			key, ok := kv[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("dict keys must be strings, got %s", kv[0].Type())
			}
			gv, err := ToGo(kv[1])
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", string(key), err)
			}
			out[string(key)] = gv
		}
		return out, nil
	}
	return v.String(), nil
}

// sequenceToGo handles lists and tuples.
func sequenceToGo(seq starlark.Indexable) ([]any, error) {
	out := make([]any, seq.Len())
	for i := range out {
		gv, err := ToGo(seq.Index(i))
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out[i] = gv
	}
	return out, nil
}
