package starlark

import (
	"maps"
	"slices"

	"github.com/leapstack-labs/leaprun/pkg/core"
	"go.starlark.net/starlark"
)

// NodeConfigDict builds the "config" global of a node. Unset fields are
// left out so templates can write config.get("x", default); extra
// frontmatter keys never override the typed fields.
func NodeConfigDict(cfg core.NodeConfig) starlark.Value {
	dict := starlark.NewDict(8 + len(cfg.Extra))
	set := func(key string, v starlark.Value) {
		_ = dict.SetKey(starlark.String(key), v)
	}

	for _, f := range []struct{ key, value string }{
		{"materialized", cfg.Materialized},
		{"unique_key", cfg.UniqueKey},
		{"source_schema", cfg.SourceSchema},
		{"source_table", cfg.SourceTable},
		{"target_schema", cfg.TargetSchema},
		{"target_table", cfg.TargetTable},
		{"updated_at", cfg.UpdatedAt},
	} {
		if f.value != "" {
			set(f.key, starlark.String(f.value))
		}
	}
	set("enabled", starlark.Bool(cfg.Enabled))
	if len(cfg.Tags) > 0 {
		tags, _ := GoToStarlark(cfg.Tags)
		set("tags", tags)
	}

	for _, k := range slices.Sorted(maps.Keys(cfg.Extra)) {
		if _, found, _ := dict.Get(starlark.String(k)); found {
			continue
		}
		// unconvertible values stay invisible to templates
		if v, err := GoToStarlark(cfg.Extra[k]); err == nil {
			set(k, v)
		}
	}
	return dict
}

// Predeclared returns the config, env, target and this globals.
// Target and this are omitted when nil.
func Predeclared(config starlark.Value, env string, target *TargetInfo, this *ThisInfo) starlark.StringDict {
	if config == nil {
		config = starlark.NewDict(0)
	}
	globals := starlark.StringDict{
		"config": config,
		"env":    starlark.String(env),
	}
	if target != nil {
		globals["target"] = target.ToStarlark()
	}
	if this != nil {
		globals["this"] = this.ToStarlark()
	}
	return globals
}
