package loader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractFrontmatter(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantYAML bool
		wantSQL  string
		check    func(t *testing.T, cfg *FrontmatterConfig)
	}{
		{
			name:    "no frontmatter",
			content: "select 1",
			wantSQL: "select 1",
		},
		{
			name: "full config",
			content: `/*---
name: customers
materialized: incremental
unique_key: id
schema: marts
tags: [daily, core]
tests:
  - unique: [id]
    not_null: [id, email]
  - accepted_values:
      column: status
      values: [active, churned]
meta:
  owner: data-team
---*/
select * from {{ ref('stg_customers') }}`,
			wantYAML: true,
			wantSQL:  "select * from {{ ref('stg_customers') }}",
			check: func(t *testing.T, cfg *FrontmatterConfig) {
				assert.Equal(t, "customers", cfg.Name)
				assert.Equal(t, "incremental", cfg.Materialized)
				assert.Equal(t, "id", cfg.UniqueKey)
				assert.Equal(t, "marts", cfg.Schema)
				assert.Equal(t, []string{"daily", "core"}, cfg.Tags)
				require.Len(t, cfg.Tests, 2)
				assert.Equal(t, []string{"id", "email"}, cfg.Tests[0].NotNull)
				require.NotNil(t, cfg.Tests[1].AcceptedValues)
				assert.Equal(t, "status", cfg.Tests[1].AcceptedValues.Column)
				assert.Equal(t, "data-team", cfg.Meta["owner"])
				assert.True(t, cfg.IsEnabled())
			},
		},
		{
			name:     "ephemeral and disabled",
			content:  "/*---\nmaterialized: ephemeral\nenabled: false\n---*/\nselect 2",
			wantYAML: true,
			wantSQL:  "select 2",
			check: func(t *testing.T, cfg *FrontmatterConfig) {
				assert.Equal(t, "ephemeral", cfg.Materialized)
				assert.False(t, cfg.IsEnabled())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := ExtractFrontmatter(tt.content)
			require.NoError(t, err)
			assert.Equal(t, tt.wantYAML, res.HasYAML)
			assert.Equal(t, tt.wantSQL, res.SQL)
			if tt.check != nil {
				tt.check(t, res.Config)
			}
		})
	}
}

func TestExtractFrontmatter_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		target  any
		wantMsg string
	}{
		{"unknown field", "/*---\nowner: me\n---*/\nselect 1", new(*UnknownFieldError), `unknown field "owner"`},
		{"bad materialization", "/*---\nmaterialized: snapshot\n---*/\nselect 1", new(*FrontmatterParseError), "invalid materialized value"},
		{"invalid yaml", "/*---\nname: [unclosed\n---*/\nselect 1", new(*FrontmatterParseError), "invalid YAML"},
		{"empty accepted values", "/*---\ntests:\n  - accepted_values:\n      column: status\n---*/\nselect 1", new(*FrontmatterParseError), "accepted_values"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ExtractFrontmatter(tt.content)
			require.Error(t, err)
			assert.ErrorAs(t, err, tt.target)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &FrontmatterConfig{}
	cfg.ApplyDefaults("orders.sql", "analytics")
	assert.Equal(t, "orders", cfg.Name)
	assert.Equal(t, "table", cfg.Materialized)
	assert.Equal(t, "analytics", cfg.Schema)

	cfg = &FrontmatterConfig{Name: "x", Materialized: "view", Schema: "s"}
	cfg.ApplyDefaults("orders.sql", "analytics")
	assert.Equal(t, "x", cfg.Name)
	assert.Equal(t, "view", cfg.Materialized)
	assert.Equal(t, "s", cfg.Schema)
}
