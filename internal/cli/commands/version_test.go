package commands

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewVersionCommand(t *testing.T) {
	tests := []struct {
		name    string
		info    BuildInfo
		want    []string
		wantNot []string
	}{
		{
			name:    "release",
			info:    BuildInfo{Version: "1.2.3", Commit: "abc1234", Date: "2026-01-02"},
			want:    []string{"leaprun v1.2.3\n", "commit:   abc1234 (2026-01-02)\n", "adapters: "},
			wantNot: nil,
		},
		{
			name:    "dev build hides unknown commit",
			info:    BuildInfo{Version: "dev", Commit: "unknown", Date: "unknown"},
			want:    []string{"leaprun vdev\n"},
			wantNot: []string{"commit:"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := NewVersionCommand(tt.info)
			var buf bytes.Buffer
			cmd.SetOut(&buf)
			cmd.SetArgs([]string{})

			require.NoError(t, cmd.Execute())
			for _, w := range tt.want {
				assert.Contains(t, buf.String(), w)
			}
			for _, w := range tt.wantNot {
				assert.NotContains(t, buf.String(), w)
			}
		})
	}
}

func TestVersionCommand_RejectsArgs(t *testing.T) {
	cmd := NewVersionCommand(BuildInfo{Version: "1.0.0"})
	cmd.SetArgs([]string{"extra"})
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	assert.Error(t, cmd.Execute())
}
