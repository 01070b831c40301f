package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leaprun/pkg/adapter"
)

// BuildInfo is stamped into the binary at build time.
type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

// NewVersionCommand creates the version command.
func NewVersionCommand(info BuildInfo) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display the leaprun version, build metadata and the compiled-in adapters.`,
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			w := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(w, "leaprun v%s\n", info.Version)
			if info.Commit != "" && info.Commit != "unknown" {
				_, _ = fmt.Fprintf(w, "commit:   %s (%s)\n", info.Commit, info.Date)
			}
			adapters := adapter.ListAdapters()
			if len(adapters) == 0 {
				adapters = []string{"none"}
			}
			_, _ = fmt.Fprintf(w, "adapters: %s\n", strings.Join(adapters, ", "))
		},
	}
}
