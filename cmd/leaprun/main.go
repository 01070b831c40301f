// Package main is the entry point of the leaprun CLI.
package main

import (
	"os"

	"github.com/leapstack-labs/leaprun/internal/cli"

	// Register adapters
	_ "github.com/leapstack-labs/leaprun/pkg/adapters/duckdb"
	_ "github.com/leapstack-labs/leaprun/pkg/adapters/postgres"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
