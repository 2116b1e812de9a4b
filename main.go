package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stokaro/vigil/cmd/diff"
	"github.com/stokaro/vigil/cmd/drift"
	"github.com/stokaro/vigil/cmd/serve"
	"github.com/stokaro/vigil/cmd/versions"
)

var rootCmd = &cobra.Command{
	Use:   "vigil",
	Short: "Schema version tracking, drift detection and gated migrations for PostgreSQL",
	Long: `Vigil tracks named schema versions, detects drift between the live
database and the recorded baseline, suggests advisory migration SQL, and
executes migrations behind a configurable safety policy with dry runs,
backups and rollback support.`,
}

func main() {
	rootCmd.AddCommand(serve.NewServeCommand())
	rootCmd.AddCommand(versions.NewVersionsCommand())
	rootCmd.AddCommand(drift.NewDriftCommand())
	rootCmd.AddCommand(diff.NewDiffCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
