package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// set at build time through -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = "dev"
)

func versionString() string {
	return fmt.Sprintf("purifier-exporter %s (commit %s)", version, commit)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "print the exporter's version and the commit it was built from",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), versionString())
	},
}
