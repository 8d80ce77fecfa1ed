package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/callboard"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of callboard",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "callboard version %s\n", strings.TrimSpace(callboard.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
