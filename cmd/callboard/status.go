package main

import (
	"github.com/aretw0/callboard/internal/cli"
	"github.com/aretw0/callboard/internal/presentation/tui"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Play a scripted session against the simulated gateway",
	Long: `Dials out, takes an incoming call, swaps and transfers on the configured lines,
printing the line board after every step and the call log at the end.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		out := cmd.OutOrStdout()
		return cli.RunDemo(cmd.Context(), app, out, tui.NewBoard(out))
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
