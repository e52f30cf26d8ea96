package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/eas-attest/attest/internal/cli"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "attest",
		Short: "Hardware-in-the-loop firmware test rig",
		Long: `attest finds the embedded boards and logic analyzers attached to this host,
works out which board is wired to which instrument and runs firmware test
jobs on the resulting test units.`,
		SilenceUsage: true,
	}
	cli.AddGlobalFlags(rootCmd)

	rootCmd.AddCommand(cli.InitCmd())
	rootCmd.AddCommand(cli.HelloCmd())
	rootCmd.AddCommand(cli.DiscoverCmd())
	rootCmd.AddCommand(cli.DevicesCmd())
	rootCmd.AddCommand(cli.SetNameCmd())
	rootCmd.AddCommand(cli.RunCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
