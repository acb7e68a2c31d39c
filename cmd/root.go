package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "integrations",
	Short: "Payments and MCP plugin integrations service",
	Long:  "An integrations service for payment orders, refunds and gateway webhooks, plus a registry of MCP plugins.",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
