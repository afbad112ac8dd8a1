package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "flowgate",
	Short: "Consent-gated flow request broker",
	Long: `flowgate brokers flow requests between destinations and data sources.
Destinations create flow requests, subjects approve them through the consent
authority, and approved channels are announced on the control topic.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(destinationCmd)
	rootCmd.AddCommand(clientCmd)
}
