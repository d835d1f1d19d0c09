// uptimectl talks to the uptime monitor API.
//
// Usage:
//
//	uptimectl domain add example.com --label Shop
//	uptimectl domain list
//	uptimectl event down 3
//	uptimectl device register <token> --platform ios
//	uptimectl analytics domain 3 --days 30
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	apiBase string
	apiKey  string
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "uptimectl",
		Short:         "Manage domains and query the uptime monitor",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&apiBase, "api", envOr("API_BASE", "http://localhost:8080"), "API base URL")
	root.PersistentFlags().StringVar(&apiKey, "key", os.Getenv("UPTIME_API_KEY"), "API key sent as X-API-Key")

	root.AddCommand(domainCmd())
	root.AddCommand(eventCmd())
	root.AddCommand(deviceCmd())
	root.AddCommand(analyticsCmd())
	return root
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
