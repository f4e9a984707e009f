package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// buildRootCmd constructs the Cobra command tree over the daemon HTTP API.
func buildRootCmd() *cobra.Command {
	addr := envDefault("VIZBRIDGED_ADDR", "http://127.0.0.1:8080")
	root := &cobra.Command{
		Use:           "vizctl",
		Short:         "Inspect and control a running vizbridged daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&addr, "addr", addr, "Base URL of the daemon (defaults VIZBRIDGED_ADDR)")

	manifests := &cobra.Command{
		Use:     "manifests",
		Short:   "List discovered plugin manifests",
		Example: "  vizctl manifests",
		RunE: func(cmd *cobra.Command, args []string) error {
			return fnManifests(cmd.OutOrStdout(), addr)
		},
	}

	status := &cobra.Command{
		Use:     "status",
		Short:   "Show runtime and instance status",
		Example: "  vizctl status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return fnStatus(cmd.OutOrStdout(), addr)
		},
	}

	reload := &cobra.Command{
		Use:     "reload <manifest-id>",
		Short:   "Hot-reload one plugin module",
		Example: "  vizctl reload com.example.spectrum_wheel",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return fnReload(cmd.OutOrStdout(), addr, args[0])
		},
	}

	root.AddCommand(manifests, status, reload)
	return root
}

func envDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
