package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "domainguard",
		Short: "Domain and TLS certificate expiry monitoring with email and SMS alerts",
		Long: `domainguard watches registered domains. It runs four recurring sweeps
(domain expiry daily, certificates every 6h, reachability every 30m and alert
matching hourly) and notifies owners by email and SMS, at most once per
domain and alert type every 24 hours.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "optional YAML config file; environment variables override it")

	root.AddCommand(newServeCmd(), newSweepCmd(), newProbeCmd(), newSeedCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
