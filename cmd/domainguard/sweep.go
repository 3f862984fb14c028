package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/hamed0406/domainguard/internal/scheduler"
)

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "sweep <expiry|certificates|reachability|alerts>",
		Short:     "Run one sweep once and print its summary",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"expiry", "certificates", "reachability", "alerts"},
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := scheduler.ParseJob(args[0])
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			sum, runErr := a.sweeper.Run(cmd.Context(), job)
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(sum); err != nil {
				return err
			}
			return runErr
		},
	}
}
