package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/hamed0406/domainguard/internal/domain"
	"github.com/hamed0406/domainguard/internal/probe"
)

func newProbeCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Run a single certificate or reachability probe",
	}
	cmd.PersistentFlags().DurationVar(&timeout, "timeout", probe.DefaultTimeout, "probe timeout")

	cmd.AddCommand(&cobra.Command{
		Use:   "cert <host>",
		Short: "Read the certificate a host presents on port 443",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cert, err := probe.NewTLSProber(timeout).Probe(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			now := time.Now()
			return printJSON(map[string]any{
				"host":        cert.Host,
				"issuer":      cert.Issuer,
				"subject":     cert.Subject,
				"not_before":  cert.NotBefore,
				"not_after":   cert.NotAfter,
				"status":      cert.Status,
				"days_left":   domain.DaysRemaining(cert.NotAfter, now),
				"expires_rel": humanize.RelTime(cert.NotAfter, now, "ago", "from now"),
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "http <host>",
		Short: "Issue one GET and classify the target as up or down",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := probe.NewHTTPChecker(timeout).Check(cmd.Context(), args[0])
			return printJSON(map[string]any{
				"url":         probe.NormalizeURL(args[0]),
				"up":          out.Up,
				"status_code": out.StatusCode,
				"latency_ms":  out.LatencyMS,
				"message":     out.Message,
			})
		},
	})
	return cmd
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
