package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/bhandras/qachat/internal/gateway"
	"github.com/bhandras/qachat/internal/health"
	"github.com/bhandras/qachat/internal/session"
	"github.com/bhandras/qachat/internal/storage"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const (
	defaultSampleSize      = 10
	defaultEvaluateTimeout = 5 * time.Minute
)

func (a *app) healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Probe the service health endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			resp, err := a.client().Health(cmd.Context())
			status := health.Classify(resp, err)
			out := cmd.OutOrStdout()
			if err != nil {
				fmt.Fprintf(out, "status: %s\n", status)
				return err
			}
			fmt.Fprintf(out, "status: %s (service %q, system_ready=%t)\n", status, resp.Status, resp.SystemReady)
			if resp.Timestamp != "" {
				fmt.Fprintf(out, "timestamp: %s\n", resp.Timestamp)
			}
			return nil
		},
	}
}

func (a *app) historyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history [session]",
		Short: "Print the stored history of a session (default: the current one)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var id string
			if len(args) == 1 {
				id = args[0]
			} else {
				kv, err := a.store()
				if err != nil {
					return err
				}
				stored, ok, err := kv.Get(storage.CurrentSessionKey)
				if err != nil {
					return err
				}
				if !ok || stored == "" {
					return errors.New("no current session; start a chat first or pass a session id")
				}
				id = stored
			}

			resp, err := a.client().History(cmd.Context(), id)
			if err != nil {
				return err
			}
			msgs := session.Reconstruct(id, resp.Turns(), time.Now())
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "session %s, %d messages\n", id, len(msgs))
			for _, m := range msgs {
				writeMessage(out, m)
			}
			return nil
		},
	}
}

func (a *app) newSessionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "new-session",
		Short: "Replace the stored session identifier with a fresh one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			kv, err := a.store()
			if err != nil {
				return err
			}
			id, err := storage.RotateSessionID(kv, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
}

func (a *app) analyticsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analytics",
		Short: "Print the service usage analytics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printReport(cmd.OutOrStdout(), func() (map[string]any, error) {
				return a.client().Analytics(cmd.Context())
			})
		},
	}
}

func (a *app) statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print the service administrative statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printReport(cmd.OutOrStdout(), func() (map[string]any, error) {
				return a.client().AdminStats(cmd.Context())
			})
		},
	}
}

func (a *app) evaluateCmd() *cobra.Command {
	var (
		sampleSize int
		timeout    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Run the service quality evaluation on a sample of reference questions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if sampleSize <= 0 {
				return fmt.Errorf("--sample-size must be positive, got %d", sampleSize)
			}
			client := gateway.New(a.cfg.ServerURL, gateway.WithTimeout(timeout))
			return printReport(cmd.OutOrStdout(), func() (map[string]any, error) {
				return client.Evaluate(cmd.Context(), sampleSize)
			})
		},
	}
	cmd.Flags().IntVar(&sampleSize, "sample-size", defaultSampleSize, "number of reference questions to evaluate")
	cmd.Flags().DurationVar(&timeout, "timeout", defaultEvaluateTimeout, "request timeout; evaluation answers every sample")
	return cmd
}

// printReport writes a free-form report as YAML.
func printReport(out io.Writer, fetch func() (map[string]any, error)) error {
	report, err := fetch()
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	return enc.Close()
}
