package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"metaprop/internal/preflight"
)

type statusReport struct {
	QueueBackend string             `json:"queue_backend"`
	Pending      int                `json:"pending"`
	Oldest       *time.Time         `json:"oldest,omitempty"`
	Enhancers    []string           `json:"enhancers"`
	Checks       []preflight.Result `json:"checks"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show readiness checks, registered enhancers and queue depth",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(cmd, engineOptions{}, func(runCtx context.Context, eng *engine) error {
				stats, err := eng.queue.Stats(runCtx)
				if err != nil {
					return err
				}
				report := statusReport{
					QueueBackend: eng.cfg.Queue.Backend,
					Pending:      stats.Pending,
					Oldest:       stats.Oldest,
					Checks:       preflight.RunAll(runCtx, eng.cfg),
				}
				for _, e := range eng.registry.Enhancers() {
					report.Enhancers = append(report.Enhancers, e.Name())
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, report)
				}

				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				for _, line := range renderSectionHeader("Checks", colorize) {
					fmt.Fprintln(out, line)
				}
				for _, check := range report.Checks {
					fmt.Fprintln(out, renderStatusLine(check.Name, okKind(check.Passed), check.Detail, colorize))
				}
				fmt.Fprintln(out)
				for _, line := range renderSectionHeader("Enhancers", colorize) {
					fmt.Fprintln(out, line)
				}
				if len(report.Enhancers) == 0 {
					fmt.Fprintln(out, "none registered")
				}
				for i, name := range report.Enhancers {
					fmt.Fprintf(out, "%d. %s\n", i+1, name)
				}
				fmt.Fprintln(out)
				for _, line := range renderSectionHeader("Queue", colorize) {
					fmt.Fprintln(out, line)
				}
				fmt.Fprintf(out, "Backend: %s\n", report.QueueBackend)
				fmt.Fprintf(out, "Pending: %d\n", report.Pending)
				return nil
			})
		},
	}
}
