package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the pending-enhancement queue",
	}

	queueCmd.AddCommand(newQueueStatsCommand(ctx))
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueEnqueueCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))
	queueCmd.AddCommand(newQueuePurgeCommand(ctx))
	queueCmd.AddCommand(newQueueHealthCommand(ctx))

	return queueCmd
}

func newQueueStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show pending count and oldest entry age",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(cmd, engineOptions{}, func(runCtx context.Context, eng *engine) error {
				stats, err := eng.queue.Stats(runCtx)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, stats)
				}
				out := cmd.OutOrStdout()
				for _, line := range renderSectionHeader("Queue", shouldColorize(out)) {
					fmt.Fprintln(out, line)
				}
				fmt.Fprintf(out, "Backend: %s\n", eng.cfg.Queue.Backend)
				fmt.Fprintf(out, "Pending: %d\n", stats.Pending)
				if stats.Oldest != nil {
					age := time.Since(*stats.Oldest).Round(time.Second)
					fmt.Fprintf(out, "Oldest: %s (%s ago)\n", stats.Oldest.Format(time.RFC3339), age)
				}
				return nil
			})
		},
	}
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pending record ids in drain order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(cmd, engineOptions{}, func(runCtx context.Context, eng *engine) error {
				entries, err := eng.queue.List(runCtx, limit)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, entries)
				}
				out := cmd.OutOrStdout()
				if len(entries) == 0 {
					fmt.Fprintln(out, "Queue is empty")
					return nil
				}
				rows := make([][]string, 0, len(entries))
				for _, entry := range entries {
					rows = append(rows, []string{
						strconv.FormatInt(entry.Seq, 10),
						entry.RecordID.String(),
						entry.EnqueuedAt.Local().Format("2006-01-02 15:04:05"),
					})
				}
				fmt.Fprintln(out, renderTable([]string{"Seq", "Record", "Enqueued"}, rows, []columnAlignment{alignRight, alignLeft, alignLeft}))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum entries to show (0 for all)")
	return cmd
}

func newQueueEnqueueCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "enqueue <id>...",
		Short: "Mark records pending for the next drain",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return ctx.withEngine(cmd, engineOptions{}, func(runCtx context.Context, eng *engine) error {
				out := cmd.OutOrStdout()
				for _, id := range ids {
					added, err := eng.queue.Enqueue(runCtx, id)
					if err != nil {
						return err
					}
					if added {
						fmt.Fprintf(out, "Enqueued %s\n", id)
					} else {
						fmt.Fprintf(out, "%s already pending\n", id)
					}
				}
				return nil
			})
		},
	}
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear <id>...",
		Short: "Remove records from the pending queue",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return ctx.withEngine(cmd, engineOptions{}, func(runCtx context.Context, eng *engine) error {
				out := cmd.OutOrStdout()
				for _, id := range ids {
					removed, err := eng.queue.Clear(runCtx, id)
					if err != nil {
						return err
					}
					if removed {
						fmt.Fprintf(out, "Cleared %s\n", id)
					} else {
						fmt.Fprintf(out, "%s was not pending\n", id)
					}
				}
				return nil
			})
		},
	}
}

func newQueuePurgeCommand(ctx *commandContext) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Remove every pending entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				return errors.New("purge discards pending work; rerun with --force")
			}
			return ctx.withEngine(cmd, engineOptions{}, func(runCtx context.Context, eng *engine) error {
				n, err := eng.queue.Purge(runCtx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Purged %d pending entries\n", n)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Confirm the purge")
	return cmd
}

func newQueueHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check queue database health (schema, integrity)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(cmd, engineOptions{}, func(runCtx context.Context, eng *engine) error {
				checker, ok := eng.queue.(healthChecker)
				if !ok {
					return fmt.Errorf("health check is not available for the %s backend", eng.cfg.Queue.Backend)
				}
				resp, err := checker.CheckHealth(runCtx)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				fmt.Fprintf(out, "Database path: %s\n", resp.DBPath)
				fmt.Fprintln(out, renderStatusLine("Database exists", okKind(resp.DatabaseExists), yesNo(resp.DatabaseExists), colorize))
				fmt.Fprintln(out, renderStatusLine("Readable", okKind(resp.DatabaseReadable), yesNo(resp.DatabaseReadable), colorize))
				fmt.Fprintln(out, renderStatusLine("Schema version", statusInfo, strconv.Itoa(resp.SchemaVersion), colorize))
				fmt.Fprintln(out, renderStatusLine("pending table", okKind(resp.TableExists), yesNo(resp.TableExists), colorize))
				fmt.Fprintln(out, renderStatusLine("Integrity check", okKind(resp.IntegrityCheck), yesNo(resp.IntegrityCheck), colorize))
				fmt.Fprintf(out, "Pending: %d\n", resp.Pending)
				if resp.Error != "" {
					fmt.Fprintf(out, "Error: %s\n", resp.Error)
				}
				return nil
			})
		},
	}
}
