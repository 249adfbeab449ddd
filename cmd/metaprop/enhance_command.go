package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"metaprop/internal/dispatch"
)

func newEnhanceCommand(ctx *commandContext) *cobra.Command {
	var deep bool
	cmd := &cobra.Command{
		Use:   "enhance <id>...",
		Short: "Run an enhancement pass over specific records",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			mode := dispatch.Shallow
			if deep {
				mode = dispatch.Deep
			}
			return ctx.withEngine(cmd, engineOptions{}, func(runCtx context.Context, eng *engine) error {
				result, err := eng.dispatcher.EnhanceAll(runCtx, ids, mode, 1)
				if err != nil {
					return err
				}
				return reportBatch(cmd, ctx, result)
			})
		},
	}
	cmd.Flags().BoolVar(&deep, "deep", false, "Re-read every related record and clear the pending entry")
	return cmd
}

func newReindexCommand(ctx *commandContext) *cobra.Command {
	var all bool
	var entityType string
	var concurrency int
	cmd := &cobra.Command{
		Use:   "reindex [<id>...]",
		Short: "Run deep passes over many records",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !all && len(args) == 0 {
				return errors.New("specify record ids or --all")
			}
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return ctx.withEngine(cmd, engineOptions{}, func(runCtx context.Context, eng *engine) error {
				if all {
					listed, err := eng.records.List(runCtx, strings.TrimSpace(entityType))
					if err != nil {
						return err
					}
					ids = append(ids, listed...)
				}
				workers := concurrency
				if workers <= 0 {
					workers = eng.cfg.Drain.ReindexWorkers
				}
				result, err := eng.dispatcher.EnhanceAll(runCtx, ids, dispatch.Deep, workers)
				if err != nil {
					return err
				}
				return reportBatch(cmd, ctx, result)
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Reindex every stored record")
	cmd.Flags().StringVar(&entityType, "type", "", "Restrict --all to one entity type")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Passes in flight (defaults to drain.reindex_workers)")
	return cmd
}

func parseIDs(args []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(args))
	for _, arg := range args {
		id, err := uuid.Parse(strings.TrimSpace(arg))
		if err != nil {
			return nil, fmt.Errorf("invalid record id %q: %w", arg, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

type batchItemJSON struct {
	ID      string `json:"id"`
	Outcome string `json:"outcome"`
	Error   string `json:"error,omitempty"`
}

func reportBatch(cmd *cobra.Command, ctx *commandContext, result dispatch.BatchResult) error {
	if ctx.JSONMode() {
		items := make([]batchItemJSON, 0, len(result.Items))
		for _, item := range result.Items {
			entry := batchItemJSON{ID: item.ID.String(), Outcome: item.Outcome}
			if item.Err != nil {
				entry.Error = item.Err.Error()
			}
			items = append(items, entry)
		}
		if err := writeJSON(cmd, items); err != nil {
			return err
		}
	} else {
		printBatch(cmd.OutOrStdout(), result)
	}
	if failures := result.Failures(); len(failures) > 0 {
		return fmt.Errorf("%d of %d passes failed", len(failures), len(result.Items))
	}
	return nil
}

func printBatch(out io.Writer, result dispatch.BatchResult) {
	rows := make([][]string, 0, len(result.Items))
	for _, item := range result.Items {
		detail := ""
		if item.Err != nil && item.Outcome != dispatch.OutcomeMissing {
			detail = item.Err.Error()
		}
		rows = append(rows, []string{item.ID.String(), item.Outcome, detail})
	}
	if len(rows) > 0 {
		fmt.Fprintln(out, renderTable([]string{"Record", "Outcome", "Detail"}, rows, nil))
	}
	fmt.Fprintf(out, "%d changed, %d unchanged, %d missing, %d failed\n",
		result.Changed, result.Unchanged, result.Missing, result.Failed)
}
