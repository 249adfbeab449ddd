package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"metaprop/internal/config"
	"metaprop/internal/dispatch"
	"metaprop/internal/logging"
	"metaprop/internal/record"
	"metaprop/internal/recordstore"
)

func newRecordsCommand(ctx *commandContext) *cobra.Command {
	recordsCmd := &cobra.Command{
		Use:   "records",
		Short: "Import, inspect and delete stored records",
	}

	recordsCmd.AddCommand(newRecordsImportCommand(ctx))
	recordsCmd.AddCommand(newRecordsShowCommand(ctx))
	recordsCmd.AddCommand(newRecordsListCommand(ctx))
	recordsCmd.AddCommand(newRecordsDeleteCommand(ctx))

	return recordsCmd
}

func newRecordsImportCommand(ctx *commandContext) *cobra.Command {
	var noEnhance bool
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import records from a YAML seed file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			file, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("open seed file: %w", err)
			}
			defer file.Close()

			return ctx.withEngine(cmd, engineOptions{}, func(runCtx context.Context, eng *engine) error {
				ids, err := eng.records.Import(runCtx, file)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Imported %d records from %s\n", len(ids), path)
				if noEnhance {
					return nil
				}

				consumer := dispatch.NewConsumer(eng.dispatcher)
				defer consumer.End()
				var changed, failed int
				for _, id := range ids {
					ok, err := consumer.Consume(runCtx, dispatch.Event{RecordID: id, Kind: dispatch.EventCreated})
					if dispatch.IsCancellation(err) {
						return err
					}
					if err != nil {
						failed++
						logging.WarnWithContext(eng.logger, "enhancement after import failed", "import_enhance_failed",
							logging.String(logging.FieldRecordID, id.String()),
							logging.String(logging.FieldErrorHint, "rerun `metaprop enhance` for the record"),
							logging.Error(err),
						)
						continue
					}
					if ok {
						changed++
					}
				}
				fmt.Fprintf(out, "Enhanced: %d changed, %d failed\n", changed, failed)
				if failed > 0 {
					return fmt.Errorf("%d records failed enhancement", failed)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&noEnhance, "no-enhance", false, "Store records without running shallow passes")
	return cmd
}

func newRecordsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print a stored record as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return ctx.withEngine(cmd, engineOptions{}, func(runCtx context.Context, eng *engine) error {
				rec, err := eng.records.Find(runCtx, ids[0])
				if errors.Is(err, record.ErrNotFound) {
					return fmt.Errorf("record %s not found", ids[0])
				}
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, rec)
				}
				return recordstore.Encode(cmd.OutOrStdout(), rec)
			})
		},
	}
}

func newRecordsListCommand(ctx *commandContext) *cobra.Command {
	var entityType string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored record ids",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(cmd, engineOptions{}, func(runCtx context.Context, eng *engine) error {
				ids, err := eng.records.List(runCtx, strings.TrimSpace(entityType))
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, ids)
				}
				out := cmd.OutOrStdout()
				for _, id := range ids {
					fmt.Fprintln(out, id)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&entityType, "type", "", "Only list records of this entity type")
	return cmd
}

func newRecordsDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete records and mark their dependents pending",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return ctx.withEngine(cmd, engineOptions{}, func(runCtx context.Context, eng *engine) error {
				consumer := dispatch.NewConsumer(eng.dispatcher)
				defer consumer.End()
				out := cmd.OutOrStdout()
				for _, id := range ids {
					removed, err := eng.records.Delete(runCtx, id)
					if err != nil {
						return err
					}
					if !removed {
						fmt.Fprintf(out, "%s not found\n", id)
						continue
					}
					if _, err := eng.queue.Clear(runCtx, id); err != nil {
						return err
					}
					if _, err := consumer.Consume(runCtx, dispatch.Event{RecordID: id, Kind: dispatch.EventDeleted}); err != nil {
						return err
					}
					fmt.Fprintf(out, "Deleted %s\n", id)
				}
				return nil
			})
		},
	}
}
