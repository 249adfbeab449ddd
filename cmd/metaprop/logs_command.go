package main

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"metaprop/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var (
		lines    int
		follow   bool
		recordID string
		level    string
	)
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent entries from the metaprop log file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			filter := logs.Filter{RecordID: strings.TrimSpace(recordID)}
			if strings.TrimSpace(level) != "" {
				if err := filter.MinLevel.UnmarshalText([]byte(level)); err != nil {
					return fmt.Errorf("invalid --level %q: %w", level, err)
				}
			} else {
				filter.MinLevel = slog.LevelDebug
			}

			out := cmd.OutOrStdout()
			opts := logs.TailOptions{Offset: -1, Limit: lines, Filter: filter}
			for {
				result, err := logs.Tail(cmd.Context(), cfg.LogFilePath(), opts)
				for _, entry := range result.Entries {
					fmt.Fprintln(out, logs.Format(entry))
				}
				if err != nil {
					return err
				}
				if !follow {
					return nil
				}
				opts = logs.TailOptions{Offset: result.Offset, Follow: true, Wait: 30 * time.Second, Filter: filter}
			}
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of entries to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new entries")
	cmd.Flags().StringVar(&recordID, "record", "", "Only show entries for this record id")
	cmd.Flags().StringVar(&level, "level", "", "Minimum level (debug, info, warn, error)")
	return cmd
}
