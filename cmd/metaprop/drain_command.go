package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"metaprop/internal/drain"
)

func newDrainCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "drain",
		Short: "Drain the pending queue once with deep passes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(cmd, engineOptions{}, func(runCtx context.Context, eng *engine) error {
				summary, err := eng.worker().RunOnce(runCtx)
				if errors.Is(err, drain.ErrAlreadyDraining) {
					return errors.New("another drain is in progress (is `metaprop run` active?)")
				}
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, summary)
				}
				fmt.Fprint(cmd.OutOrStdout(), renderDrainSummary(summary))
				return nil
			})
		},
	}
}

func renderDrainSummary(s drain.Summary) string {
	rows := [][]string{
		{"Polled", strconv.Itoa(s.Polled)},
		{"Changed", strconv.Itoa(s.Changed)},
		{"Unchanged", strconv.Itoa(s.Unchanged)},
		{"Missing", strconv.Itoa(s.Missing)},
		{"Failed", strconv.Itoa(s.Failed)},
		{"Requeued", strconv.Itoa(s.Requeued)},
		{"Interrupted", yesNo(s.Interrupted)},
		{"Elapsed", s.Duration.Round(time.Millisecond).String()},
	}
	return renderTable([]string{"Drain", "Value"}, rows, []columnAlignment{alignLeft, alignRight}) + "\n"
}
