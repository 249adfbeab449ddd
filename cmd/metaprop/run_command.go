package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"metaprop/internal/daemon"
	"metaprop/internal/logging"
	"metaprop/internal/preflight"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the drain schedule and metrics endpoint in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemonProcess(cmd, ctx)
		},
	}
}

func runDaemonProcess(cmd *cobra.Command, ctx *commandContext) error {
	if ctx == nil {
		return fmt.Errorf("command context is required")
	}
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	signalCtx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	cmd.SetContext(signalCtx)

	return ctx.withEngine(cmd, engineOptions{metrics: true}, func(runCtx context.Context, eng *engine) error {
		results := preflight.RunAll(runCtx, eng.cfg)
		if failed := preflight.Failed(results); len(failed) > 0 {
			logging.ErrorWithContext(eng.logger, "preflight checks failed", "preflight_failed",
				logging.String(logging.FieldErrorHint, "run `metaprop status` for details"),
				logging.String("failed", strings.Join(failed, ", ")),
			)
			return fmt.Errorf("preflight failed: %s", preflight.Summary(results))
		}

		pidPath := eng.cfg.DaemonLockPath() + ".pid"
		if err := writePIDFile(pidPath); err != nil {
			return fmt.Errorf("write pid file: %w", err)
		}
		defer os.Remove(pidPath)

		d, err := daemon.New(eng.cfg, eng.worker(), eng.logger, eng.prom)
		if err != nil {
			return fmt.Errorf("create daemon: %w", err)
		}
		if err := d.Start(runCtx); err != nil {
			return err
		}
		defer d.Stop()

		eng.logger.Info("metaprop running",
			logging.Int("enhancers", eng.registry.Len()),
			logging.String("queue_backend", eng.cfg.Queue.Backend),
		)
		<-runCtx.Done()
		eng.logger.Info("metaprop shutting down")
		return nil
	})
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
