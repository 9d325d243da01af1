package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/elci-group/snakepit/internal/config"
	"github.com/elci-group/snakepit/internal/janitor"
)

var (
	cleanupAll   bool
	cleanupWatch bool
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove orphaned sandbox directories from the workspace",
	RunE:  runCleanup,
}

func init() {
	cleanupCmd.Flags().BoolVar(&cleanupAll, "all", false, "remove every sandbox directory regardless of age")
	cleanupCmd.Flags().BoolVar(&cleanupWatch, "watch", false, "keep running and sweep on the configured schedule")
}

func runCleanup(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ws, err := initWorkspace(cfg)
	if err != nil {
		return err
	}

	if cleanupAll {
		if err := ws.CleanSandboxes(); err != nil {
			return err
		}
		fmt.Println("all sandboxes removed")
		return nil
	}

	schedule := config.DefaultJanitorSchedule
	maxAge := config.DefaultJanitorMaxAge
	if cfg.Janitor != nil {
		schedule = cfg.Janitor.Schedule
		maxAge = time.Duration(cfg.Janitor.MaxAgeS) * time.Second
	}

	j, err := janitor.New(ws.SandboxesDir(), schedule, maxAge, logger)
	if err != nil {
		return err
	}

	removed, err := j.SweepOnce()
	if err != nil {
		return err
	}
	fmt.Printf("removed %d stale sandbox(es)\n", removed)

	if !cleanupWatch {
		return nil
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	cancel := j.Start(ctx)
	defer cancel()
	<-ctx.Done()
	return nil
}
