package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/elci-group/snakepit/internal/lifecycle"
)

var (
	historyStatus string
	historyLimit  int
)

var historyCmd = &cobra.Command{
	Use:   "history [package]",
	Short: "List archived validation records",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().StringVar(&historyStatus, "status", "", "filter by final status (conscripted, destroyed, failed)")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum entries to show")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ws, err := initWorkspace(cfg)
	if err != nil {
		return err
	}
	history, err := initHistory(cfg, ws, logger)
	if err != nil {
		return err
	}
	defer history.Close()

	var entries []*lifecycle.HistoryEntry
	switch {
	case len(args) == 1:
		entries, err = history.ByPackage(args[0])
	case historyStatus != "":
		entries, err = history.ByStatus(lifecycle.Status(historyStatus))
	default:
		entries, err = history.Recent(historyLimit)
	}
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("no history entries")
		return nil
	}
	if len(entries) > historyLimit {
		entries = entries[:historyLimit]
	}

	for _, e := range entries {
		name := e.Name
		if e.Version != "" {
			name += "==" + e.Version
		}
		fmt.Printf("%-12s %-40s %s\n", e.Status, name, e.ArchivedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}
