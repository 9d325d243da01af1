package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/elci-group/snakepit/internal/lifecycle"
)

var statusCmd = &cobra.Command{
	Use:   "status <package>",
	Short: "Show the latest validation outcome for a package",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
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

	entries, err := history.ByPackage(args[0])
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return fmt.Errorf("no validation history for %s", args[0])
	}

	printEntry(entries[0])
	return nil
}

func printEntry(e *lifecycle.HistoryEntry) {
	name := e.Name
	if e.Version != "" {
		name += "==" + e.Version
	}
	fmt.Printf("%s\n", name)
	fmt.Printf("  status:     %s\n", e.Status)
	fmt.Printf("  sandbox:    %s\n", e.SandboxID)
	if !e.IngestTime.IsZero() {
		fmt.Printf("  ingested:   %s\n", e.IngestTime.Format("2006-01-02 15:04:05"))
	}
	if !e.TestTime.IsZero() {
		fmt.Printf("  tested:     %s\n", e.TestTime.Format("2006-01-02 15:04:05"))
	}
	if !e.InstallTime.IsZero() {
		fmt.Printf("  installed:  %s\n", e.InstallTime.Format("2006-01-02 15:04:05"))
	}
	if len(e.ValidationResults) > 0 {
		var parts []string
		for test, outcome := range e.ValidationResults {
			parts = append(parts, test+"="+outcome)
		}
		fmt.Printf("  tests:      %s\n", strings.Join(parts, " "))
	}
	for _, line := range e.ErrorLog {
		fmt.Printf("  error:      %s\n", line)
	}
}
