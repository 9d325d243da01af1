package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	validateCustomTest string
	validateLevel      string
	validateKeep       bool
)

var validateCmd = &cobra.Command{
	Use:   "validate <package[==version]>",
	Short: "Ingest and test a package without installing it",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

func init() {
	validateCmd.Flags().StringVar(&validateCustomTest, "custom-test", "", "path to a Python fragment appended to the generated test program")
	validateCmd.Flags().StringVar(&validateLevel, "level", "", "validation level (basic, standard, comprehensive, security, performance)")
	validateCmd.Flags().BoolVar(&validateKeep, "keep", false, "keep the sandbox after validation for inspection")
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if validateLevel != "" {
		cfg.Validation.Level = validateLevel
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sc, err := initShared(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer sc.Cleanup()

	custom, err := readCustomProgram(validateCustomTest)
	if err != nil {
		return err
	}

	name, version := splitSpec(args[0])
	if err := sc.Controller.Ingest(ctx, name, version, custom); err != nil {
		sc.Controller.KillDestroy(ctx, name)
		return err
	}

	approved, err := sc.Controller.TestCollaborate(ctx, name)
	if err != nil {
		sc.Controller.KillDestroy(ctx, name)
		return err
	}

	if validateKeep {
		for _, r := range sc.Controller.ListActive() {
			if r.Name == name {
				fmt.Printf("sandbox %s kept in %s\n", r.SandboxID, sc.Workspace.SandboxPath(r.SandboxID))
			}
		}
	} else {
		sc.Controller.KillDestroy(ctx, name)
	}

	if !approved {
		return fmt.Errorf("%s did not pass validation", name)
	}
	fmt.Printf("%s approved\n", args[0])
	return nil
}
