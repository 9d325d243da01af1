package main

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	installCustomTest string
	installDryRun     bool
	installLevel      string
)

var installCmd = &cobra.Command{
	Use:   "install <package[==version]>",
	Short: "Run the full pipeline: ingest, test, destroy, and install on approval",
	Args:  cobra.ExactArgs(1),
	RunE:  runInstall,
}

func init() {
	installCmd.Flags().StringVar(&installCustomTest, "custom-test", "", "path to a Python fragment appended to the generated test program")
	installCmd.Flags().BoolVar(&installDryRun, "dry-run", false, "validate only, report success without installing")
	installCmd.Flags().StringVar(&installLevel, "level", "", "validation level (basic, standard, comprehensive, security, performance)")
}

func runInstall(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if installDryRun {
		cfg.Installer.DryRun = true
	}
	if installLevel != "" {
		cfg.Validation.Level = installLevel
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
	defer sc.Controller.CleanupAll(ctx)

	custom, err := readCustomProgram(installCustomTest)
	if err != nil {
		return err
	}

	name, version := splitSpec(args[0])
	conscripted, err := sc.Controller.HandlePackage(ctx, name, version, custom)
	if err != nil {
		return err
	}
	if !conscripted {
		logger.Warn("package rejected", slog.String("package", name))
		return fmt.Errorf("%s did not pass validation", name)
	}

	fmt.Printf("%s conscripted into the persistent environment\n", args[0])
	return nil
}
