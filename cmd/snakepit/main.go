// Snakepit — sandboxed validation pipeline for third-party Python packages.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "snakepit",
	Short: "Snakepit validates third-party packages in disposable sandboxes before installing them.",
	Long: `Snakepit puts every third-party package through a four-phase lifecycle:
ingest it into an isolated sandbox, test it with a generated validation
program, destroy the sandbox, and conscript packages that passed into the
persistent environment. Nothing untested ever touches the real install.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var configPath string

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (default ~/.snakepit/config.yaml)")
	rootCmd.AddCommand(installCmd, validateCmd, statusCmd, historyCmd, cleanupCmd, configCmd, versionCmd)
	_ = godotenv.Load()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}
