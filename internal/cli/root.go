// Package cli implements the ventilatorctl command-line interface using Cobra.
package cli

import (
	"fmt"
	"os"

	"codeberg.org/mutker/ventilator/internal/config"
	"codeberg.org/mutker/ventilator/internal/logger"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "ventilatorctl",
	Short: "Inspect and change Ventilator fan settings",
	Long: `ventilatorctl reads and edits the preferences ventilatord applies to the
fan hardware. Changes made with "set" are announced on the bus, so a running
daemon persists and applies them immediately.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the configuration file")
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	var args []string
	if configPath != "" {
		args = []string{"--config", configPath}
	}

	cfg, err := config.Load(args)
	if err != nil {
		return nil, err
	}

	logger.Init(cfg.Level(), false)

	return cfg, nil
}
