package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/tributeguard/internal/config"
)

var configPath string

// cfg is loaded once per invocation by the root PersistentPreRunE.
var cfg *config.Config

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config YAML (default ~/.tributeguard/config.yaml)")
}

var rootCmd = &cobra.Command{
	Use:   "tributeguard",
	Short: "Content moderation for memorial tributes",
	Long: "Checks tributes written about a deceased person against a moderation policy\n" +
		"and returns the exact phrases that make them unsuitable. Grief is not abuse:\n" +
		"profanity expressing loss is approved, insults and judgment are flagged.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
			os.Exit(78) // EX_CONFIG
		}
		cfg = loaded
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newLogger returns the process logger: JSON in production, text otherwise.
// Always stderr; stdout carries command output.
func newLogger(c *config.Config) *slog.Logger {
	if c.Production() {
		return slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

// currentConfig returns the loaded config, or defaults when a run function
// is called without the root pre-run (tests).
func currentConfig() *config.Config {
	if cfg == nil {
		return config.Default()
	}
	return cfg
}
