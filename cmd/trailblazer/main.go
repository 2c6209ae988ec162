package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"trailblazer_ai/internal/config"
)

var (
	cfg        *config.Config
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "trailblazer",
	Short: "TrailBlazer AI orchestration service",
	Long:  "Runs trail photo analyses across AI providers with judge verification, usage accounting and budget enforcement.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var paths []string
		if configPath != "" {
			paths = append(paths, configPath)
		}
		c, err := config.Load(paths...)
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		cfg = c

		if _, err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config-dir", "", "directory holding trailblazer.yaml")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
