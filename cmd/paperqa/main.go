package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"paperqa/internal/config"
	"paperqa/internal/logging"
)

var (
	cfgPath   string
	sessionID string
)

var rootCmd = &cobra.Command{
	Use:   "paperqa",
	Short: "Chat with medical research papers",
	Long: `paperqa answers questions about a corpus of medical research papers.
A fresh topic retrieves the most relevant paper and grounds the conversation
on it; follow-up questions stay on that paper.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ./config.yaml or ~/.config/paperqa/config.yaml if not provided)")
	rootCmd.AddCommand(askCmd, chatCmd, embedCmd, buildIndexCmd)
}

func main() {
	_ = godotenv.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the configuration and installs the process logger.
func loadConfig() (*config.AppConfig, *slog.Logger, error) {
	var (
		cfg  *config.AppConfig
		path = cfgPath
		err  error
	)
	if path == "" {
		cfg, path, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(path)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up logging: %w", err)
	}
	slog.SetDefault(logger)
	log.SetFlags(0)
	logger.Debug("loaded config", "path", path)
	return cfg, logger, nil
}
