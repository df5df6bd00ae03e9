// voicetasks daemon - turns voice notes into calendar-ready action items
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/egcoder/telegram-ai-bot/internal/app"
	"github.com/egcoder/telegram-ai-bot/internal/config"
	"github.com/egcoder/telegram-ai-bot/internal/logging"
)

var (
	configPath string
	envFile    string
	port       int
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "voicetasks",
		Short:        "Voice note to action item service",
		SilenceUsage: true,
		RunE:         runDaemon,
	}

	rootCmd.Flags().StringVar(&configPath, "config", "", "config file (default $DATA_DIR/config.json)")
	rootCmd.Flags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the environment is read")
	rootCmd.Flags().IntVar(&port, "port", 0, "HTTP server port (overrides config)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runDaemon(cmd *cobra.Command, args []string) error {
	if err := config.LoadDotEnv(envFile); err != nil {
		return err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if port != 0 {
		cfg.Server.Port = port
	}

	if err := logging.Configure(cfg.Logging); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer logging.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := app.NewService(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	logging.WithFields(map[string]interface{}{
		"admins":   len(cfg.Access.Admins()),
		"analyzer": cfg.Analyzer,
		"database": cfg.Storage.Path,
	}).Info("voicetasks starting")

	if err := svc.Run(ctx); err != nil {
		return err
	}
	logging.Info("voicetasks stopped")
	return nil
}
