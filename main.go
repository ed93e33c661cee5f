package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/ygkn/video-sync-watch/config"
)

var rootCmd = &cobra.Command{
	Use:   "watchsync",
	Short: "Watch-party relay that keeps video playback in sync across clients",
	RunE:  runServe,
}

var flagConfigPath string

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "optional YAML config file")
	rootCmd.AddCommand(serveCmd, watchCmd)
	registerServeFlags(rootCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("execute command")
	}
}

func setupLogger(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
		return
	}
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
}
