// Package main is the gridiron CLI: run a broadcast or watch one.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/gridiron-live/broadcast/config"
	"github.com/gridiron-live/broadcast/internal/apiclient"
	"github.com/gridiron-live/broadcast/internal/localstore"
)

var (
	apiURL    string
	storePath string
	verbose   bool

	// set up in PersistentPreRunE
	cfg    *config.Config
	logger *zap.Logger
	client *apiclient.Client
	store  *localstore.Store
)

var rootCmd = &cobra.Command{
	Use:           "gridiron",
	Short:         "Live game broadcasts with scoreboard, flags and captions",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		var err error
		logger = newLogger(verbose)
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if apiURL == "" {
			apiURL = cfg.Client.APIBaseURL
		}
		if storePath == "" {
			storePath = cfg.Client.StorePath
		}
		store, err = localstore.Open(storePath)
		if err != nil {
			return err
		}
		client = apiclient.New(apiURL, logger)
		return nil
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		if store != nil {
			_ = store.Close()
		}
		_ = logger.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", "", "session service base URL (default $GRIDIRON_API_URL)")
	rootCmd.PersistentFlags().StringVar(&storePath, "store", "", "local state file (default $GRIDIRON_STORE)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(broadcastCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(recordingsCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(debug bool) *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if debug {
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	logger, _ := config.Build()
	return logger
}
