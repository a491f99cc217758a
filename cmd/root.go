package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sanchez-kim/obj-viewer/internal/config"
	"github.com/sanchez-kim/obj-viewer/internal/store"
)

var (
	// Cfg is the resolved configuration shared by subcommands
	Cfg *config.Config
	// DB is the optional results database. It stays nil when no connection
	// string is configured.
	DB *store.Store

	cfgPath string
	dbURL   string
	logFile string
)

// Version is the application version.
const Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:           "lipcheck",
	Short:         "Lip landmark QA for the 3D facial animation dataset",
	Version:       Version, // This enables the --version flag
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		Cfg, err = config.Load(cfgPath)
		if err != nil {
			return err
		}
		if dbURL != "" {
			Cfg.DB = dbURL
		}
		if logFile != "" {
			Cfg.LogFile = logFile
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if DB != nil {
			// Use Background here because the main context might be cancelled already (due to Ctrl+C)
			// and we still need to send the "Close" command to the DB.
			DB.Close(context.Background())
			DB = nil
		}
	},
}

// errNoDatabase is returned by commands that need stored results.
var errNoDatabase = errors.New("no database configured (use --db or POSTGRES_HOST)")

// connectDB opens the results database when one is configured. required
// turns a missing connection string into an error.
func connectDB(ctx context.Context, required bool) error {
	url := Cfg.DatabaseURL()
	if url == "" {
		if required {
			return errNoDatabase
		}
		return nil
	}
	var err error
	DB, err = store.New(ctx, url)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	return nil
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// This tells Cobra not to print the version in the help text, which is cleaner.
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Config file (default: ./lipcheck.yaml if present)")
	rootCmd.PersistentFlags().StringVar(&dbURL, "db", "", "PostgreSQL connection string for storing results (default: built from POSTGRES_* env)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Append run logs to this file (default: log.txt)")
}
