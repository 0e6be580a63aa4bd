package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/glimte/mmate-rpc/config"
	"github.com/glimte/mmate-rpc/internal/logging"
)

var (
	// Version information
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// app carries what the root command prepares for its subcommands
type app struct {
	configPath string
	envFile    string
	rabbitURL  string
	verbose    bool

	cfg      *config.Config
	logger   *slog.Logger
	closeLog func() error
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "mmate-rpc",
		Short: "Blocking request/reply calls over RabbitMQ",
		Long: `mmate-rpc sends correlated requests over RabbitMQ and waits for the reply,
reporting unroutable requests and timeouts. It can also run a stub responder
and check the health of the broker connection.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildTime),
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.closeLog != nil {
				return a.closeLog()
			}
			return nil
		},
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Path to a YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&a.envFile, "env-file", "", "Path to a .env file with MMATE_RPC_ variables")
	rootCmd.PersistentFlags().StringVarP(&a.rabbitURL, "url", "u", "", "RabbitMQ connection URL (overrides the configuration)")
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(
		newCallCommand(a),
		newRespondCommand(a),
		newHealthCommand(a),
	)
	return rootCmd
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath, a.envFile)
	if err != nil {
		return err
	}
	if a.rabbitURL != "" {
		cfg.Rabbit.URL = a.rabbitURL
	}
	if a.verbose {
		cfg.Log.Level = "debug"
	}

	logger, closeLog, err := logging.New(logging.Options{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Output:     cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	a.cfg = cfg
	a.logger = logger
	a.closeLog = closeLog
	return nil
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
