package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"hitqueue/internal/collector"
	"hitqueue/internal/config"
	"hitqueue/internal/logger"
	"hitqueue/pkg/logging"
)

var (
	configFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "hitqueue",
		Short: "Persistent analytics hit queue",
		Long:  "hitqueue tracks analytics hits, persists them and delivers them with retries",
		RunE:  serveCmd().RunE,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file (required)")

	rootCmd.AddCommand(serveCmd(), trackCmd(), flushCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads the configuration and builds the logger shared by every
// command.
func setup() (*config.Config, logger.Logger, error) {
	earlyLog := logging.NewEarlyLog()

	if configFile == "" {
		configFile = os.Getenv("CONFIG_FILE")
		if configFile == "" {
			earlyLog.Error("Config file is required. Use --config flag or CONFIG_FILE environment variable")
			return nil, nil, fmt.Errorf("config file is required")
		}
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		earlyLog.Error("Failed to load config: %v", err)
		return nil, nil, err
	}

	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		earlyLog.Error("Failed to init logger: %v", err)
		return nil, nil, err
	}
	return cfg, log, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Recover stored hits and run the collector",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			log.InfowCtx(ctx, "Starting hitqueue")

			app := NewApp(cfg, log)
			if err := app.Initialize(ctx, true); err != nil {
				log.Fatalf("Failed to initialize application: %v", err)
			}

			log.InfowCtx(ctx, "hitqueue running")
			runErr := app.Run(ctx)

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout+time.Second)
			defer shutdownCancel()
			if err := app.Shutdown(shutdownCtx); err != nil {
				log.Errorw("Shutdown failed", "error", err)
			}

			if runErr != nil && runErr != context.Canceled {
				log.ErrorwCtx(ctx, "Service stopped with error", "error", runErr)
				return runErr
			}
			log.InfowCtx(ctx, "Shutdown complete")
			return nil
		},
	}
}

func trackCmd() *cobra.Command {
	var (
		req     collector.TrackRequest
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "track",
		Short: "Track a single hit and wait for its delivery",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			app := NewApp(cfg, log)
			if err := app.Initialize(ctx, false); err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}
			defer func() {
				if err := app.Shutdown(context.Background()); err != nil {
					log.Errorw("Shutdown failed", "error", err)
				}
			}()

			if err := app.Track(ctx, req); err != nil {
				return err
			}

			if err := app.Registry.WaitForPending(timeout); err != nil {
				log.Warnw("Hit not delivered yet, it stays queued",
					"error", err,
				)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&req.EngineID, "engine", "", "Engine ID, empty for the default engine")
	flags.StringVar(&req.App.Name, "app", "", "Application name (required)")
	flags.StringVar(&req.App.Version, "app-version", "", "Application version")
	flags.StringVar(&req.Type, "type", collector.HitTypePageview, "Hit type: pageview, event, exception, timing or params")
	flags.StringVar(&req.Path, "path", "", "Pageview path")
	flags.StringVar(&req.Title, "title", "", "Pageview title")
	flags.StringVar(&req.Hostname, "hostname", "", "Pageview hostname")
	flags.StringVar(&req.Category, "category", "", "Event or timing category")
	flags.StringVar(&req.Action, "action", "", "Event action")
	flags.StringVar(&req.Label, "label", "", "Event or timing label")
	flags.StringVar(&req.Description, "description", "", "Exception description")
	flags.BoolVar(&req.Fatal, "fatal", false, "Exception is fatal")
	flags.StringVar(&req.Variable, "variable", "", "Timing variable")
	flags.Int64Var(&req.DurationMs, "duration-ms", 0, "Timing duration in milliseconds")
	flags.StringToStringVar(&req.Params, "param", nil, "Extra protocol parameters (key=value)")
	flags.DurationVar(&timeout, "wait", 10*time.Second, "How long to wait for delivery")
	_ = cmd.MarkFlagRequired("app")

	return cmd
}

func flushCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "flush",
		Short: "Deliver stored hits and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			app := NewApp(cfg, log)
			if err := app.Initialize(ctx, false); err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}
			defer func() {
				if err := app.Shutdown(context.Background()); err != nil {
					log.Errorw("Shutdown failed", "error", err)
				}
			}()

			if err := app.Registry.WaitForPending(timeout); err != nil {
				log.Warnw("Not every stored hit was delivered",
					"error", err,
				)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "wait", 30*time.Second, "How long to wait for delivery")
	return cmd
}
