package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/mcdev12/livepoll/go/internal/poll/archive"
	"github.com/mcdev12/livepoll/go/internal/poll/gateway"
)

var opts struct {
	Port            int
	ConfigFile      string
	ArchiveDriver   string
	NatsURL         string
	LogLevel        string
	AllowedOrigins  cli.StringSlice
	MetricsExporter string
	MetricsInterval time.Duration
}

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	app := &cli.App{
		Name:  "poll-gateway",
		Usage: "live classroom polling server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:        "port",
				Usage:       "port to listen on",
				Value:       8081,
				EnvVars:     []string{"PORT"},
				Destination: &opts.Port,
			},
			&cli.StringFlag{
				Name:        "config-file",
				Usage:       "optional YAML tuning file",
				EnvVars:     []string{"CONFIG_FILE"},
				Destination: &opts.ConfigFile,
			},
			&cli.StringFlag{
				Name:        "archive-driver",
				Usage:       "where finalized polls are kept: memory, postgres, sqlite or dynamodb",
				Value:       "memory",
				EnvVars:     []string{"ARCHIVE_DRIVER"},
				Destination: &opts.ArchiveDriver,
			},
			&cli.StringFlag{
				Name:        "nats-url",
				Usage:       "export finalized polls to JetStream when set",
				EnvVars:     []string{"NATS_URL"},
				Destination: &opts.NatsURL,
			},
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "zerolog level",
				Value:       "info",
				EnvVars:     []string{"LOG_LEVEL"},
				Destination: &opts.LogLevel,
			},
			&cli.StringSliceFlag{
				Name:        "allowed-origins",
				Usage:       "origins allowed for CORS and websocket upgrades",
				EnvVars:     []string{"ALLOWED_ORIGINS"},
				Destination: &opts.AllowedOrigins,
			},
			&cli.StringFlag{
				Name:        "metrics-exporter",
				Usage:       "OpenTelemetry metrics exporter: none or stdout",
				Value:       "none",
				EnvVars:     []string{"METRICS_EXPORTER"},
				Destination: &opts.MetricsExporter,
			},
			&cli.DurationFlag{
				Name:        "metrics-interval",
				Usage:       "how often metrics are exported",
				Value:       time.Minute,
				EnvVars:     []string{"METRICS_INTERVAL"},
				Destination: &opts.MetricsInterval,
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("poll gateway failed")
	}
}

func run(c *cli.Context) error {
	level, err := zerolog.ParseLevel(opts.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", opts.LogLevel, err)
	}
	zerolog.SetGlobalLevel(level)

	config := gateway.DefaultConfig()
	origins := opts.AllowedOrigins.Value()
	if opts.ConfigFile != "" {
		fileCfg, err := loadConfig(opts.ConfigFile)
		if err != nil {
			return err
		}
		fileCfg.apply(&config)
		if len(origins) == 0 {
			origins = fileCfg.AllowedOrigins
		}
	}
	config.ConnectionConfig.CheckOrigin = gateway.OriginChecker(origins)

	// signal-aware context
	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telemetry := gateway.DefaultTelemetryConfig()
	telemetry.Exporter = opts.MetricsExporter
	telemetry.Interval = opts.MetricsInterval
	meterProvider, err := gateway.NewMeterProvider(telemetry)
	if err != nil {
		return err
	}
	if meterProvider != nil {
		otel.SetMeterProvider(meterProvider)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := meterProvider.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("failed to flush metrics")
			}
		}()
	}

	store, err := setupArchive(ctx, opts.ArchiveDriver)
	if err != nil {
		return err
	}

	var publisher archive.Publisher
	if opts.NatsURL != "" {
		jsCfg := archive.DefaultJetStreamConfig()
		jsCfg.URL = opts.NatsURL
		jsPublisher, err := archive.NewJetStreamPublisher(ctx, jsCfg)
		if err != nil {
			store.Close()
			return fmt.Errorf("create JetStream publisher: %w", err)
		}
		publisher = jsPublisher
	}

	service := gateway.NewService(config, store, publisher, clockwork.NewRealClock())
	defer func() {
		if err := service.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close archive")
		}
	}()

	server := gateway.NewServer(fmt.Sprintf(":%d", opts.Port), service.Handler(), origins)

	log.Info().
		Int("port", opts.Port).
		Str("archive", opts.ArchiveDriver).
		Bool("export", opts.NatsURL != "").
		Str("metrics", opts.MetricsExporter).
		Msg("starting poll gateway")

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return service.Start(gctx)
	})
	group.Go(func() error {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown failed")
		}
		return nil
	})

	err = group.Wait()
	log.Info().Msg("poll gateway shutdown complete")
	return err
}
