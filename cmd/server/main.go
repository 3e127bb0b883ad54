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

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/tallyboard/backend/internal/config"
	"github.com/tallyboard/backend/internal/counter"
	"github.com/tallyboard/backend/internal/notify"
	"github.com/tallyboard/backend/internal/stream"
)

func main() {
	var (
		configPath string
		host       string
		port       int
		debug      bool
	)

	root := &cobra.Command{
		Use:           "tallyboard-server",
		Short:         "Stream live counter state to connected viewers",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(debug)

			cfg, err := config.LoadOrDefault(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if host != "" {
				cfg.Server.Host = host
			}
			if port > 0 {
				cfg.Server.Port = port
			}

			return run(cfg, logger)
		},
	}

	root.Flags().StringVar(&configPath, "config", "config.yaml", "path to config file")
	root.Flags().StringVar(&host, "host", "", "override server host")
	root.Flags().IntVar(&port, "port", 0, "override server port")
	root.Flags().BoolVar(&debug, "debug", false, "enable debug logging")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newLogger(debug bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	return zerolog.New(output).Level(level).With().Timestamp().Logger()
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	items := make([]counter.Item, len(cfg.Items))
	for i, it := range cfg.Items {
		items[i] = counter.Item{ID: it.ID, Slots: it.Slots}
	}

	store, err := counter.NewStore(counter.NewMemorySortedSet(), items)
	if err != nil {
		return err
	}

	notifier := notify.New(cfg.Stream.QueueSize)
	supervisor := stream.NewSupervisor(logger)
	server := stream.NewServer(store, notifier, supervisor, cfg.Stream, logger)

	mux := http.NewServeMux()
	server.SetupRoutes(mux)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", httpServer.Addr).Int("items", len(items)).Msg("server listening")
		errCh <- httpServer.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info().Stringer("signal", sig).Msg("shutting down")
	}

	grace := cfg.Stream.ShutdownGrace
	if grace <= 0 {
		grace = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	// Stop accepting, then drain live sessions so nobody dies mid-push.
	if err := httpServer.Shutdown(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		logger.Warn().Err(err).Msg("http shutdown")
	}
	if err := supervisor.Shutdown(ctx); err != nil {
		logger.Warn().Err(err).Msg("session drain timed out")
		return nil
	}

	logger.Info().Msg("shutdown complete")
	return nil
}
