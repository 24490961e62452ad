package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/httplog/v2"
	"github.com/rubiojr/airdb/internal/airdb"
	"github.com/rubiojr/airdb/internal/live"
	"github.com/rubiojr/airdb/internal/location"
	"github.com/rubiojr/airdb/internal/server"
	"github.com/urfave/cli/v2"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the ranked station list over HTTP",
		Flags: append(append([]cli.Flag{
			dbFlag(),
			urlFlag(),
			&cli.StringFlag{
				Name:    "addr",
				Usage:   "Listen address",
				EnvVars: []string{"AIRDB_ADDR"},
				Value:   ":8080",
			},
			&cli.DurationFlag{
				Name:  "interval",
				Usage: "Refresh interval",
				Value: 10 * time.Minute,
			},
			&cli.IntFlag{
				Name:  "rate-limit",
				Usage: "Requests per minute per client",
				Value: server.DefaultRateLimit,
			},
		}, coordinateFlags()...), mqttFlags()...),
		Action: serveAction,
	}
}

func serveAction(c *cli.Context) error {
	level := slog.LevelInfo
	if c.Bool("debug") {
		level = slog.LevelDebug
	}
	httpLogger := httplog.NewLogger("airdb", httplog.Options{
		JSON:            false,
		LogLevel:        level,
		Concise:         true,
		QuietDownPeriod: 10 * time.Second,
	})
	logger := httpLogger.Logger

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	storage, err := airdb.NewStorage(ctx, c.String("db"), logger)
	if err != nil {
		return err
	}
	defer storage.Close()

	provider, release, err := newProvider(ctx, c, logger)
	if err != nil {
		return err
	}
	defer release()

	view := live.New(newStationAPI(c), logger, live.WithRecorder(storage))
	defer view.Close()

	if provider != nil {
		go func() {
			if err := view.Run(ctx, provider); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Location updates stopped", "error", err)
			}
		}()
	}
	go refreshLoop(ctx, view, c.Duration("interval"))

	srv := server.New(view, server.Config{
		RateLimit: c.Int("rate-limit"),
		Geocoder:  location.NewGeocoder(location.DefaultNominatimServer),
		SearchLog: storage,
	}, logger)

	httpServer := &http.Server{
		Addr:              c.String("addr"),
		Handler:           srv.Routes(httpLogger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Listening", "addr", httpServer.Addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("error serving HTTP: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	// closing subscribers ends open /live streams
	view.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// refreshLoop refreshes the view immediately and then every interval until
// ctx is done.
func refreshLoop(ctx context.Context, view *live.View, interval time.Duration) {
	_ = view.Refresh(ctx)
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = view.Refresh(ctx)
		}
	}
}
