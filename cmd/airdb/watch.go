package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rubiojr/airdb/internal/live"
	"github.com/urfave/cli/v2"
)

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Print the ranked station list every time it changes",
		Flags: append(append([]cli.Flag{
			urlFlag(),
			&cli.DurationFlag{
				Name:  "interval",
				Usage: "Refresh interval",
				Value: 5 * time.Minute,
			},
			&cli.IntFlag{
				Name:  "top",
				Usage: "Number of stations to print (0 for all)",
				Value: 5,
			},
		}, coordinateFlags()...), mqttFlags()...),
		Action: watchAction,
	}
}

func watchAction(c *cli.Context) error {
	logger := newLogger(c)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider, release, err := newProvider(ctx, c, logger)
	if err != nil {
		return err
	}
	defer release()
	if provider == nil {
		return errors.New("mqtt-broker or latitude and longitude are required")
	}

	view := live.New(newStationAPI(c), logger)
	defer view.Close()

	snapshots, cancel := view.Subscribe()
	defer cancel()

	go func() {
		if err := view.Run(ctx, provider); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Location updates stopped", "error", err)
		}
	}()
	go refreshLoop(ctx, view, c.Duration("interval"))

	for {
		select {
		case <-ctx.Done():
			return nil
		case snap, ok := <-snapshots:
			if !ok {
				return nil
			}
			printSnapshot(snap, c.Int("top"))
		}
	}
}

func printSnapshot(snap live.Snapshot, top int) {
	if snap.State == live.Fetching {
		return
	}
	if snap.LastError != nil {
		fmt.Printf("Refresh failed: %v\n", snap.LastError)
	}
	if snap.FetchedAt.IsZero() {
		return
	}

	fmt.Printf("== %s", snap.UpdatedAt.Local().Format(time.DateTime))
	if snap.Observer != nil {
		fmt.Printf(" @ %.4f, %.4f", snap.Observer.Lat, snap.Observer.Lng)
	}
	fmt.Println(" ==")

	stations := snap.Stations
	if top > 0 && len(stations) > top {
		stations = stations[:top]
	}
	printStations(stations, snap.Observer != nil)
}
