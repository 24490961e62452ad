package main

import (
	"fmt"
	"time"

	"github.com/rubiojr/airdb/internal/airdb"
	"github.com/urfave/cli/v2"
)

func updateCommand() *cli.Command {
	return &cli.Command{
		Name:   "update",
		Usage:  "Fetch the current station list and archive it",
		Flags:  []cli.Flag{dbFlag(), urlFlag()},
		Action: updateAction,
	}
}

func updateAction(c *cli.Context) error {
	logger := newLogger(c)
	storage, err := airdb.NewStorage(c.Context, c.String("db"), logger)
	if err != nil {
		return err
	}
	defer storage.Close()

	stations, err := newStationAPI(c).FetchStations(c.Context)
	if err != nil {
		return fmt.Errorf("error fetching stations: %w", err)
	}

	fetchedAt := time.Now().UTC()
	if err := storage.SaveStations(c.Context, fetchedAt, stations); err != nil {
		return err
	}
	logger.Debug("Batch archived", "stations", len(stations), "fetched_at", fetchedAt)
	fmt.Printf("Archived %d stations\n", len(stations))
	return nil
}
