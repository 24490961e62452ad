package main

import (
	"fmt"

	"github.com/rubiojr/airdb/internal/airdb"
	"github.com/urfave/cli/v2"
)

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Show archived readings of a station",
		Flags: []cli.Flag{
			dbFlag(),
			&cli.IntFlag{
				Name:     "id",
				Usage:    "Station id",
				Required: true,
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of readings (0 for all)",
				Value: 10,
			},
		},
		Action: historyAction,
	}
}

func historyAction(c *cli.Context) error {
	storage, err := airdb.NewStorage(c.Context, c.String("db"), newLogger(c))
	if err != nil {
		return err
	}
	defer storage.Close()

	readings, err := storage.StationHistory(c.Context, c.Int("id"), c.Int("limit"))
	if err != nil {
		return err
	}
	if len(readings) == 0 {
		fmt.Println("No readings found for station", c.Int("id"))
		return nil
	}

	for i, r := range readings {
		fmt.Println(r.FetchedAt.Local().Format("2006-01-02 15:04:05"))
		printStation(i+1, r.Station)
		fmt.Println()
	}
	return nil
}
