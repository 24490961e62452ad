package main

import (
	"fmt"

	"github.com/rubiojr/airdb/internal/airdb"
	"github.com/urfave/cli/v2"
)

func locationsCommand() *cli.Command {
	return &cli.Command{
		Name:  "locations",
		Usage: "Show the most searched areas",
		Flags: []cli.Flag{
			dbFlag(),
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of areas (0 for all)",
				Value: 10,
			},
		},
		Action: locationsAction,
	}
}

func locationsAction(c *cli.Context) error {
	storage, err := airdb.NewStorage(c.Context, c.String("db"), newLogger(c))
	if err != nil {
		return err
	}
	defer storage.Close()

	popular, err := storage.PopularLocations(c.Context, c.Int("limit"))
	if err != nil {
		return err
	}
	if len(popular) == 0 {
		fmt.Println("No searches logged yet.")
		return nil
	}

	for i, p := range popular {
		fmt.Printf("%d. %.2f, %.2f  searches: %d  radius: %.1f km\n",
			i+1, p.Latitude, p.Longitude, p.SearchCount, p.Radius/metersPerKm)
	}
	return nil
}
