package main

import (
	"fmt"

	"github.com/rubiojr/airdb/internal/airdb"
	"github.com/urfave/cli/v2"
)

func pruneCommand() *cli.Command {
	return &cli.Command{
		Name:  "prune",
		Usage: "Delete archived batches older than the given number of days",
		Flags: []cli.Flag{
			dbFlag(),
			&cli.IntFlag{
				Name:  "days",
				Usage: "Keep batches newer than this many days",
				Value: 90,
			},
			&cli.BoolFlag{
				Name:  "vacuum",
				Usage: "Reclaim disk space afterwards",
			},
		},
		Action: pruneAction,
	}
}

func pruneAction(c *cli.Context) error {
	if c.Int("days") <= 0 {
		return fmt.Errorf("days must be positive, got %d", c.Int("days"))
	}

	storage, err := airdb.NewStorage(c.Context, c.String("db"), newLogger(c))
	if err != nil {
		return err
	}
	defer storage.Close()

	deleted, err := storage.DeleteOldBatches(c.Context, c.Int("days"))
	if err != nil {
		return err
	}
	fmt.Printf("Deleted %d batches\n", deleted)

	if c.Bool("vacuum") {
		return storage.VacuumDatabase(c.Context)
	}
	return nil
}
