package main

import (
	"fmt"
	"time"

	"github.com/rubiojr/airdb/internal/airdb"
	"github.com/urfave/cli/v2"
)

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Check for days without archived readings",
		Flags: []cli.Flag{
			dbFlag(),
			&cli.StringFlag{
				Name:  "start",
				Usage: "Start date (YYYY-MM-DD), defaults to the first archived day",
			},
			&cli.StringFlag{
				Name:  "end",
				Usage: "End date (YYYY-MM-DD)",
			},
		},
		Action: statusAction,
	}
}

func statusAction(c *cli.Context) error {
	storage, err := airdb.NewStorage(c.Context, c.String("db"), newLogger(c))
	if err != nil {
		return err
	}
	defer storage.Close()

	batchTimes, err := storage.BatchTimes(c.Context)
	if err != nil {
		return err
	}
	if len(batchTimes) == 0 {
		fmt.Println("No batches found in database.")
		return nil
	}

	startDate := batchTimes[0].UTC().Truncate(24 * time.Hour)
	if c.String("start") != "" {
		startDate, err = time.Parse(time.DateOnly, c.String("start"))
		if err != nil {
			return fmt.Errorf("invalid start date: %w", err)
		}
	}
	endDate := time.Now().UTC()
	if c.String("end") != "" {
		endDate, err = time.Parse(time.DateOnly, c.String("end"))
		if err != nil {
			return fmt.Errorf("invalid end date: %w", err)
		}
	}

	last := batchTimes[len(batchTimes)-1]
	fmt.Printf("%d batches, last fetched %s\n", len(batchTimes), last.Local().Format(time.DateTime))
	fmt.Printf("Checking for missing days in range: %s to %s\n", startDate.Format(time.DateOnly), endDate.Format(time.DateOnly))

	missing := missingDays(batchTimes, startDate, endDate)
	if len(missing) == 0 {
		fmt.Println("No missing days in the given range.")
		return nil
	}
	fmt.Println("Missing days:")
	for _, m := range missing {
		fmt.Println(m)
	}
	return nil
}

// missingDays lists the UTC days between start and end without a batch.
func missingDays(batchTimes []time.Time, start, end time.Time) []string {
	dateSet := make(map[string]struct{}, len(batchTimes))
	for _, t := range batchTimes {
		dateSet[t.UTC().Format(time.DateOnly)] = struct{}{}
	}

	var missing []string
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		ds := d.Format(time.DateOnly)
		if _, ok := dateSet[ds]; !ok {
			missing = append(missing, ds)
		}
	}
	return missing
}
