package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rubiojr/airdb/internal/location"
	"github.com/rubiojr/airdb/pkg/api"
	"github.com/urfave/cli/v2"
)

const (
	defaultRadiusKm = 5.0
	metersPerKm     = 1000.0
)

func listNearbyCommand() *cli.Command {
	return &cli.Command{
		Name:  "list-nearby",
		Usage: "List air quality stations closest to a location",
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:  "location",
				Usage: "Location to search",
			},
			&cli.Float64Flag{
				Name:    "radius",
				Aliases: []string{"r"},
				Usage:   "Search radius in kilometers (0 for all)",
				Value:   defaultRadiusKm,
			},
			urlFlag(),
		}, coordinateFlags()...),
		Action: listNearbyAction,
	}
}

func listNearbyAction(c *cli.Context) error {
	radius := c.Float64("radius")

	observer, ok := observerFromFlags(c)
	if name := c.String("location"); name != "" {
		place, err := location.NewGeocoder(location.DefaultNominatimServer).Lookup(name)
		if err != nil {
			return fmt.Errorf("error looking up location: %w", err)
		}
		fmt.Println("Location found:", place.Name)
		observer = place.Coordinate
	} else if !ok {
		return errors.New("location or latitude and longitude are required")
	}

	stations, err := newStationAPI(c).NearbyStations(c.Context, observer, radius*metersPerKm)
	if err != nil {
		return fmt.Errorf("error fetching nearby stations: %w", err)
	}

	printStations(stations, true)
	if radius > 0 {
		fmt.Printf("Found %d stations within %g km radius\n\n", len(stations), radius)
	} else {
		fmt.Printf("Found %d stations\n\n", len(stations))
	}
	return nil
}

func printStations(stations []api.StationWithDistance, withDistance bool) {
	for i, st := range stations {
		printStation(i+1, st.Station)
		if withDistance {
			fmt.Printf("   Distance: %.2f km\n", st.Distance/metersPerKm)
		}
		fmt.Println()
	}
}

func printStation(n int, st api.Station) {
	fmt.Printf("%d. %s (#%d)\n", n, st.Name, st.ID)
	if st.Comment != nil && *st.Comment != "" {
		fmt.Printf("   Comment: %s\n", *st.Comment)
	}
	fmt.Printf("   Status: %d\n", st.Status)
	fmt.Printf("   Coordinates: %s, %s\n", formatDecimal(st.Latitude), formatDecimal(st.Longitude))
	for _, stat := range st.Stats() {
		value := stat.Value
		if value == "" {
			value = "-"
		}
		fmt.Printf("   %s: %s\n", stat.Key, value)
	}
}

func formatDecimal(value string) string {
	return strings.Replace(value, ",", ".", 1)
}
