package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/rubiojr/airdb/internal/location"
	"github.com/rubiojr/airdb/pkg/api"
	"github.com/urfave/cli/v2"
)

const defaultDB = "air_quality.db"

func main() {
	app := &cli.App{
		Name:  "airdb",
		Usage: "Find nearby air quality stations and archive their readings",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
			},
		},
		Commands: []*cli.Command{
			listNearbyCommand(),
			updateCommand(),
			historyCommand(),
			statusCommand(),
			locationsCommand(),
			pruneCommand(),
			serveCommand(),
			watchCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newLogger(c *cli.Context) *slog.Logger {
	if !c.Bool("debug") {
		return slog.New(slog.DiscardHandler)
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: time.Kitchen,
	}))
}

func dbFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "db",
		Usage:   "Database file",
		EnvVars: []string{"AIRDB_DB"},
		Value:   defaultDB,
	}
}

func urlFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "url",
		Usage:   "Station list endpoint",
		EnvVars: []string{"AIRDB_URL"},
		Value:   api.DefaultBaseURL,
	}
}

func coordinateFlags() []cli.Flag {
	return []cli.Flag{
		&cli.Float64Flag{
			Name:  "lat",
			Usage: "Latitude of the location",
		},
		&cli.Float64Flag{
			Name:  "long",
			Usage: "Longitude of the location",
		},
	}
}

func mqttFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "mqtt-broker",
			Usage:   "MQTT broker URL for OwnTracks location updates (tcp://host:1883)",
			EnvVars: []string{"AIRDB_MQTT_BROKER"},
		},
		&cli.StringFlag{
			Name:    "mqtt-topic",
			Usage:   "MQTT topic to subscribe to",
			EnvVars: []string{"AIRDB_MQTT_TOPIC"},
			Value:   location.DefaultMQTTTopic,
		},
		&cli.StringFlag{
			Name:    "mqtt-username",
			Usage:   "MQTT username",
			EnvVars: []string{"AIRDB_MQTT_USERNAME"},
		},
		&cli.StringFlag{
			Name:    "mqtt-password",
			Usage:   "MQTT password",
			EnvVars: []string{"AIRDB_MQTT_PASSWORD"},
		},
	}
}

func newStationAPI(c *cli.Context) *api.StationAPI {
	return api.NewStationAPI(api.WithBaseURL(c.String("url")))
}
