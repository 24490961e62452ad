package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rubiojr/airdb/internal/location"
	"github.com/rubiojr/airdb/pkg/api"
	"github.com/urfave/cli/v2"
)

// newProvider returns the observer source selected by the flags, or nil when
// none was given. The returned function releases it.
func newProvider(ctx context.Context, c *cli.Context, logger *slog.Logger) (location.Provider, func(), error) {
	if broker := c.String("mqtt-broker"); broker != "" {
		p := location.NewMQTTProvider(location.MQTTConfig{
			Broker:   broker,
			Topic:    c.String("mqtt-topic"),
			Username: c.String("mqtt-username"),
			Password: c.String("mqtt-password"),
		}, logger)
		if err := p.Connect(ctx); err != nil {
			return nil, nil, fmt.Errorf("error connecting to MQTT broker: %w", err)
		}
		return p, p.Close, nil
	}

	observer, ok := observerFromFlags(c)
	if !ok {
		return nil, func() {}, nil
	}
	static := location.NewStatic(observer)
	return static, static.Stop, nil
}

// observerFromFlags reports the --lat/--long coordinate. A flag that was not
// given counts as 0.
func observerFromFlags(c *cli.Context) (api.Coordinate, bool) {
	if !c.IsSet("lat") && !c.IsSet("long") {
		return api.Coordinate{}, false
	}
	return api.Coordinate{Lat: c.Float64("lat"), Lng: c.Float64("long")}, true
}
