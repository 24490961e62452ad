package main

import (
	"context"
	"log/slog"
	"testing"

	"github.com/rubiojr/airdb/internal/location"
	"github.com/rubiojr/airdb/pkg/api"
	"github.com/urfave/cli/v2"
)

func runWithProvider(t *testing.T, args ...string) (location.Provider, error) {
	t.Helper()
	var (
		provider location.Provider
		provErr  error
	)
	app := &cli.App{
		Name:  "airdb",
		Flags: append(coordinateFlags(), mqttFlags()...),
		Action: func(c *cli.Context) error {
			var release func()
			provider, release, provErr = newProvider(context.Background(), c, slog.New(slog.DiscardHandler))
			if release != nil {
				t.Cleanup(release)
			}
			return nil
		},
	}
	if err := app.Run(append([]string{"airdb"}, args...)); err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	return provider, provErr
}

func TestNewProvider_Coordinates(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected api.Coordinate
	}{
		{"origin", []string{"--lat", "0", "--long", "0"}, api.Coordinate{}},
		{"reykjavik", []string{"--lat", "64.14", "--long", "-21.94"}, api.Coordinate{Lat: 64.14, Lng: -21.94}},
		{"latitude only", []string{"--lat", "12.5"}, api.Coordinate{Lat: 12.5}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			provider, err := runWithProvider(t, test.args...)
			if err != nil {
				t.Fatalf("newProvider() failed: %v", err)
			}
			if provider == nil {
				t.Fatal("Expected a static provider")
			}
			c, ok := provider.CurrentLocation()
			if !ok || c != test.expected {
				t.Errorf("Expected %+v, got %+v (known: %v)", test.expected, c, ok)
			}
		})
	}
}

func TestNewProvider_None(t *testing.T) {
	provider, err := runWithProvider(t)
	if err != nil {
		t.Fatalf("newProvider() failed: %v", err)
	}
	if provider != nil {
		t.Errorf("Expected no provider without flags, got %T", provider)
	}
}
