package main

import (
	"testing"
	"time"
)

func TestMissingDays(t *testing.T) {
	batchTimes := []time.Time{
		time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 3, 23, 59, 0, 0, time.UTC),
	}
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

	missing := missingDays(batchTimes, start, end)
	expected := []string{"2024-03-02", "2024-03-04"}
	if len(missing) != len(expected) {
		t.Fatalf("Expected %v, got %v", expected, missing)
	}
	for i := range expected {
		if missing[i] != expected[i] {
			t.Errorf("Expected %s at %d, got %s", expected[i], i, missing[i])
		}
	}
}

func TestMissingDaysNone(t *testing.T) {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	if missing := missingDays([]time.Time{day.Add(time.Hour)}, day, day); len(missing) != 0 {
		t.Errorf("Expected no missing days, got %v", missing)
	}
}
