package commands

import (
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/plankton-sim/plankton-go/pkg/log"
)

func readAll(t *testing.T, path string) []log.Event {
	t.Helper()
	reader, err := log.NewReader(path)
	if err != nil {
		t.Fatalf("failed to open output: %v", err)
	}
	defer reader.Close()

	var events []log.Event
	for {
		event, err := reader.Next()
		if err == io.EOF {
			return events
		}
		if err != nil {
			t.Fatalf("failed to read event: %v", err)
		}
		events = append(events, event)
	}
}

func TestFilterByConnectionID(t *testing.T) {
	ts := time.Date(2026, 1, 28, 10, 15, 32, 0, time.UTC)
	path := createTestLogFile(t, []log.Event{
		{Timestamp: ts, ConnectionID: "conn-1", Category: log.CategoryMessage},
		{Timestamp: ts, ConnectionID: "conn-2", Category: log.CategoryMessage},
		{Timestamp: ts, ConnectionID: "conn-1", Category: log.CategoryMessage},
	})
	outPath := filepath.Join(t.TempDir(), "filtered.plog")

	filter, err := FilterOptions{ConnID: "conn-1"}.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	count, err := RunFilter(path, outPath, filter)
	if err != nil {
		t.Fatalf("RunFilter failed: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 filtered events, got %d", count)
	}

	events := readAll(t, outPath)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	for _, e := range events {
		if e.ConnectionID != "conn-1" {
			t.Errorf("expected conn-1, got %s", e.ConnectionID)
		}
	}
}

func TestFilterByTimeRangeAndDevice(t *testing.T) {
	base := time.Date(2026, 1, 28, 10, 0, 0, 0, time.UTC)
	path := createTestLogFile(t, []log.Event{
		{Timestamp: base, Device: "linkam_t95"},
		{Timestamp: base.Add(time.Minute), Device: "linkam_t95"},
		{Timestamp: base.Add(time.Minute), Device: "example_motor"},
		{Timestamp: base.Add(2 * time.Minute), Device: "linkam_t95"},
	})
	outPath := filepath.Join(t.TempDir(), "filtered.plog")

	filter, err := FilterOptions{
		Device:    "linkam_t95",
		TimeStart: base.Add(30 * time.Second).Format(time.RFC3339),
		TimeEnd:   base.Add(90 * time.Second).Format(time.RFC3339),
	}.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if _, err := RunFilter(path, outPath, filter); err != nil {
		t.Fatalf("RunFilter failed: %v", err)
	}

	events := readAll(t, outPath)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if !events[0].Timestamp.Equal(base.Add(time.Minute)) || events[0].Device != "linkam_t95" {
		t.Errorf("unexpected event %+v", events[0])
	}
}

func TestFilterByCommand(t *testing.T) {
	ts := time.Now()
	path := createTestLogFile(t, []log.Event{
		{Timestamp: ts, Message: &log.MessageEvent{Command: "get_status"}},
		{Timestamp: ts, Message: &log.MessageEvent{Command: "set_rate"}},
		{Timestamp: ts, StateChange: &log.StateChangeEvent{NewState: "idle"}},
	})
	outPath := filepath.Join(t.TempDir(), "filtered.plog")

	count, err := RunFilter(path, outPath, log.Filter{Command: "set_rate"})
	if err != nil {
		t.Fatalf("RunFilter failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 event, got %d", count)
	}
}

func TestBuildFilterErrors(t *testing.T) {
	for name, opts := range map[string]FilterOptions{
		"layer":      {Layer: "wire"},
		"direction":  {Direction: "sideways"},
		"category":   {Category: "snapshot"},
		"time-start": {TimeStart: "yesterday"},
		"time-end":   {TimeEnd: "2026-13-01"},
	} {
		if _, err := opts.Build(); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestBuildFilterParsesNames(t *testing.T) {
	filter, err := FilterOptions{Layer: "Simulation", Direction: "none", Category: "STATE"}.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if *filter.Layer != log.LayerSimulation {
		t.Errorf("expected simulation layer, got %s", filter.Layer)
	}
	if *filter.Direction != log.DirectionNone {
		t.Errorf("expected no direction, got %s", filter.Direction)
	}
	if *filter.Category != log.CategoryState {
		t.Errorf("expected state category, got %s", filter.Category)
	}
}
