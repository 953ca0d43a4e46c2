package commands

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/plankton-sim/plankton-go/pkg/log"
)

func testMessages() []log.Event {
	ts := time.Date(2026, 1, 28, 10, 15, 32, 123456000, time.UTC)
	d := 250 * time.Microsecond
	return []log.Event{
		{
			Timestamp:    ts,
			ConnectionID: "abc12345",
			Direction:    log.DirectionIn,
			Layer:        log.LayerAdapter,
			Category:     log.CategoryMessage,
			Device:       "linkam_t95",
			Message: &log.MessageEvent{
				Type:     log.MessageTypeRequest,
				Protocol: "stream",
				Command:  "get_status",
				Raw:      "T",
			},
		},
		{
			Timestamp:    ts.Add(time.Millisecond),
			ConnectionID: "abc12345",
			Direction:    log.DirectionOut,
			Layer:        log.LayerAdapter,
			Category:     log.CategoryMessage,
			Device:       "linkam_t95",
			Message: &log.MessageEvent{
				Type:           log.MessageTypeResponse,
				Protocol:       "stream",
				Command:        "get_status",
				Status:         log.StatusOK,
				ProcessingTime: &d,
			},
		},
		log.NewStateEvent(log.StateEntityDevice, "stopped", "heat", ""),
	}
}

func TestExportToJSONL(t *testing.T) {
	path := createTestLogFile(t, testMessages())

	var buf bytes.Buffer
	if err := RunExport(path, FormatJSONL, log.Filter{}, &buf); err != nil {
		t.Fatalf("RunExport failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}

	var first log.Event
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("invalid JSON line: %v", err)
	}
	if first.Message == nil || first.Message.Command != "get_status" {
		t.Errorf("unexpected first event: %s", lines[0])
	}
}

func TestExportToCSV(t *testing.T) {
	path := createTestLogFile(t, testMessages())

	var buf bytes.Buffer
	if err := RunExport(path, FormatCSV, log.Filter{}, &buf); err != nil {
		t.Fatalf("RunExport failed: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("invalid CSV: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("expected header and 3 rows, got %d", len(records))
	}
	if strings.Join(records[0], ",") != strings.Join(csvHeader, ",") {
		t.Errorf("unexpected header: %v", records[0])
	}

	request := records[1]
	if request[0] != "2026-01-28T10:15:32.123456Z" || request[6] != "REQUEST" || request[8] != "get_status" ||
		request[11] != "T" {
		t.Errorf("unexpected request row: %v", request)
	}

	response := records[2]
	if response[9] != "OK" || response[10] != "250" {
		t.Errorf("unexpected response row: %v", response)
	}

	state := records[3]
	if state[6] != "State" || state[11] != "stopped->heat" {
		t.Errorf("unexpected state row: %v", state)
	}
}

func TestExportWithFilter(t *testing.T) {
	path := createTestLogFile(t, testMessages())
	cat := log.CategoryState

	var buf bytes.Buffer
	if err := RunExport(path, FormatJSONL, log.Filter{Category: &cat}, &buf); err != nil {
		t.Fatalf("RunExport failed: %v", err)
	}
	if n := strings.Count(buf.String(), "\n"); n != 1 {
		t.Errorf("expected 1 exported event, got %d", n)
	}
}

func TestExportUnknownFormat(t *testing.T) {
	path := createTestLogFile(t, testMessages())
	err := RunExport(path, "xml", log.Filter{}, &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "unknown format") {
		t.Errorf("expected unknown format error, got %v", err)
	}
}
