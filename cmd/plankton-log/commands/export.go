package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/plankton-sim/plankton-go/pkg/log"
)

// Export formats.
const (
	FormatJSONL = "jsonl"
	FormatCSV   = "csv"
)

var csvHeader = []string{
	"timestamp", "connection_id", "direction", "layer", "category", "device",
	"type", "protocol", "command", "status", "duration_us", "detail",
}

// RunExport writes the events of path that match filter to w.
func RunExport(path, format string, filter log.Filter, w io.Writer) error {
	switch format {
	case FormatJSONL:
		encoder := json.NewEncoder(w)
		return forEach(path, filter, func(event log.Event) error {
			if err := encoder.Encode(event); err != nil {
				return fmt.Errorf("failed to encode event: %w", err)
			}
			return nil
		})

	case FormatCSV:
		cw := csv.NewWriter(w)
		if err := cw.Write(csvHeader); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
		err := forEach(path, filter, func(event log.Event) error {
			if err := cw.Write(csvRow(event)); err != nil {
				return fmt.Errorf("failed to write row: %w", err)
			}
			return nil
		})
		cw.Flush()
		if err != nil {
			return err
		}
		return cw.Error()

	default:
		return fmt.Errorf("unknown format: %s (supported: jsonl, csv)", format)
	}
}

func csvRow(event log.Event) []string {
	var protocol, command, status, duration, detail string
	switch {
	case event.Message != nil:
		protocol = event.Message.Protocol
		command = event.Message.Command
		detail = event.Message.Raw
		if event.Message.Type == log.MessageTypeResponse {
			status = event.Message.Status.String()
		}
		if event.Message.ProcessingTime != nil {
			duration = strconv.FormatInt(event.Message.ProcessingTime.Microseconds(), 10)
		}
	case event.StateChange != nil:
		detail = event.StateChange.OldState + "->" + event.StateChange.NewState
	case event.Error != nil:
		detail = event.Error.Message
	case event.Frame != nil:
		detail = strconv.Itoa(event.Frame.Size)
	}

	return []string{
		event.Timestamp.UTC().Format(timestampFormat),
		event.ConnectionID,
		event.Direction.String(),
		event.Layer.String(),
		event.Category.String(),
		event.Device,
		eventType(event),
		protocol,
		command,
		status,
		duration,
		detail,
	}
}
