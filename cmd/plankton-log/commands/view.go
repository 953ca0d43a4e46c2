// Package commands implements the plankton-log CLI commands.
package commands

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/plankton-sim/plankton-go/pkg/log"
)

const timestampFormat = "2006-01-02T15:04:05.000000Z"

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, event log.Event) {
	// Header line: timestamp [conn:id] DIRECTION LAYER Type
	ts := event.Timestamp.UTC().Format(timestampFormat)
	connID := shortenConnID(event.ConnectionID)
	if connID == "" {
		connID = "-"
	}

	fmt.Fprintf(w, "%s [conn:%s] %-3s %s %s", ts, connID, event.Direction, event.Layer, eventType(event))
	if event.Device != "" {
		fmt.Fprintf(w, " (%s)", event.Device)
	}
	fmt.Fprintln(w)

	if event.RemoteAddr != "" {
		fmt.Fprintf(w, "  Remote: %s\n", event.RemoteAddr)
	}

	switch {
	case event.Frame != nil:
		formatFrameDetails(w, event.Frame)
	case event.Message != nil:
		formatMessageDetails(w, event.Message)
	case event.StateChange != nil:
		formatStateChangeDetails(w, event.StateChange)
	case event.Error != nil:
		formatErrorDetails(w, event.Error)
	}

	fmt.Fprintln(w)
}

// eventType labels the payload of an event.
func eventType(event log.Event) string {
	switch {
	case event.Frame != nil:
		return "Frame"
	case event.Message != nil:
		return event.Message.Type.String()
	case event.StateChange != nil:
		return "State"
	case event.Error != nil:
		return "Error"
	default:
		return "Unknown"
	}
}

// shortenConnID returns the first 8 characters of the connection ID.
func shortenConnID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

func formatFrameDetails(w io.Writer, frame *log.FrameEvent) {
	fmt.Fprintf(w, "  Size: %d bytes\n", frame.Size)
	if len(frame.Data) > 0 {
		fmt.Fprintf(w, "  Data: %s", hex.EncodeToString(frame.Data))
		if frame.Truncated {
			fmt.Fprintf(w, " (truncated)")
		}
		fmt.Fprintln(w)
	}
}

func formatMessageDetails(w io.Writer, msg *log.MessageEvent) {
	if msg.Protocol != "" {
		fmt.Fprintf(w, "  Protocol: %s\n", msg.Protocol)
	}
	if msg.Command != "" {
		fmt.Fprintf(w, "  Command: %s\n", msg.Command)
	}
	if msg.Raw != "" {
		fmt.Fprintf(w, "  Raw: %q\n", msg.Raw)
	}

	switch msg.Type {
	case log.MessageTypeRequest:
		if len(msg.Args) > 0 {
			if args, err := json.Marshal(msg.Args); err == nil {
				fmt.Fprintf(w, "  Args: %s\n", args)
			}
		}
	case log.MessageTypeResponse:
		fmt.Fprintf(w, "  Status: %s\n", msg.Status)
		if msg.ProcessingTime != nil {
			fmt.Fprintf(w, "  Duration: %s\n", formatDuration(*msg.ProcessingTime))
		}
	}
}

func formatStateChangeDetails(w io.Writer, sc *log.StateChangeEvent) {
	fmt.Fprintf(w, "  Entity: %s\n", sc.Entity)
	if sc.OldState != "" {
		fmt.Fprintf(w, "  %s -> %s\n", sc.OldState, sc.NewState)
	} else {
		fmt.Fprintf(w, "  -> %s\n", sc.NewState)
	}
	if sc.Reason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", sc.Reason)
	}
}

func formatErrorDetails(w io.Writer, err *log.ErrorEventData) {
	fmt.Fprintf(w, "  Layer: %s\n", err.Layer)
	fmt.Fprintf(w, "  Message: %s\n", err.Message)
	if err.Code != nil {
		fmt.Fprintf(w, "  Code: %d\n", *err.Code)
	}
	if err.Context != "" {
		fmt.Fprintf(w, "  Context: %s\n", err.Context)
	}
}

// formatDuration formats a duration for display.
func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%.3fus", float64(d.Nanoseconds())/1000)
	}
	if d < time.Second {
		return fmt.Sprintf("%.3fms", float64(d.Microseconds())/1000)
	}
	return fmt.Sprintf("%.3fs", d.Seconds())
}

// RunView prints the events of path that match filter.
func RunView(path string, filter log.Filter, output io.Writer) error {
	return forEach(path, filter, func(event log.Event) error {
		formatEvent(output, event)
		return nil
	})
}

// forEach calls fn for every matching event of the file.
func forEach(path string, filter log.Filter, fn func(log.Event) error) error {
	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if err := fn(event); err != nil {
			return err
		}
	}
}
