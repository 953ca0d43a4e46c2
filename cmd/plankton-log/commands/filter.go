package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/plankton-sim/plankton-go/pkg/log"
)

// FilterOptions holds the filter flags shared by all commands.
type FilterOptions struct {
	ConnID    string
	Device    string
	Command   string
	TimeStart string
	TimeEnd   string
	Layer     string
	Direction string
	Category  string
}

// Build converts the options into a log.Filter.
func (o FilterOptions) Build() (log.Filter, error) {
	filter := log.Filter{
		ConnectionID: o.ConnID,
		Device:       o.Device,
		Command:      o.Command,
	}

	if o.TimeStart != "" {
		t, err := time.Parse(time.RFC3339, o.TimeStart)
		if err != nil {
			return filter, fmt.Errorf("invalid time-start format: %w", err)
		}
		filter.TimeStart = &t
	}

	if o.TimeEnd != "" {
		t, err := time.Parse(time.RFC3339, o.TimeEnd)
		if err != nil {
			return filter, fmt.Errorf("invalid time-end format: %w", err)
		}
		filter.TimeEnd = &t
	}

	if o.Layer != "" {
		l, err := parseLayer(o.Layer)
		if err != nil {
			return filter, err
		}
		filter.Layer = &l
	}

	if o.Direction != "" {
		d, err := parseDirection(o.Direction)
		if err != nil {
			return filter, err
		}
		filter.Direction = &d
	}

	if o.Category != "" {
		c, err := parseCategory(o.Category)
		if err != nil {
			return filter, err
		}
		filter.Category = &c
	}

	return filter, nil
}

// parseLayer parses a layer string (case-insensitive).
func parseLayer(s string) (log.Layer, error) {
	switch strings.ToLower(s) {
	case "transport":
		return log.LayerTransport, nil
	case "adapter":
		return log.LayerAdapter, nil
	case "control":
		return log.LayerControl, nil
	case "simulation":
		return log.LayerSimulation, nil
	default:
		return 0, fmt.Errorf("invalid layer: %s (must be transport, adapter, control or simulation)", s)
	}
}

// parseDirection parses a direction string (case-insensitive).
func parseDirection(s string) (log.Direction, error) {
	switch strings.ToLower(s) {
	case "in":
		return log.DirectionIn, nil
	case "out":
		return log.DirectionOut, nil
	case "none", "-":
		return log.DirectionNone, nil
	default:
		return 0, fmt.Errorf("invalid direction: %s (must be in, out or none)", s)
	}
}

// parseCategory parses a category string (case-insensitive).
func parseCategory(s string) (log.Category, error) {
	switch strings.ToLower(s) {
	case "message":
		return log.CategoryMessage, nil
	case "state":
		return log.CategoryState, nil
	case "error":
		return log.CategoryError, nil
	default:
		return 0, fmt.Errorf("invalid category: %s (must be message, state or error)", s)
	}
}

// RunFilter copies the events of path that match filter to a new event
// file and returns how many were written.
func RunFilter(path, output string, filter log.Filter) (int, error) {
	logger, err := log.NewFileLogger(output)
	if err != nil {
		return 0, fmt.Errorf("failed to create output logger: %w", err)
	}
	defer logger.Close()

	count := 0
	err = forEach(path, filter, func(event log.Event) error {
		logger.Log(event)
		count++
		return nil
	})
	return count, err
}
