package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/plankton-sim/plankton-go/pkg/log"
)

// Stats holds aggregate statistics about an event file.
type Stats struct {
	TotalEvents       int
	EventsByLayer     map[log.Layer]int
	EventsByCategory  map[log.Category]int
	EventsByDirection map[log.Direction]int
	Commands          map[string]*CommandStats
	Connections       map[string]*ConnectionStats
	Transitions       map[string]int
	Errors            int
	TimeRange         struct {
		Start time.Time
		End   time.Time
	}
}

// CommandStats aggregates the responses for one protocol command.
type CommandStats struct {
	Protocol string
	Command  string
	Count    int
	Failed   int
	Total    time.Duration
	Max      time.Duration
}

// Mean returns the average processing time.
func (c *CommandStats) Mean() time.Duration {
	if c.Count == 0 {
		return 0
	}
	return c.Total / time.Duration(c.Count)
}

// ConnectionStats holds statistics for a single connection.
type ConnectionStats struct {
	FirstSeen  time.Time
	LastSeen   time.Time
	Events     int
	RemoteAddr string
}

func newStats() *Stats {
	return &Stats{
		EventsByLayer:     make(map[log.Layer]int),
		EventsByCategory:  make(map[log.Category]int),
		EventsByDirection: make(map[log.Direction]int),
		Commands:          make(map[string]*CommandStats),
		Connections:       make(map[string]*ConnectionStats),
		Transitions:       make(map[string]int),
	}
}

func (s *Stats) add(event log.Event) {
	s.TotalEvents++
	s.EventsByLayer[event.Layer]++
	s.EventsByCategory[event.Category]++
	s.EventsByDirection[event.Direction]++

	if s.TimeRange.Start.IsZero() || event.Timestamp.Before(s.TimeRange.Start) {
		s.TimeRange.Start = event.Timestamp
	}
	if event.Timestamp.After(s.TimeRange.End) {
		s.TimeRange.End = event.Timestamp
	}

	if event.ConnectionID != "" {
		conn, ok := s.Connections[event.ConnectionID]
		if !ok {
			conn = &ConnectionStats{FirstSeen: event.Timestamp, LastSeen: event.Timestamp}
			s.Connections[event.ConnectionID] = conn
		}
		conn.Events++
		if event.Timestamp.After(conn.LastSeen) {
			conn.LastSeen = event.Timestamp
		}
		if conn.RemoteAddr == "" {
			conn.RemoteAddr = event.RemoteAddr
		}
	}

	if msg := event.Message; msg != nil && msg.Type == log.MessageTypeResponse {
		key := msg.Protocol + " " + msg.Command
		cs, ok := s.Commands[key]
		if !ok {
			cs = &CommandStats{Protocol: msg.Protocol, Command: msg.Command}
			s.Commands[key] = cs
		}
		cs.Count++
		if msg.Status != log.StatusOK {
			cs.Failed++
		}
		if msg.ProcessingTime != nil {
			cs.Total += *msg.ProcessingTime
			cs.Max = max(cs.Max, *msg.ProcessingTime)
		}
	}

	if sc := event.StateChange; sc != nil && sc.Entity == log.StateEntityDevice {
		s.Transitions[sc.OldState+" -> "+sc.NewState]++
	}

	if event.Error != nil {
		s.Errors++
	}
}

// RunStats analyzes the event file and prints statistics.
func RunStats(path string, filter log.Filter, w io.Writer) error {
	stats := newStats()
	if err := forEach(path, filter, func(event log.Event) error {
		stats.add(event)
		return nil
	}); err != nil {
		return err
	}
	printStats(w, stats)
	return nil
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== Plankton Event Log Statistics ===")
	fmt.Fprintln(w)

	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Millisecond))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Layer:")
	for _, layer := range []log.Layer{log.LayerTransport, log.LayerAdapter, log.LayerControl, log.LayerSimulation} {
		if count := stats.EventsByLayer[layer]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", layer.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for _, cat := range []log.Category{log.CategoryMessage, log.CategoryState, log.CategoryError} {
		if count := stats.EventsByCategory[cat]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", cat.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Direction:")
	for _, dir := range []log.Direction{log.DirectionIn, log.DirectionOut, log.DirectionNone} {
		if count := stats.EventsByDirection[dir]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", dir.String()+":", count)
		}
	}

	if len(stats.Commands) > 0 {
		cmds := make([]*CommandStats, 0, len(stats.Commands))
		for _, cs := range stats.Commands {
			cmds = append(cmds, cs)
		}
		sort.Slice(cmds, func(i, j int) bool {
			if cmds[i].Count != cmds[j].Count {
				return cmds[i].Count > cmds[j].Count
			}
			return cmds[i].Protocol+cmds[i].Command < cmds[j].Protocol+cmds[j].Command
		})

		fmt.Fprintln(w)
		fmt.Fprintln(w, "Commands:")
		for _, cs := range cmds {
			name := cs.Command
			if name == "" {
				name = "(unmatched)"
			}
			fmt.Fprintf(w, "  %-8s %-24s %d calls, %d failed, mean %s, max %s\n",
				cs.Protocol, name, cs.Count, cs.Failed, formatDuration(cs.Mean()), formatDuration(cs.Max))
		}
	}

	if len(stats.Transitions) > 0 {
		names := make([]string, 0, len(stats.Transitions))
		for name := range stats.Transitions {
			names = append(names, name)
		}
		sort.Strings(names)

		fmt.Fprintln(w)
		fmt.Fprintln(w, "Device Transitions:")
		for _, name := range names {
			fmt.Fprintf(w, "  %-24s %d\n", name, stats.Transitions[name])
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Connections: %d\n", len(stats.Connections))
	if len(stats.Connections) > 0 {
		type connInfo struct {
			id    string
			stats *ConnectionStats
		}
		conns := make([]connInfo, 0, len(stats.Connections))
		for id, cs := range stats.Connections {
			conns = append(conns, connInfo{id, cs})
		}
		sort.Slice(conns, func(i, j int) bool {
			return conns[i].stats.FirstSeen.Before(conns[j].stats.FirstSeen)
		})

		for _, c := range conns {
			duration := c.stats.LastSeen.Sub(c.stats.FirstSeen).Round(time.Millisecond)
			fmt.Fprintf(w, "  [%s] %d events, duration %s\n", shortenConnID(c.id), c.stats.Events, duration)
			if c.stats.RemoteAddr != "" {
				fmt.Fprintf(w, "           Remote: %s\n", c.stats.RemoteAddr)
			}
		}
	}

	if stats.Errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d\n", stats.Errors)
	}
}
