package log

import "sync"

// MemoryLogger keeps events in memory. Tests use it to assert on captured
// events; the control console uses it for a short history.
type MemoryLogger struct {
	mu     sync.Mutex
	events []Event
	limit  int
}

// NewMemoryLogger creates a MemoryLogger keeping at most limit events
// (0 means unlimited). Older events are dropped first.
func NewMemoryLogger(limit int) *MemoryLogger {
	return &MemoryLogger{limit: limit}
}

// Log stores the event.
func (m *MemoryLogger) Log(event Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.events = append(m.events, event)
	if m.limit > 0 && len(m.events) > m.limit {
		m.events = m.events[len(m.events)-m.limit:]
	}
}

// Events returns a copy of the stored events.
func (m *MemoryLogger) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

// Filter returns the stored events matching f.
func (m *MemoryLogger) Filter(f Filter) []Event {
	var out []Event
	for _, e := range m.Events() {
		if f.matches(e) {
			out = append(out, e)
		}
	}
	return out
}

var _ Logger = (*MemoryLogger)(nil)
