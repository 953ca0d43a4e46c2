package log

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Filter selects events. Zero-valued fields match everything.
type Filter struct {
	// ConnectionID filters by exact connection ID match.
	ConnectionID string

	// Direction filters by message direction.
	Direction *Direction

	// Layer filters by layer.
	Layer *Layer

	// Category filters by event category.
	Category *Category

	// TimeStart filters events at or after this time.
	TimeStart *time.Time

	// TimeEnd filters events before this time.
	TimeEnd *time.Time

	// Device filters by device name.
	Device string

	// Command filters message events by command or method name.
	Command string
}

// Matches reports whether the event satisfies all filter criteria.
func (f *Filter) Matches(event Event) bool {
	return f.matches(event)
}

func (f *Filter) matches(event Event) bool {
	if f.ConnectionID != "" && event.ConnectionID != f.ConnectionID {
		return false
	}
	if f.Direction != nil && event.Direction != *f.Direction {
		return false
	}
	if f.Layer != nil && event.Layer != *f.Layer {
		return false
	}
	if f.Category != nil && event.Category != *f.Category {
		return false
	}
	if f.TimeStart != nil && event.Timestamp.Before(*f.TimeStart) {
		return false
	}
	if f.TimeEnd != nil && !event.Timestamp.Before(*f.TimeEnd) {
		return false
	}
	if f.Device != "" && event.Device != f.Device {
		return false
	}
	if f.Command != "" && (event.Message == nil || event.Message.Command != f.Command) {
		return false
	}
	return true
}

// Reader streams events from a .plog file. The header record is checked
// when the file is opened.
type Reader struct {
	file    *os.File
	decoder *cbor.Decoder
	header  FileHeader
	filter  Filter
	read    int
}

// NewReader creates a Reader that returns all events of the file.
func NewReader(path string) (*Reader, error) {
	return NewFilteredReader(path, Filter{})
}

// NewFilteredReader creates a Reader that returns events matching filter.
// It fails with ErrNotEventLog or ErrUnsupportedFormat if the header is not
// understood.
func NewFilteredReader(path string, filter Filter) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	dec := NewDecoder(f)
	header, err := readHeader(dec)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &Reader{
		file:    f,
		decoder: dec,
		header:  header,
		filter:  filter,
	}, nil
}

// Header returns the file header.
func (r *Reader) Header() FileHeader {
	return r.header
}

// Next returns the next matching event, or io.EOF at the end of the file.
// A record cut short by a crashed writer is reported as io.ErrUnexpectedEOF
// together with the number of events read so far.
func (r *Reader) Next() (Event, error) {
	for {
		var event Event
		if err := r.decoder.Decode(&event); err != nil {
			switch {
			case errors.Is(err, io.EOF):
				return Event{}, io.EOF
			case errors.Is(err, io.ErrUnexpectedEOF):
				return Event{}, fmt.Errorf("truncated record after %d events: %w", r.read, io.ErrUnexpectedEOF)
			}
			return Event{}, fmt.Errorf("event %d: %w", r.read+1, err)
		}
		r.read++

		if r.filter.matches(event) {
			return event, nil
		}
	}
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}
