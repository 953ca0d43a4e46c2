package log

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/plankton-sim/plankton-go/pkg/version"
)

// FileMagic identifies Plankton event files. It is the first field of the
// header record.
const FileMagic = "plankton-events"

// FormatVersion is the event file format written by FileLogger.
const FormatVersion = 1

var (
	// ErrNotEventLog indicates a file that does not start with a header record.
	ErrNotEventLog = errors.New("not a plankton event log")

	// ErrUnsupportedFormat indicates a header with a newer format version.
	ErrUnsupportedFormat = errors.New("unsupported event log format")
)

// FileHeader is the first record of every event file.
type FileHeader struct {
	Magic    string    `cbor:"1,keyasint"`
	Format   uint      `cbor:"2,keyasint"`
	Created  time.Time `cbor:"3,keyasint"`
	Producer string    `cbor:"4,keyasint,omitempty"`
}

func (h FileHeader) validate() error {
	if h.Magic != FileMagic {
		return ErrNotEventLog
	}
	if h.Format == 0 || h.Format > FormatVersion {
		return fmt.Errorf("%w: version %d", ErrUnsupportedFormat, h.Format)
	}
	return nil
}

func readHeader(dec *cbor.Decoder) (FileHeader, error) {
	var h FileHeader
	if err := dec.Decode(&h); err != nil {
		if errors.Is(err, io.EOF) {
			return FileHeader{}, fmt.Errorf("%w: empty file", ErrNotEventLog)
		}
		return FileHeader{}, fmt.Errorf("%w: %v", ErrNotEventLog, err)
	}
	return h, h.validate()
}

// FileLogger appends events to a .plog file. A new file starts with a
// FileHeader; an existing file is only appended to if its header is valid.
// State changes and errors are synced to disk as they are logged so the
// lifecycle of a crashed simulation survives. It is safe for concurrent use.
type FileLogger struct {
	file    *os.File
	encoder *cbor.Encoder
	header  FileHeader
	mu      sync.Mutex
	closed  bool
	written int
	err     error
}

// NewFileLogger opens path for appending, creating it with mode 0644 if needed.
func NewFileLogger(path string) (*FileLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}
	l := &FileLogger{file: f, encoder: NewEncoder(f)}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.Size() == 0 {
		l.header = FileHeader{
			Magic:    FileMagic,
			Format:   FormatVersion,
			Created:  time.Now().UTC(),
			Producer: "plankton " + version.Current,
		}
		if err := l.encoder.Encode(l.header); err != nil {
			f.Close()
			return nil, fmt.Errorf("write header: %w", err)
		}
		return l, nil
	}

	l.header, err = readHeader(NewDecoder(io.NewSectionReader(f, 0, info.Size())))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return l, nil
}

// Header returns the header of the file being written.
func (l *FileLogger) Header() FileHeader {
	return l.header
}

// Log writes an event to the file. Events logged after Close are dropped.
// Write failures never reach the caller; the first one is kept for Err.
func (l *FileLogger) Log(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed || l.err != nil {
		return
	}
	if err := l.encoder.Encode(event); err != nil {
		l.err = err
		return
	}
	l.written++
	if event.Category == CategoryState || event.Category == CategoryError {
		if err := l.file.Sync(); err != nil {
			l.err = err
		}
	}
}

// Written returns the number of events written by this logger.
func (l *FileLogger) Written() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.written
}

// Err returns the first write error. After an error no further events are
// written.
func (l *FileLogger) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Close syncs and closes the file. It is safe to call Close multiple times.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true

	syncErr := l.file.Sync()
	if err := l.file.Close(); err != nil {
		return err
	}
	return syncErr
}

var _ Logger = (*FileLogger)(nil)
