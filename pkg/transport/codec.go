package transport

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"sync"
)

// MessageConn reads and writes whole messages on a byte stream.
type MessageConn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
}

// Codec wraps a connection into a MessageConn.
type Codec func(rw io.ReadWriter, maxSize uint32) MessageConn

// FramedCodec splits the stream into length-prefixed frames.
func FramedCodec(rw io.ReadWriter, maxSize uint32) MessageConn {
	return framedConn{NewFramer(rw, maxSize)}
}

type framedConn struct{ *Framer }

func (c framedConn) ReadMessage() ([]byte, error)   { return c.ReadFrame() }
func (c framedConn) WriteMessage(data []byte) error { return c.WriteFrame(data) }

// LineCodec returns a Codec that splits incoming data on inTerm and appends
// outTerm to every outgoing message. Incoming terminators are stripped.
func LineCodec(inTerm, outTerm string) Codec {
	return func(rw io.ReadWriter, maxSize uint32) MessageConn {
		if maxSize == 0 {
			maxSize = DefaultMaxMessageSize
		}
		scanner := bufio.NewScanner(rw)
		scanner.Buffer(make([]byte, 0, 1024), int(maxSize))
		scanner.Split(splitOn([]byte(inTerm)))
		return &lineConn{w: rw, scanner: scanner, outTerm: outTerm}
	}
}

type lineConn struct {
	w       io.Writer
	scanner *bufio.Scanner
	outTerm string
	mu      sync.Mutex
}

func (c *lineConn) ReadMessage() ([]byte, error) {
	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			if err == bufio.ErrTooLong {
				return nil, fmt.Errorf("%w: line exceeds buffer", ErrMessageTooLarge)
			}
			return nil, err
		}
		return nil, io.EOF
	}
	return append([]byte(nil), c.scanner.Bytes()...), nil
}

func (c *lineConn) WriteMessage(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	buf := make([]byte, 0, len(data)+len(c.outTerm))
	buf = append(buf, data...)
	buf = append(buf, c.outTerm...)
	_, err := c.w.Write(buf)
	return err
}

// splitOn is a bufio.SplitFunc for an arbitrary terminator. A trailing
// unterminated fragment at EOF is dropped.
func splitOn(term []byte) bufio.SplitFunc {
	return func(data []byte, atEOF bool) (int, []byte, error) {
		if len(term) == 0 {
			return bufio.ScanLines(data, atEOF)
		}
		if i := bytes.Index(data, term); i >= 0 {
			return i + len(term), data[:i], nil
		}
		if atEOF {
			return len(data), nil, nil
		}
		return 0, nil, nil
	}
}
