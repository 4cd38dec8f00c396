// Package lineio splits a byte stream into lines under a hard per-line
// memory bound, so an untrusted child process cannot force unbounded
// allocation through a single oversized line.
package lineio

import (
	"bufio"
	"io"
)

const defaultMaxLine = 10 << 20 // 10 MiB

// Reader reads successive lines from an underlying stream. A line longer
// than the configured bound is consumed through its terminator but reported
// as truncated instead of returned, so the stream stays positioned at the
// start of the next line and the buffer never grows past the bound.
type Reader struct {
	br  *bufio.Reader
	max int
	buf []byte
}

// NewReader wraps r with a line bound of max content bytes.
// A non-positive max falls back to 10 MiB.
func NewReader(r io.Reader, max int) *Reader {
	if max <= 0 {
		max = defaultMaxLine
	}
	return &Reader{br: bufio.NewReader(r), max: max}
}

// Max reports the configured per-line bound.
func (r *Reader) Max() int { return r.max }

// ReadLine returns the next line with its terminator removed. A CRLF
// terminator is treated like a bare LF. When the line exceeded the bound,
// truncated is true and line is nil; the bytes were still consumed. A final
// unterminated line is returned as a normal line; after that, and at end of
// stream, ReadLine returns io.EOF. The returned slice is only valid until
// the next call.
func (r *Reader) ReadLine() (line []byte, truncated bool, err error) {
	r.buf = r.buf[:0]
	over := false
	for {
		b, err := r.br.ReadByte()
		if err == io.EOF {
			if over {
				return nil, true, nil
			}
			if len(r.buf) == 0 {
				return nil, false, io.EOF
			}
			return r.finish()
		}
		if err != nil {
			return nil, false, err
		}
		if b == '\n' {
			if over {
				return nil, true, nil
			}
			return r.finish()
		}
		if over {
			continue
		}
		if len(r.buf) > r.max {
			// Already holding max+1 bytes, so the line cannot fit even
			// after a trailing CR is trimmed. Drop it and keep consuming.
			over = true
			r.buf = r.buf[:0]
			continue
		}
		r.buf = append(r.buf, b)
	}
}

// finish trims a trailing carriage return and applies the bound to the
// remaining content. The buffer holds at most max+1 bytes here, one byte of
// slack for the CR of a CRLF terminator on a maximal line.
func (r *Reader) finish() ([]byte, bool, error) {
	line := r.buf
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	if len(line) > r.max {
		return nil, true, nil
	}
	return line, false, nil
}
