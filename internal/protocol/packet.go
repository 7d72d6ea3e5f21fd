package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
)

// DefaultMaxLineSize bounds a single inbound line, terminator excluded.
const DefaultMaxLineSize = 1 << 20

var (
	// ErrLineTooLong is returned when an inbound line exceeds the size limit.
	// The oversized line is consumed, so the stream stays aligned on the next line.
	ErrLineTooLong = errors.New("line too long")

	// ErrEmbeddedNewline is returned when an outbound message contains '\n'.
	ErrEmbeddedNewline = errors.New("message contains newline")
)

// WriteLine writes msg followed by '\n' to w in a single Write call.
// buf is scratch space and may be nil.
//
// Wire format: UTF-8 text, message boundary = '\n', no length prefix.
func WriteLine(w io.Writer, buf []byte, msg string) error {
	if strings.IndexByte(msg, '\n') >= 0 {
		return ErrEmbeddedNewline
	}
	buf = append(buf[:0], msg...)
	buf = append(buf, '\n')
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("writing line: %w", err)
	}
	return nil
}

// ReadLine reads one line from r, without the trailing "\n" or "\r\n".
// A final unterminated line is returned as is; the next call returns io.EOF.
// Lines longer than maxSize are skipped and reported as ErrLineTooLong.
func ReadLine(r *bufio.Reader, maxSize int) ([]byte, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxLineSize
	}

	var line []byte
	tooLong := false
	for {
		chunk, err := r.ReadSlice('\n')
		if !tooLong {
			if len(line)+len(chunk) > maxSize+2 {
				tooLong = true
				line = nil
			} else {
				line = append(line, chunk...)
			}
		}

		switch {
		case err == nil:
			if tooLong {
				return nil, ErrLineTooLong
			}
			line = trimEOL(line)
			if len(line) > maxSize {
				return nil, ErrLineTooLong
			}
			return line, nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF) && len(line) > 0 && !tooLong:
			return trimEOL(line), nil
		default:
			return nil, err
		}
	}
}

func trimEOL(b []byte) []byte {
	b = bytes.TrimSuffix(b, []byte("\n"))
	return bytes.TrimSuffix(b, []byte("\r"))
}
