// Package scale reads weights from a load-cell indicator that prints one
// reading per text line.
package scale

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"
)

const (
	readChunk = 64
	// maxPending bounds an unterminated line; anything longer is line noise.
	maxPending = 1024
)

type Reader struct {
	src    io.Reader
	idle   time.Duration
	logger *slog.Logger

	buf     []byte
	pending []byte
}

// NewReader wraps src. idle is the pause between polls that return no data.
func NewReader(src io.Reader, idle time.Duration, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	if idle <= 0 {
		idle = 10 * time.Millisecond
	}
	return &Reader{
		src:    src,
		idle:   idle,
		logger: logger,
		buf:    make([]byte, readChunk),
	}
}

// ReadOneWeight blocks until a line carrying a number arrives and returns it.
// Lines without a number are dropped silently. There is no timeout: the
// station waits for the operator to place the load. It returns early only
// when ctx is cancelled or the port itself fails.
func (r *Reader) ReadOneWeight(ctx context.Context) (float64, error) {
	for {
		line, err := r.nextLine(ctx)
		if err != nil {
			return 0, err
		}
		v, ok := ParseWeight(line)
		if !ok {
			r.logger.Debug("scale: ignoring line", "line", line)
			continue
		}
		r.logger.Info("scale: weight read", "weight", v, "line", line)
		return v, nil
	}
}

func (r *Reader) nextLine(ctx context.Context) (string, error) {
	for {
		if i := bytes.IndexByte(r.pending, '\n'); i >= 0 {
			line := string(r.pending[:i])
			r.pending = append(r.pending[:0], r.pending[i+1:]...)
			return line, nil
		}

		if err := ctx.Err(); err != nil {
			return "", err
		}

		n, err := r.src.Read(r.buf)
		if n > 0 {
			r.pending = append(r.pending, r.buf[:n]...)
			if len(r.pending) > maxPending && bytes.IndexByte(r.pending, '\n') < 0 {
				r.logger.Warn("scale: discarding unterminated input", "bytes", len(r.pending))
				r.pending = r.pending[:0]
			}
			continue
		}
		if err != nil {
			return "", fmt.Errorf("scale read: %w", err)
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(r.idle):
		}
	}
}
