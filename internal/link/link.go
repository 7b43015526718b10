// Package link delivers weight records from a station to the gateway over an
// unreliable radio with bounded retries.
package link

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"rubberweigh/internal/wire"
	"rubberweigh/shared/types"
)

// Radio is the low-level send primitive. onSent is invoked once, possibly on
// another goroutine, when the transport reports the outcome of that frame.
// A non-nil error means the frame was not handed to the transport and onSent
// will not be called.
type Radio interface {
	Send(frame []byte, onSent func(ok bool)) error
}

type Options struct {
	MaxAttempts int
	AckWait     time.Duration
	RetryDelay  time.Duration
}

func DefaultOptions() Options {
	return Options{MaxAttempts: 5, AckWait: 500 * time.Millisecond, RetryDelay: 100 * time.Millisecond}
}

type Result struct {
	Attempts  int
	Delivered bool
}

type Link struct {
	radio  Radio
	opts   Options
	logger *slog.Logger
}

func New(radio Radio, opts Options, logger *slog.Logger) *Link {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultOptions()
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = def.MaxAttempts
	}
	if opts.AckWait <= 0 {
		opts.AckWait = def.AckWait
	}
	if opts.RetryDelay < 0 {
		opts.RetryDelay = 0
	}
	return &Link{radio: radio, opts: opts, logger: logger}
}

// sendStatus is the per-send flag. The radio callback only touches it.
type sendStatus struct {
	delivered atomic.Bool
	signal    chan struct{}
}

func (s *sendStatus) onSent(ok bool) {
	if ok {
		s.delivered.Store(true)
	}
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *sendStatus) drain() {
	select {
	case <-s.signal:
	default:
	}
}

// Send encodes rec and transmits it until the radio confirms delivery or
// MaxAttempts is reached. The error is non-nil only when rec cannot be
// encoded; transport failure is reported through Result.
func (l *Link) Send(ctx context.Context, rec types.WeightRecord) (Result, error) {
	frame, err := wire.Encode(rec)
	if err != nil {
		return Result{}, fmt.Errorf("encode record: %w", err)
	}

	st := &sendStatus{signal: make(chan struct{}, 1)}
	var res Result

	for attempt := 1; attempt <= l.opts.MaxAttempts; attempt++ {
		res.Attempts = attempt
		st.drain()

		if err := l.radio.Send(frame, st.onSent); err != nil {
			l.logger.Warn("radio send failed", "attempt", attempt, "tag_id", rec.TagID, "error", err)
		} else {
			l.awaitCallback(ctx, st)
		}

		if st.delivered.Load() {
			res.Delivered = true
			l.logger.Info("record delivered", "tag_id", rec.TagID, "kind", rec.Kind, "attempts", attempt)
			return res, nil
		}

		if attempt == l.opts.MaxAttempts {
			break
		}
		l.logger.Warn("record not acknowledged, retrying", "attempt", attempt, "tag_id", rec.TagID)
		if !sleepCtx(ctx, l.opts.RetryDelay) {
			break
		}
	}

	l.logger.Error("record delivery failed", "tag_id", rec.TagID, "kind", rec.Kind, "attempts", res.Attempts)
	return res, nil
}

func (l *Link) awaitCallback(ctx context.Context, st *sendStatus) {
	timer := time.NewTimer(l.opts.AckWait)
	defer timer.Stop()
	select {
	case <-st.signal:
	case <-timer.C:
	case <-ctx.Done():
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
