// Package relay forwards station records received by the gateway to the
// backend's HTTPS API.
package relay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"rubberweigh/internal/modules/deliveries/types"
	"rubberweigh/internal/utils"
	"rubberweigh/internal/wire"
	shared "rubberweigh/shared/types"
)

const (
	maxResponseBody = 4 << 10
	logBodyLimit    = 256
)

type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Recorder receives the outcome of every forwarded record.
type Recorder interface {
	RecordDelivery(ctx context.Context, d types.Delivery)
}

type Options struct {
	BaseURL     string
	MaxAttempts int
	RetryDelay  time.Duration
}

type Forwarder struct {
	client   Doer
	opts     Options
	recorder Recorder
	logger   *slog.Logger
}

func NewForwarder(client Doer, opts Options, recorder Recorder, logger *slog.Logger) *Forwarder {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	return &Forwarder{client: client, opts: opts, recorder: recorder, logger: logger}
}

// Run forwards inbox messages one at a time until ctx is done.
func (f *Forwarder) Run(ctx context.Context, inbox *Inbox) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-inbox.C():
			f.Handle(ctx, msg)
		}
	}
}

// Handle decodes one frame and forwards it.
func (f *Forwarder) Handle(ctx context.Context, msg Message) types.Delivery {
	rec, err := wire.Decode(msg.Frame)
	if err != nil {
		f.logger.Warn("invalid frame dropped", "station_id", msg.StationID, "len", len(msg.Frame), "error", err)
		d := types.Delivery{
			StationID: msg.StationID,
			Outcome:   types.OutcomeInvalid,
			Error:     err.Error(),
			CreatedAt: time.Now(),
		}
		f.record(ctx, d)
		return d
	}
	return f.Forward(ctx, msg.StationID, rec)
}

// Forward sends rec to the backend. Only transport errors are retried: any
// HTTP response, whatever its status, ends the attempts.
func (f *Forwarder) Forward(ctx context.Context, stationID string, rec shared.WeightRecord) types.Delivery {
	d := types.Delivery{
		StationID: stationID,
		TagID:     rec.TagID,
		Kind:      rec.Kind,
		Payload:   rec.Payload,
		CreatedAt: time.Now(),
	}
	logger := f.logger.With("station_id", stationID, "tag_id", rec.TagID, "kind", rec.Kind.String())

	route, body, err := BuildRequest(rec)
	if err != nil {
		logger.Warn("record dropped", "payload", rec.Payload, "error", err)
		d.Outcome = types.OutcomeInvalid
		d.Error = err.Error()
		f.record(ctx, d)
		return d
	}
	d.Method, d.Path = route.Method, route.Path
	url := f.opts.BaseURL + route.Path

	logger.Info("forwarding record", "method", route.Method, "url", url, "body", string(body))

	var lastErr error
	for attempt := 1; attempt <= f.opts.MaxAttempts; attempt++ {
		d.Attempts = attempt

		status, respBody, err := f.do(ctx, route.Method, url, body)
		if err == nil {
			d.StatusCode = status
			d.ResponseBody = respBody
			if status >= 200 && status < 300 {
				d.Outcome = types.OutcomeDelivered
			} else {
				d.Outcome = types.OutcomeRejected
			}
			logger.Info("backend responded",
				"status", status,
				"attempts", attempt,
				"response", utils.Truncate(respBody, logBodyLimit),
			)
			f.record(ctx, d)
			return d
		}

		lastErr = err
		logger.Warn("request failed", "attempt", attempt, "max_attempts", f.opts.MaxAttempts, "error", err)
		if attempt == f.opts.MaxAttempts || !sleepCtx(ctx, f.opts.RetryDelay) {
			break
		}
	}

	d.Outcome = types.OutcomeFailed
	if lastErr != nil {
		d.Error = lastErr.Error()
	}
	logger.Error("record dropped after transport failures", "attempts", d.Attempts, "error", lastErr)
	f.record(ctx, d)
	return d
}

func (f *Forwarder) do(ctx context.Context, method, url string, body []byte) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return 0, "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			f.logger.Debug("close response body", "error", err)
		}
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil && !errors.Is(err, io.EOF) {
		// The status line arrived, so the record counts as received.
		f.logger.Warn("reading response body failed", "status", resp.StatusCode, "error", err)
	}
	return resp.StatusCode, string(data), nil
}

func (f *Forwarder) record(ctx context.Context, d types.Delivery) {
	if f.recorder != nil {
		f.recorder.RecordDelivery(ctx, d)
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
