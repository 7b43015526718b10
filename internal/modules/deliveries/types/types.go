package types

import (
	"time"

	shared "rubberweigh/shared/types"
)

// Outcome of one forwarded record.
type Outcome string

const (
	// OutcomeDelivered: the backend answered 2xx.
	OutcomeDelivered Outcome = "delivered"
	// OutcomeRejected: the backend answered with a non-2xx status. The record
	// is not retried.
	OutcomeRejected Outcome = "rejected"
	// OutcomeFailed: every attempt failed at the transport level.
	OutcomeFailed Outcome = "failed"
	// OutcomeInvalid: the frame or its payload could not be turned into a
	// request.
	OutcomeInvalid Outcome = "invalid"
)

type Delivery struct {
	ID           int64       `json:"id"`
	StationID    string      `json:"stationId"`
	TagID        string      `json:"tagId"`
	Kind         shared.Kind `json:"kind"`
	Payload      string      `json:"payload"`
	Method       string      `json:"method,omitempty"`
	Path         string      `json:"path,omitempty"`
	Attempts     int         `json:"attempts"`
	StatusCode   int         `json:"statusCode,omitempty"`
	Outcome      Outcome     `json:"outcome"`
	Error        string      `json:"error,omitempty"`
	ResponseBody string      `json:"responseBody,omitempty"`
	CreatedAt    time.Time   `json:"createdAt"`
}

// Responded reports whether the backend returned any HTTP response.
func (d Delivery) Responded() bool {
	return d.StatusCode > 0
}

type Station struct {
	ID          string      `json:"id"`
	Kind        shared.Kind `json:"kind"`
	LastSeen    time.Time   `json:"lastSeen"`
	LastOutcome string      `json:"lastOutcome,omitempty"`
	Sequence    uint32      `json:"sequence"`
	Source      string      `json:"source"`
}
