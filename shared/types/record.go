package types

import (
	"fmt"
	"time"
)

// Kind is the measurement-type discriminator carried by every record.
// It is fixed per station role and never changes during a session.
type Kind uint8

const (
	KindRawMaterial      Kind = 1
	KindNetVehicleWeight Kind = 2
	KindMoistureRatio    Kind = 3
)

// Valid reports whether k is one of the three known kinds.
func (k Kind) Valid() bool {
	return k >= KindRawMaterial && k <= KindMoistureRatio
}

func (k Kind) String() string {
	switch k {
	case KindRawMaterial:
		return "raw-material"
	case KindNetVehicleWeight:
		return "net-vehicle-weight"
	case KindMoistureRatio:
		return "moisture-ratio"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ParseKind accepts either the numeric form ("1".."3") or the String() form.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "1", "raw-material":
		return KindRawMaterial, nil
	case "2", "net-vehicle-weight":
		return KindNetVehicleWeight, nil
	case "3", "moisture-ratio":
		return KindMoistureRatio, nil
	default:
		return 0, fmt.Errorf("unknown station kind %q (allowed: raw-material, net-vehicle-weight, moisture-ratio)", s)
	}
}

// WeightRecord is one measurement sent from a station to the gateway.
type WeightRecord struct {
	TagID   string `json:"tag_id"`
	Payload string `json:"payload"`
	Kind    Kind   `json:"kind"`
}

// StationHealth represents station liveness as seen by the gateway.
type StationHealth struct {
	StationID   string    `json:"station_id"`
	Kind        Kind      `json:"kind"`
	LastSeen    time.Time `json:"last_seen"`
	LastOutcome string    `json:"last_outcome,omitempty"`
	Sequence    uint32    `json:"sequence"`
	Healthy     bool      `json:"healthy"`
}
