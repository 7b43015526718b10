package beacon

import (
	"encoding/binary"
	"fmt"

	"rubberweigh/shared/types"
)

// Station beacon manufacturer data (little-endian): magic 0x01 0xD1,
// device_id uint32, kind uint8, last outcome uint8, sequence uint32
// (12 bytes total).
const (
	CompanyID     = 0xFFFF
	payloadMagic0 = 0x01
	payloadMagic1 = 0xD1
	payloadLen    = 12
)

// Outcome is the result of a station's most recent tag presentation.
type Outcome uint8

const (
	OutcomeNone Outcome = iota
	OutcomeTransmitted
	OutcomeTransmitFailed
	OutcomeCheckpointed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNone:
		return ""
	case OutcomeTransmitted:
		return "transmitted"
	case OutcomeTransmitFailed:
		return "transmit-failed"
	case OutcomeCheckpointed:
		return "checkpointed"
	default:
		return fmt.Sprintf("outcome(%d)", uint8(o))
	}
}

type Status struct {
	DeviceID uint32
	Kind     types.Kind
	Outcome  Outcome
	Sequence uint32
}

func (s Status) Encode() []byte {
	b := make([]byte, payloadLen)
	b[0] = payloadMagic0
	b[1] = payloadMagic1
	binary.LittleEndian.PutUint32(b[2:6], s.DeviceID)
	b[6] = byte(s.Kind)
	b[7] = byte(s.Outcome)
	binary.LittleEndian.PutUint32(b[8:12], s.Sequence)
	return b
}

// ParseStatus parses manufacturer data from a station advertisement.
func ParseStatus(data []byte) (Status, error) {
	if len(data) < payloadLen {
		return Status{}, fmt.Errorf("payload too short: %d", len(data))
	}
	if data[0] != payloadMagic0 || data[1] != payloadMagic1 {
		return Status{}, fmt.Errorf("invalid magic: %02X %02X", data[0], data[1])
	}
	s := Status{
		DeviceID: binary.LittleEndian.Uint32(data[2:6]),
		Kind:     types.Kind(data[6]),
		Outcome:  Outcome(data[7]),
		Sequence: binary.LittleEndian.Uint32(data[8:12]),
	}
	if !s.Kind.Valid() {
		return Status{}, fmt.Errorf("invalid kind %d", data[6])
	}
	return s, nil
}

// Prefix is the manufacturer data prefix the listener filters on.
func Prefix() []byte {
	return []byte{payloadMagic0, payloadMagic1}
}
