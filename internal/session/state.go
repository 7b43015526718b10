package session

import "fmt"

type State int

const (
	Idle State = iota
	TagDetected
	NameResolved
	Measuring
	Computed
	Transmitted
	TransmitFailed
	// Checkpointed ends the first scan of a two-scan tag: the reading is
	// parked on the tag and nothing is sent.
	Checkpointed
)

var stateNames = [...]string{
	Idle:           "idle",
	TagDetected:    "tag-detected",
	NameResolved:   "name-resolved",
	Measuring:      "measuring",
	Computed:       "computed",
	Transmitted:    "transmitted",
	TransmitFailed: "transmit-failed",
	Checkpointed:   "checkpointed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether a presentation ends in s.
func (s State) Terminal() bool {
	return s == Transmitted || s == TransmitFailed || s == Checkpointed
}
