package scale

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

// OpenSerial opens the indicator port at 8N1. Reads return (0, nil) after
// pollTimeout with no data so the Reader can idle between polls.
func OpenSerial(name string, baudRate int, pollTimeout time.Duration) (serial.Port, error) {
	if baudRate <= 0 {
		baudRate = 9600
	}

	port, err := serial.Open(name, &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open scale port %s: %w", name, err)
	}

	if err := port.SetReadTimeout(pollTimeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", name, err)
	}
	return port, nil
}
