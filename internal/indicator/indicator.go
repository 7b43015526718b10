// Package indicator drives the optional buzzer and heartbeat LED.
package indicator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

var initOnce = sync.OnceValue(func() error {
	_, err := host.Init()
	return err
})

// OpenPin resolves a GPIO by name ("GPIO17", "P1_11", ...). An empty name
// returns a nil pin, which every indicator treats as "not fitted".
func OpenPin(name string) (gpio.PinOut, error) {
	if name == "" {
		return nil, nil
	}
	if err := initOnce(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("gpio pin %q not found", name)
	}
	if err := p.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("gpio %s out: %w", name, err)
	}
	return p, nil
}

type Buzzer struct {
	pin    gpio.PinOut
	sleep  func(time.Duration)
	logger *slog.Logger
}

func NewBuzzer(pin gpio.PinOut, logger *slog.Logger) *Buzzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Buzzer{pin: pin, sleep: time.Sleep, logger: logger}
}

// Beep drives the buzzer high for d. It blocks for the duration of the tone.
func (b *Buzzer) Beep(d time.Duration) {
	if b == nil || b.pin == nil {
		return
	}
	if err := b.pin.Out(gpio.High); err != nil {
		b.logger.Warn("buzzer on failed", "pin", b.pin.Name(), "error", err)
		return
	}
	b.sleep(d)
	if err := b.pin.Out(gpio.Low); err != nil {
		b.logger.Warn("buzzer off failed", "pin", b.pin.Name(), "error", err)
	}
}

type LED struct {
	pin    gpio.PinOut
	logger *slog.Logger
}

func NewLED(pin gpio.PinOut, logger *slog.Logger) *LED {
	if logger == nil {
		logger = slog.Default()
	}
	return &LED{pin: pin, logger: logger}
}

// Blink toggles the LED every interval until ctx is done, then leaves it off.
func (l *LED) Blink(ctx context.Context, interval time.Duration) {
	if l == nil || l.pin == nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	level := gpio.Low
	for {
		select {
		case <-ctx.Done():
			_ = l.pin.Out(gpio.Low)
			return
		case <-ticker.C:
			level = !level
			if err := l.pin.Out(level); err != nil {
				l.logger.Warn("led toggle failed", "pin", l.pin.Name(), "error", err)
			}
		}
	}
}
