package tagstore

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/devices/v3/mfrc522"
	"periph.io/x/devices/v3/mfrc522/commands"
	"periph.io/x/host/v3"
)

// ErrReaderClosed is returned by reads after Close.
var ErrReaderClosed = errors.New("rfid reader closed")

type MFRC522Options struct {
	SPIPort  string // "" selects the default bus
	ResetPin string
	IRQPin   string
	Timeout  time.Duration
}

// MFRC522 is a Reader backed by an MFRC522 module on SPI.
//
// The driver resets the chip and re-energises the field on every poll, which
// wakes a halted tag, so a finished presentation is tracked by UID: the same
// tag is reported as absent until a poll finds the field empty.
type MFRC522 struct {
	dev     *mfrc522.Dev
	port    io.Closer
	timeout time.Duration
	readUID func(time.Duration) ([]byte, error)

	current []byte
	held    []byte
	closed  bool

	closeOnce sync.Once
	closeErr  error
}

func OpenMFRC522(opts MFRC522Options) (*MFRC522, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}

	port, err := spireg.Open(opts.SPIPort)
	if err != nil {
		return nil, fmt.Errorf("spi open %q: %w", opts.SPIPort, err)
	}

	reset := gpioreg.ByName(opts.ResetPin)
	if reset == nil {
		_ = port.Close()
		return nil, fmt.Errorf("reset pin %q not found", opts.ResetPin)
	}
	irq := gpioreg.ByName(opts.IRQPin)
	if irq == nil {
		_ = port.Close()
		return nil, fmt.Errorf("irq pin %q not found", opts.IRQPin)
	}

	m, err := newMFRC522(port, reset, irq, opts.Timeout)
	if err != nil {
		_ = port.Close()
		return nil, err
	}
	return m, nil
}

func newMFRC522(port spi.PortCloser, reset gpio.PinOut, irq gpio.PinIn, timeout time.Duration) (*MFRC522, error) {
	dev, err := mfrc522.NewSPI(port, reset, irq)
	if err != nil {
		return nil, fmt.Errorf("mfrc522 init: %w", err)
	}
	m := &MFRC522{dev: dev, port: port, timeout: timeout}
	m.readUID = dev.ReadUID
	return m, nil
}

// isEmptyField reports whether err is the driver's "no IRQ before the
// timeout" result, which is how an empty field shows up.
func isEmptyField(err error) bool {
	return strings.Contains(err.Error(), "timeout waiting for IRQ edge")
}

// ReadUID returns ErrNoTag when the field is empty or still holds the tag
// whose presentation was ended with Halt. Bus and protocol failures are
// returned as-is.
func (m *MFRC522) ReadUID() ([]byte, error) {
	if m.closed {
		return nil, ErrReaderClosed
	}
	uid, err := m.readUID(m.timeout)
	if err != nil {
		if isEmptyField(err) {
			m.held = nil
			return nil, ErrNoTag
		}
		return nil, fmt.Errorf("mfrc522 read uid: %w", err)
	}
	if len(uid) == 0 {
		m.held = nil
		return nil, ErrNoTag
	}
	if m.held != nil && bytes.Equal(uid, m.held) {
		return nil, ErrNoTag
	}
	m.held = nil
	m.current = bytes.Clone(uid)
	return uid, nil
}

func (m *MFRC522) ReadBlock(block int, key Key) ([BlockSize]byte, error) {
	var out [BlockSize]byte
	if m.closed {
		return out, ErrReaderClosed
	}
	data, err := m.dev.ReadCard(m.timeout, commands.PICC_AUTHENT1A, block/4, block%4, mfrc522.Key(key))
	if err != nil {
		return out, err
	}
	if len(data) < BlockSize {
		return out, fmt.Errorf("short block read: %d bytes", len(data))
	}
	copy(out[:], data[:BlockSize])
	return out, nil
}

func (m *MFRC522) WriteBlock(block int, key Key, data [BlockSize]byte) error {
	if m.closed {
		return ErrReaderClosed
	}
	return m.dev.WriteCard(m.timeout, commands.PICC_AUTHENT1A, block/4, block%4, data, mfrc522.Key(key))
}

// Halt ends the current presentation. The chip stays powered; only Close
// stops it.
func (m *MFRC522) Halt() error {
	if m.current != nil {
		m.held = m.current
		m.current = nil
	}
	return nil
}

// Close powers the chip down and releases the SPI port. It is safe to call
// more than once.
func (m *MFRC522) Close() error {
	m.closeOnce.Do(func() {
		m.closed = true
		m.closeErr = errors.Join(m.dev.Halt(), m.port.Close())
	})
	return m.closeErr
}
