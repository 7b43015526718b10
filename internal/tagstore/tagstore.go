// Package tagstore treats a MIFARE Classic tag as a small key-value store of
// 16-byte fields addressed by absolute block number.
package tagstore

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
)

const BlockSize = 16

// Key is a sector key. Every sector on a station tag uses DefaultKey.
type Key [6]byte

var DefaultKey = Key{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

var (
	ErrTrailerBlock = errors.New("refusing to write sector trailer block")
	ErrNoTag        = errors.New("no tag present")
)

// Card is one authenticated block transaction on the tag currently in the
// field. Implementations authenticate the sector containing block with key A
// before each read or write.
type Card interface {
	ReadBlock(block int, key Key) ([BlockSize]byte, error)
	WriteBlock(block int, key Key, data [BlockSize]byte) error
}

// Reader is a tag reader: presence detection plus block access.
type Reader interface {
	Card
	// ReadUID returns the UID of a tag in the field, or ErrNoTag.
	ReadUID() ([]byte, error)
	// Halt ends the current presentation so the same tag is not re-read
	// until it leaves and re-enters the field.
	Halt() error
}

type Store struct {
	card   Card
	key    Key
	logger *slog.Logger
}

func New(card Card, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{card: card, key: DefaultKey, logger: logger}
}

// IsTrailer reports whether block is the key/access trailer of its sector.
func IsTrailer(block int) bool {
	return (block+1)%4 == 0
}

// ReadField returns the text stored in block up to the first NUL byte.
// Authentication and read failures are logged and yield "".
func (s *Store) ReadField(block int) string {
	data, err := s.card.ReadBlock(block, s.key)
	if err != nil {
		s.logger.Warn("tag read failed", "block", block, "sector", block/4, "error", err)
		return ""
	}
	if n := bytes.IndexByte(data[:], 0); n >= 0 {
		return string(data[:n])
	}
	return string(data[:])
}

// WriteField writes a raw 16-byte block.
func (s *Store) WriteField(block int, data [BlockSize]byte) error {
	if IsTrailer(block) {
		s.logger.Error("tag write refused", "block", block, "error", ErrTrailerBlock)
		return fmt.Errorf("block %d: %w", block, ErrTrailerBlock)
	}
	if err := s.card.WriteBlock(block, s.key, data); err != nil {
		s.logger.Warn("tag write failed", "block", block, "sector", block/4, "error", err)
		return fmt.Errorf("write block %d: %w", block, err)
	}
	s.logger.Debug("tag block written", "block", block)
	return nil
}

// WriteText stores text NUL-terminated, keeping at most 15 bytes of it.
func (s *Store) WriteText(block int, text string) error {
	var data [BlockSize]byte
	copy(data[:BlockSize-1], text)
	return s.WriteField(block, data)
}

func (s *Store) ClearField(block int) error {
	return s.WriteField(block, [BlockSize]byte{})
}

// HasWeight reports whether a value returned by ReadField is a stored
// weight: non-empty and not a zero weight ("0" or "0.00").
func HasWeight(v string) bool {
	return v != "" && v != "0" && v != "0.00"
}
