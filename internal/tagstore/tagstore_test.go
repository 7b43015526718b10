package tagstore

import (
	"errors"
	"io"
	"log/slog"
	"testing"
)

type fakeCard struct {
	blocks    map[int][BlockSize]byte
	authFail  map[int]bool
	writeFail bool
	writes    []int
	lastKey   Key
}

func newFakeCard() *fakeCard {
	return &fakeCard{blocks: map[int][BlockSize]byte{}, authFail: map[int]bool{}}
}

func (c *fakeCard) ReadBlock(block int, key Key) ([BlockSize]byte, error) {
	c.lastKey = key
	if c.authFail[block/4] {
		return [BlockSize]byte{}, errors.New("auth failed")
	}
	return c.blocks[block], nil
}

func (c *fakeCard) WriteBlock(block int, key Key, data [BlockSize]byte) error {
	c.lastKey = key
	if c.authFail[block/4] || c.writeFail {
		return errors.New("write failed")
	}
	c.writes = append(c.writes, block)
	c.blocks[block] = data
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func block(s string) [BlockSize]byte {
	var b [BlockSize]byte
	copy(b[:], s)
	return b
}

func TestReadField(t *testing.T) {
	card := newFakeCard()
	card.blocks[2] = block("NG.VIET HOANG")
	card.blocks[5] = block("ABCDEFGHIJKLMNOP") // no NUL at all
	store := New(card, quietLogger())

	if got := store.ReadField(2); got != "NG.VIET HOANG" {
		t.Errorf("ReadField(2) = %q, want %q", got, "NG.VIET HOANG")
	}
	if got := store.ReadField(5); got != "ABCDEFGHIJKLMNOP" {
		t.Errorf("ReadField(5) = %q, want full block", got)
	}
	if got := store.ReadField(6); got != "" {
		t.Errorf("ReadField(empty) = %q, want empty", got)
	}
	if card.lastKey != DefaultKey {
		t.Errorf("key = % X, want default key", card.lastKey)
	}
}

func TestReadField_AuthFailureYieldsEmpty(t *testing.T) {
	card := newFakeCard()
	card.blocks[2] = block("NAME")
	card.authFail[0] = true
	store := New(card, quietLogger())

	if got := store.ReadField(2); got != "" {
		t.Fatalf("ReadField = %q, want empty on auth failure", got)
	}
}

func TestWriteField_RefusesTrailer(t *testing.T) {
	card := newFakeCard()
	store := New(card, quietLogger())

	for _, b := range []int{3, 7, 11, 63} {
		err := store.WriteField(b, block("x"))
		if !errors.Is(err, ErrTrailerBlock) {
			t.Errorf("WriteField(%d) error = %v, want ErrTrailerBlock", b, err)
		}
	}
	if len(card.writes) != 0 {
		t.Fatalf("card saw writes %v, want none", card.writes)
	}
}

func TestWriteText_TruncatesAndTerminates(t *testing.T) {
	card := newFakeCard()
	store := New(card, quietLogger())

	if err := store.WriteText(4, "12345678901234567890"); err != nil {
		t.Fatalf("WriteText: %v", err)
	}
	got := card.blocks[4]
	if string(got[:15]) != "123456789012345" {
		t.Errorf("block = %q", got[:15])
	}
	if got[15] != 0 {
		t.Errorf("last byte = 0x%02X, want NUL", got[15])
	}
	if v := store.ReadField(4); v != "123456789012345" {
		t.Errorf("ReadField = %q", v)
	}
}

func TestClearField(t *testing.T) {
	card := newFakeCard()
	card.blocks[4] = block("812.40")
	store := New(card, quietLogger())

	if err := store.ClearField(4); err != nil {
		t.Fatalf("ClearField: %v", err)
	}
	if card.blocks[4] != ([BlockSize]byte{}) {
		t.Fatalf("block not zeroed: % X", card.blocks[4])
	}
}

func TestWriteField_PropagatesCardError(t *testing.T) {
	card := newFakeCard()
	card.writeFail = true
	store := New(card, quietLogger())

	if err := store.WriteField(4, block("1")); err == nil {
		t.Fatal("WriteField error = nil, want non-nil")
	}
}

func TestHasWeight(t *testing.T) {
	tests := []struct {
		name    string
		content string
		auth    bool
		want    bool
	}{
		{name: "empty", content: "", want: false},
		{name: "zero", content: "0", want: false},
		{name: "zero two decimals", content: "0.00", want: false},
		{name: "weight", content: "1250.50", want: true},
		{name: "negative", content: "-3.00", want: true},
		{name: "zero one decimal counts", content: "0.0", want: true},
		{name: "auth failure", content: "1250.50", auth: true, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			card := newFakeCard()
			card.blocks[4] = block(tt.content)
			card.authFail[1] = tt.auth
			store := New(card, quietLogger())
			if got := HasWeight(store.ReadField(4)); got != tt.want {
				t.Errorf("HasWeight = %v, want %v", got, tt.want)
			}
		})
	}
}
