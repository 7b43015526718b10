package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"testing"

	"rubberweigh/internal/display"
	"rubberweigh/internal/link"
	"rubberweigh/internal/tagstore"
	"rubberweigh/shared/types"
)

const (
	nameBlock   = 2
	weightBlock = 4
)

var testUID = []byte{0x04, 0xA1, 0x0B, 0xFF}

type memCard struct {
	blocks  map[int][tagstore.BlockSize]byte
	readErr map[int]error
	reads   map[int]int
}

func newMemCard() *memCard {
	return &memCard{
		blocks:  map[int][tagstore.BlockSize]byte{},
		readErr: map[int]error{},
		reads:   map[int]int{},
	}
}

func (c *memCard) ReadBlock(block int, _ tagstore.Key) ([tagstore.BlockSize]byte, error) {
	c.reads[block]++
	if err := c.readErr[block]; err != nil {
		return [tagstore.BlockSize]byte{}, err
	}
	return c.blocks[block], nil
}

func (c *memCard) WriteBlock(block int, _ tagstore.Key, data [tagstore.BlockSize]byte) error {
	c.blocks[block] = data
	return nil
}

func (c *memCard) setText(block int, s string) {
	var b [tagstore.BlockSize]byte
	copy(b[:], s)
	c.blocks[block] = b
}

var errScaleDone = errors.New("no more readings")

type scriptedScale struct {
	values []float64
	reads  int
}

func (s *scriptedScale) ReadOneWeight(context.Context) (float64, error) {
	if s.reads >= len(s.values) {
		return 0, errScaleDone
	}
	v := s.values[s.reads]
	s.reads++
	return v, nil
}

type fakeSender struct {
	result link.Result
	sent   []types.WeightRecord
}

func (f *fakeSender) Send(_ context.Context, rec types.WeightRecord) (link.Result, error) {
	f.sent = append(f.sent, rec)
	return f.result, nil
}

type fakePresenter struct {
	panels     []display.Panel
	linkErrors int
}

func (p *fakePresenter) Show(panel display.Panel) { p.panels = append(p.panels, panel) }
func (p *fakePresenter) ShowLinkError()           { p.linkErrors++ }

type harness struct {
	card      *memCard
	sender    *fakeSender
	presenter *fakePresenter
	kind      types.Kind
}

func newHarness(kind types.Kind) *harness {
	return &harness{
		card:      newMemCard(),
		sender:    &fakeSender{result: link.Result{Attempts: 1, Delivered: true}},
		presenter: &fakePresenter{},
		kind:      kind,
	}
}

func (h *harness) run(t *testing.T, readings ...float64) (*Session, error) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := NewMachine(
		Options{Kind: h.kind, NameBlock: nameBlock, WeightBlock: weightBlock},
		tagstore.New(h.card, logger),
		&scriptedScale{values: readings},
		h.sender,
		h.presenter,
		logger,
	)
	return m.Run(context.Background(), testUID)
}

func TestRun_RawMaterial(t *testing.T) {
	h := newHarness(types.KindRawMaterial)
	h.card.setText(nameBlock, "NG.VIET HOANG")

	s, err := h.run(t, 12.5)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if s.State != Transmitted || !s.Sent || s.Attempts != 1 {
		t.Fatalf("session = %+v, want transmitted after 1 attempt", s)
	}
	want := types.WeightRecord{TagID: "04A10BFF", Payload: "12.5", Kind: types.KindRawMaterial}
	if len(h.sender.sent) != 1 || h.sender.sent[0] != want {
		t.Fatalf("sent = %+v, want [%+v]", h.sender.sent, want)
	}
	if s.Name != "NG.VIET HOANG" {
		t.Errorf("Name = %q", s.Name)
	}
}

func TestRun_NetVehicleWeightTwoScans(t *testing.T) {
	h := newHarness(types.KindNetVehicleWeight)

	first, err := h.run(t, 1500.456)
	if err != nil {
		t.Fatalf("first scan: %v", err)
	}
	if first.State != Checkpointed {
		t.Fatalf("first scan state = %v, want checkpointed", first.State)
	}
	if len(h.sender.sent) != 0 {
		t.Fatalf("first scan sent %+v", h.sender.sent)
	}
	var want [tagstore.BlockSize]byte
	copy(want[:], "1500.46")
	if h.card.blocks[weightBlock] != want {
		t.Fatalf("weight block = %q, want 1500.46", h.card.blocks[weightBlock])
	}

	second, err := h.run(t, 1200.2)
	if err != nil {
		t.Fatalf("second scan: %v", err)
	}
	if second.State != Transmitted {
		t.Fatalf("second scan state = %v, want transmitted", second.State)
	}
	if second.First != 1500.46 || second.Second != 1200.2 {
		t.Errorf("readings = %v, %v", second.First, second.Second)
	}
	if h.card.blocks[weightBlock] != ([tagstore.BlockSize]byte{}) {
		t.Errorf("weight block not cleared: %q", h.card.blocks[weightBlock])
	}
	if len(h.sender.sent) != 1 || h.sender.sent[0].Payload != "300.26" {
		t.Fatalf("sent = %+v, want payload 300.26", h.sender.sent)
	}

	// The cleared block makes the next presentation a first scan again.
	third, err := h.run(t, 900)
	if err != nil {
		t.Fatalf("third scan: %v", err)
	}
	if third.State != Checkpointed {
		t.Fatalf("third scan state = %v, want checkpointed", third.State)
	}
}

func TestRun_NetVehicleWeightReadsStoredWeightOnce(t *testing.T) {
	h := newHarness(types.KindNetVehicleWeight)
	h.card.setText(weightBlock, "1500.46")

	s, err := h.run(t, 1200.2)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n := h.card.reads[weightBlock]; n != 1 {
		t.Errorf("weight block read %d times, want 1", n)
	}
	if s.State != Transmitted || s.First != 1500.46 {
		t.Fatalf("state = %v, first = %v", s.State, s.First)
	}
}

func TestRun_NetVehicleWeightUnreadableBlockIsFirstScan(t *testing.T) {
	h := newHarness(types.KindNetVehicleWeight)
	h.card.setText(weightBlock, "1500.46")
	h.card.readErr[weightBlock] = errors.New("auth failed")

	s, err := h.run(t, 42)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if s.State != Checkpointed {
		t.Fatalf("state = %v, want checkpointed", s.State)
	}
	if len(h.sender.sent) != 0 {
		t.Errorf("sent %+v for an unreadable block", h.sender.sent)
	}
}

func TestRun_NetVehicleWeightZeroBlockIsFirstScan(t *testing.T) {
	h := newHarness(types.KindNetVehicleWeight)
	h.card.setText(weightBlock, "0.00")

	s, err := h.run(t, 42)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if s.State != Checkpointed {
		t.Fatalf("state = %v, want checkpointed", s.State)
	}
}

func TestRun_NetVehicleWeightNegativeDifference(t *testing.T) {
	h := newHarness(types.KindNetVehicleWeight)
	h.card.setText(weightBlock, "1000.00")

	if _, err := h.run(t, 1250.5); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := h.sender.sent[0].Payload; got != "-250.50" {
		t.Fatalf("payload = %q, want -250.50", got)
	}
}

var twoDecimals = regexp.MustCompile(`^-?\d+\.\d{2}$`)

func TestRun_MoistureRatio(t *testing.T) {
	tests := []struct {
		name     string
		readings []float64
		want     string
	}{
		{name: "grams", readings: []float64{200, 70}, want: "0.35"},
		{name: "tiny", readings: []float64{0.003, 0.001}, want: "0.33"},
		{name: "large", readings: []float64{1e6, 2.5e6}, want: "2.50"},
		{name: "whole ratio", readings: []float64{50, 100}, want: "2.00"},
		{name: "zero wet is re-read", readings: []float64{0, 0, 200, 50}, want: "0.25"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(types.KindMoistureRatio)
			s, err := h.run(t, tt.readings...)
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if s.State != Transmitted {
				t.Fatalf("state = %v", s.State)
			}
			got := h.sender.sent[0].Payload
			if got != tt.want {
				t.Errorf("payload = %q, want %q", got, tt.want)
			}
			if !twoDecimals.MatchString(got) {
				t.Errorf("payload %q does not have exactly two decimals", got)
			}
		})
	}
}

func TestRun_LinkFailure(t *testing.T) {
	h := newHarness(types.KindRawMaterial)
	h.sender.result = link.Result{Attempts: 5, Delivered: false}

	s, err := h.run(t, 3.25)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if s.State != TransmitFailed || s.Sent || s.Attempts != 5 {
		t.Fatalf("session = %+v, want failed after 5 attempts", s)
	}
	if h.presenter.linkErrors != 1 {
		t.Fatalf("link error shown %d times, want 1", h.presenter.linkErrors)
	}
}

func TestRun_UnreadableNameStillMeasures(t *testing.T) {
	h := newHarness(types.KindRawMaterial)
	h.card.readErr[nameBlock] = errors.New("auth failed")

	s, err := h.run(t, 7)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if s.Name != "" {
		t.Errorf("Name = %q, want empty", s.Name)
	}
	if s.State != Transmitted {
		t.Errorf("state = %v, want transmitted", s.State)
	}
}

func TestRun_ScaleErrorEndsSession(t *testing.T) {
	h := newHarness(types.KindMoistureRatio)

	s, err := h.run(t, 200)
	if !errors.Is(err, errScaleDone) {
		t.Fatalf("err = %v, want scale error", err)
	}
	if s.State.Terminal() {
		t.Errorf("state = %v, want a non-terminal state", s.State)
	}
	if len(h.sender.sent) != 0 {
		t.Errorf("sent %+v after a failed read", h.sender.sent)
	}
}

func TestRun_PanelShowsProgress(t *testing.T) {
	h := newHarness(types.KindMoistureRatio)
	h.card.setText(nameBlock, "B")

	if _, err := h.run(t, 200, 70); err != nil {
		t.Fatalf("Run: %v", err)
	}
	panels := h.presenter.panels
	if len(panels) != 3 {
		t.Fatalf("panels shown = %d, want 3", len(panels))
	}
	if panels[0].First != nil || panels[0].Name != "B" || panels[0].TagID != "04A10BFF" {
		t.Errorf("first panel = %+v", panels[0])
	}
	if panels[1].First == nil || *panels[1].First != 200 || panels[1].Second != nil {
		t.Errorf("second panel = %+v", panels[1])
	}
	last := panels[2]
	if last.Second == nil || *last.Second != 70 || last.Payload != "0.35" {
		t.Errorf("last panel = %+v", last)
	}
}

func TestStateString(t *testing.T) {
	if Checkpointed.String() != "checkpointed" || TransmitFailed.String() != "transmit-failed" {
		t.Errorf("unexpected names %q %q", Checkpointed, TransmitFailed)
	}
	if State(42).String() != "state(42)" {
		t.Errorf("State(42) = %q", State(42))
	}
}
