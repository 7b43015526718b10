// Package session runs one measurement per tag presentation.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"

	"rubberweigh/internal/display"
	"rubberweigh/internal/link"
	"rubberweigh/internal/scale"
	"rubberweigh/internal/tagstore"
	"rubberweigh/internal/utils"
	"rubberweigh/shared/types"
)

type WeightReader interface {
	ReadOneWeight(ctx context.Context) (float64, error)
}

type Sender interface {
	Send(ctx context.Context, rec types.WeightRecord) (link.Result, error)
}

type Presenter interface {
	Show(panel display.Panel)
	ShowLinkError()
}

// Session is the state of one tag presentation. A new one is created for
// every presentation.
type Session struct {
	TagID    string
	Name     string
	First    float64
	Second   float64
	Derived  float64
	Readings int
	Attempts int
	Sent     bool
	State    State
	Record   types.WeightRecord
}

func (s *Session) panel() display.Panel {
	p := display.Panel{Name: s.Name, TagID: s.TagID, Payload: s.Record.Payload}
	if s.Readings >= 1 {
		v := s.First
		p.First = &v
	}
	if s.Readings >= 2 {
		v := s.Second
		p.Second = &v
	}
	return p
}

type Options struct {
	Kind        types.Kind
	NameBlock   int
	WeightBlock int
}

type Machine struct {
	opts      Options
	tags      *tagstore.Store
	weights   WeightReader
	sender    Sender
	presenter Presenter
	logger    *slog.Logger
}

func NewMachine(opts Options, tags *tagstore.Store, weights WeightReader, sender Sender, presenter Presenter, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{
		opts:      opts,
		tags:      tags,
		weights:   weights,
		sender:    sender,
		presenter: presenter,
		logger:    logger.With("kind", opts.Kind.String()),
	}
}

// Run takes the tag with the given UID from detection to a terminal state.
// It only fails when a scale read fails, which includes ctx being cancelled
// while waiting for a load.
func (m *Machine) Run(ctx context.Context, uid []byte) (*Session, error) {
	s := &Session{State: Idle}

	s.TagID = utils.BytesToHex(uid)
	m.transition(s, TagDetected)

	// An unreadable name block leaves the name blank.
	s.Name = m.tags.ReadField(m.opts.NameBlock)
	m.transition(s, NameResolved)
	m.presenter.Show(s.panel())

	m.transition(s, Measuring)
	var err error
	switch m.opts.Kind {
	case types.KindRawMaterial:
		err = m.measureRaw(ctx, s)
	case types.KindNetVehicleWeight:
		err = m.measureNet(ctx, s)
	case types.KindMoistureRatio:
		err = m.measureMoisture(ctx, s)
	default:
		err = fmt.Errorf("unsupported station kind %d", m.opts.Kind)
	}
	if err != nil {
		return s, err
	}
	if s.State == Checkpointed {
		m.presenter.Show(s.panel())
		return s, nil
	}

	m.transition(s, Computed)
	m.presenter.Show(s.panel())

	m.transmit(ctx, s)
	return s, nil
}

func (m *Machine) measureRaw(ctx context.Context, s *Session) error {
	v, err := m.weights.ReadOneWeight(ctx)
	if err != nil {
		return err
	}
	s.First, s.Readings = v, 1
	s.Derived = v
	m.setRecord(s, strconv.FormatFloat(v, 'f', -1, 64))
	return nil
}

func (m *Machine) measureNet(ctx context.Context, s *Session) error {
	stored := m.tags.ReadField(m.opts.WeightBlock)
	if !tagstore.HasWeight(stored) {
		v, err := m.weights.ReadOneWeight(ctx)
		if err != nil {
			return err
		}
		s.First, s.Readings = v, 1
		first := fmt.Sprintf("%.2f", v)
		if err := m.tags.WriteText(m.opts.WeightBlock, first); err != nil {
			// The reading is lost with the write; the next scan of this tag
			// starts over as a first scan.
			m.logger.Error("storing first weight on tag failed", "tag_id", s.TagID, "weight", first, "error", err)
		} else {
			m.logger.Info("first weight stored on tag", "tag_id", s.TagID, "weight", first)
		}
		m.transition(s, Checkpointed)
		return nil
	}

	prior, _ := scale.ParseLeadingFloat(stored)
	s.First, s.Readings = prior, 1
	if err := m.tags.ClearField(m.opts.WeightBlock); err != nil {
		m.logger.Warn("clearing stored weight failed", "tag_id", s.TagID, "error", err)
	}
	m.presenter.Show(s.panel())

	v, err := m.weights.ReadOneWeight(ctx)
	if err != nil {
		return err
	}
	s.Second, s.Readings = v, 2
	s.Derived = prior - v
	m.setRecord(s, fmt.Sprintf("%.2f", s.Derived))
	return nil
}

func (m *Machine) measureMoisture(ctx context.Context, s *Session) error {
	var wet float64
	for {
		v, err := m.weights.ReadOneWeight(ctx)
		if err != nil {
			return err
		}
		if v != 0 {
			wet = v
			break
		}
		m.logger.Warn("wet weight reads zero, waiting for a new reading", "tag_id", s.TagID)
	}
	s.First, s.Readings = wet, 1
	m.presenter.Show(s.panel())

	dry, err := m.weights.ReadOneWeight(ctx)
	if err != nil {
		return err
	}
	s.Second, s.Readings = dry, 2
	s.Derived = dry / wet
	m.setRecord(s, fmt.Sprintf("%.2f", s.Derived))
	return nil
}

func (m *Machine) setRecord(s *Session, payload string) {
	s.Record = types.WeightRecord{TagID: s.TagID, Payload: payload, Kind: m.opts.Kind}
}

func (m *Machine) transmit(ctx context.Context, s *Session) {
	if math.IsNaN(s.Derived) || math.IsInf(s.Derived, 0) {
		m.logger.Error("derived value is not finite, not sending", "tag_id", s.TagID, "value", s.Derived)
		m.transition(s, TransmitFailed)
		m.presenter.ShowLinkError()
		return
	}

	res, err := m.sender.Send(ctx, s.Record)
	s.Attempts, s.Sent = res.Attempts, res.Delivered
	if err != nil {
		m.logger.Error("record cannot be sent", "tag_id", s.TagID, "payload", s.Record.Payload, "error", err)
	}
	if !s.Sent {
		m.transition(s, TransmitFailed)
		m.presenter.ShowLinkError()
		return
	}
	m.transition(s, Transmitted)
}

func (m *Machine) transition(s *Session, to State) {
	m.logger.Debug("session state", "tag_id", s.TagID, "from", s.State.String(), "to", to.String())
	s.State = to
}
