package beacon

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"rubberweigh/internal/modules/deliveries/types"
	"rubberweigh/internal/utils"
	shared "rubberweigh/shared/types"
)

const dedupMaxSeqsPerDevice = 500

type StationRecorder interface {
	UpsertStation(ctx context.Context, s types.Station) error
}

type HealthPublisher interface {
	PublishStationHealth(prefix string, health shared.StationHealth) error
}

// Handler turns beacon matches into station liveness updates. Repeated
// advertisements of the same sequence from one address are ignored.
type Handler struct {
	recorder  StationRecorder
	publisher HealthPublisher
	prefix    string
	logger    *slog.Logger
	onStation func(types.Station)

	dedupMu sync.Mutex
	seen    map[string]map[uint32]struct{}
}

func NewHandler(recorder StationRecorder, publisher HealthPublisher, topicPrefix string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		recorder:  recorder,
		publisher: publisher,
		prefix:    topicPrefix,
		logger:    logger,
		seen:      make(map[string]map[uint32]struct{}),
	}
}

// OnStation registers a callback run after every accepted sighting.
func (h *Handler) OnStation(fn func(types.Station)) {
	h.onStation = fn
}

// StationID names a station from its advertised local name, falling back to
// the device id.
func StationID(m Match, s Status) string {
	if m.LocalName != "" {
		return m.LocalName
	}
	return fmt.Sprintf("ble-%08X", s.DeviceID)
}

func (h *Handler) HandleMatch(ctx context.Context, m Match) bool {
	st, err := ParseStatus(m.Data)
	if err != nil {
		h.logger.Debug("ble: ignore non-station payload", "addr", m.Address, "error", err)
		return false
	}
	if !h.firstSighting(m.Address, st.Sequence) {
		return false
	}

	seenAt := m.SeenAt
	if seenAt.IsZero() {
		seenAt = time.Now()
	}
	station := types.Station{
		ID:          StationID(m, st),
		Kind:        st.Kind,
		LastSeen:    seenAt,
		LastOutcome: st.Outcome.String(),
		Sequence:    st.Sequence,
		Source:      "ble",
	}

	if h.recorder != nil {
		if err := h.recorder.UpsertStation(ctx, station); err != nil {
			h.logger.Warn("ble: failed to record station", "station_id", station.ID, "error", err)
		}
	}
	if h.publisher != nil {
		health := shared.StationHealth{
			StationID:   station.ID,
			Kind:        station.Kind,
			LastSeen:    station.LastSeen,
			LastOutcome: station.LastOutcome,
			Sequence:    station.Sequence,
			Healthy:     st.Outcome != OutcomeTransmitFailed,
		}
		if err := h.publisher.PublishStationHealth(h.prefix, health); err != nil {
			h.logger.Warn("ble: failed to publish station health", "station_id", station.ID, "error", err)
		}
	}
	if h.onStation != nil {
		h.onStation(station)
	}

	h.logger.Info("ble: station seen",
		"station_id", station.ID,
		"addr", m.Address,
		"rssi", m.RSSI,
		"seq", st.Sequence,
		"outcome", station.LastOutcome,
		"data", utils.BytesToHex(m.Data),
	)
	return true
}

func (h *Handler) firstSighting(addr string, seq uint32) bool {
	h.dedupMu.Lock()
	defer h.dedupMu.Unlock()
	if h.seen[addr] == nil {
		h.seen[addr] = make(map[uint32]struct{})
	}
	if _, ok := h.seen[addr][seq]; ok {
		return false
	}
	if len(h.seen[addr]) >= dedupMaxSeqsPerDevice {
		h.seen[addr] = make(map[uint32]struct{})
	}
	h.seen[addr][seq] = struct{}{}
	return true
}

// StartListener runs listener in the background, feeding this handler. A
// listener that cannot start is logged and the gateway continues without BLE.
func (h *Handler) StartListener(ctx context.Context, listener *Listener) {
	go func() {
		err := listener.Run(ctx, func(m Match) { h.HandleMatch(ctx, m) })
		if err != nil {
			h.logger.Warn("ble listener could not be initialized; gateway continues without BLE",
				"error", err,
			)
		}
	}()
}
