package relay

import (
	"log/slog"
	"sync/atomic"
	"time"

	"rubberweigh/internal/mqtt"
)

// Message is one received frame waiting to be forwarded.
type Message struct {
	StationID  string
	Frame      []byte
	ReceivedAt time.Time
}

// Inbox hands frames from the subscription callback to the forwarding loop.
// Receive never blocks: when the inbox is full the frame is dropped.
type Inbox struct {
	ch      chan Message
	prefix  string
	logger  *slog.Logger
	dropped atomic.Uint64
}

func NewInbox(size int, topicPrefix string, logger *slog.Logger) *Inbox {
	if size <= 0 {
		size = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Inbox{ch: make(chan Message, size), prefix: topicPrefix, logger: logger}
}

// Receive is the MQTT message handler for the records topics.
func (i *Inbox) Receive(topic string, payload []byte) {
	station, ok := mqtt.StationFromTopic(i.prefix, topic)
	if !ok {
		i.logger.Warn("record on unexpected topic", "topic", topic)
		return
	}
	i.Offer(Message{
		StationID:  station,
		Frame:      append([]byte(nil), payload...),
		ReceivedAt: time.Now(),
	})
}

func (i *Inbox) Offer(msg Message) bool {
	select {
	case i.ch <- msg:
		return true
	default:
		n := i.dropped.Add(1)
		i.logger.Warn("inbox full, record dropped", "station_id", msg.StationID, "dropped_total", n)
		return false
	}
}

func (i *Inbox) C() <-chan Message {
	return i.ch
}

func (i *Inbox) Dropped() uint64 {
	return i.dropped.Load()
}
