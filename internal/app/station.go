package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"rubberweigh/internal/beacon"
	"rubberweigh/internal/config"
	"rubberweigh/internal/display"
	"rubberweigh/internal/indicator"
	"rubberweigh/internal/link"
	"rubberweigh/internal/mqtt"
	"rubberweigh/internal/scale"
	"rubberweigh/internal/session"
	"rubberweigh/internal/tagstore"
)

const beepDuration = 200 * time.Millisecond

// RunStation opens the station hardware and runs the tag poll loop until ctx
// is done. A reader or radio that cannot be initialized is fatal.
func RunStation(ctx context.Context, cfg config.StationConfig, logger *slog.Logger) error {
	logger.Info("initializing station",
		"station_id", cfg.StationID,
		"kind", cfg.Kind.String(),
		"scale_port", cfg.ScalePort,
		"scale_baud", cfg.ScaleBaudRate,
		"rfid_spi", cfg.RFIDSPIPort,
		"mqtt_broker", cfg.MQTTBroker,
		"mqtt_port", cfg.MQTTPort,
		"mqtt_client_id", cfg.MQTTClientID,
	)

	reader, err := tagstore.OpenMFRC522(tagstore.MFRC522Options{
		SPIPort:  cfg.RFIDSPIPort,
		ResetPin: cfg.RFIDResetPin,
		IRQPin:   cfg.RFIDIRQPin,
		Timeout:  cfg.RFIDTimeout,
	})
	if err != nil {
		return fmt.Errorf("tag reader: %w", err)
	}
	defer func() {
		if err := reader.Close(); err != nil {
			logger.Warn("tag reader close", "error", err)
		}
	}()

	port, err := scale.OpenSerial(cfg.ScalePort, cfg.ScaleBaudRate, cfg.ScaleIdleDelay)
	if err != nil {
		return err
	}
	defer port.Close()

	mqttClient, err := mqtt.NewClient(cfg.Base, logger)
	if err != nil {
		return fmt.Errorf("radio: %w", err)
	}
	connectCtx, connectCancel := context.WithTimeout(ctx, 10*time.Second)
	err = mqttClient.Connect(connectCtx)
	connectCancel()
	if err != nil {
		return fmt.Errorf("radio: %w", err)
	}
	defer mqttClient.Disconnect()

	buzzerPin, err := indicator.OpenPin(cfg.BuzzerPin)
	if err != nil {
		logger.Warn("buzzer unavailable; continuing without it", "pin", cfg.BuzzerPin, "error", err)
	}

	panelOut, err := display.OpenOutput(cfg.DisplayOutput)
	if err != nil {
		return err
	}
	defer panelOut.Close()
	presenter := display.New(panelOut, cfg.Kind, cfg.DisplayClearAfter)
	sender := link.New(
		link.NewMQTTRadio(mqttClient, cfg.MQTTTopicPrefix, cfg.StationID),
		link.Options{MaxAttempts: cfg.LinkMaxAttempts, AckWait: cfg.LinkAckWait, RetryDelay: cfg.LinkRetryDelay},
		logger,
	)
	machine := session.NewMachine(session.Options{
		Kind:        cfg.Kind,
		NameBlock:   cfg.TagNameBlock,
		WeightBlock: cfg.TagWeightBlock,
	}, tagstore.New(reader, logger), scale.NewReader(port, cfg.ScaleIdleDelay, logger), sender, presenter, logger)

	loop := newStationLoop(reader, machine, presenter, indicator.NewBuzzer(buzzerPin, logger), cfg.TagPollInterval, logger)

	if cfg.BeaconEnabled {
		adv := beacon.NewAdvertiser(beacon.AdvertiserOptions{
			Adapter:   cfg.BeaconAdapter,
			LocalName: cfg.StationID,
			DeviceID:  cfg.BeaconDeviceID,
			Interval:  cfg.BeaconInterval,
		}, logger)
		go func() {
			err := adv.Run(ctx, func() beacon.Status {
				return beacon.Status{Kind: cfg.Kind, Outcome: loop.LastOutcome()}
			})
			if err != nil {
				logger.Warn("ble advertiser could not be initialized; station continues without beacon", "error", err)
			}
		}()
	}

	logger.Info("station ready; waiting for tags")
	return loop.Run(ctx)
}

type tagPoller interface {
	ReadUID() ([]byte, error)
	Halt() error
}

type sessionRunner interface {
	Run(ctx context.Context, uid []byte) (*session.Session, error)
}

type ticker interface {
	Tick(now time.Time) bool
}

type stationLoop struct {
	tags     tagPoller
	sessions sessionRunner
	display  ticker
	buzzer   *indicator.Buzzer
	interval time.Duration
	logger   *slog.Logger

	lastOutcome atomic.Uint32
}

func newStationLoop(tags tagPoller, sessions sessionRunner, display ticker, buzzer *indicator.Buzzer, interval time.Duration, logger *slog.Logger) *stationLoop {
	return &stationLoop{
		tags:     tags,
		sessions: sessions,
		display:  display,
		buzzer:   buzzer,
		interval: interval,
		logger:   logger,
	}
}

// LastOutcome is safe to call from any goroutine.
func (l *stationLoop) LastOutcome() beacon.Outcome {
	return beacon.Outcome(l.lastOutcome.Load())
}

// Run polls for tags until ctx is done. Only one session is ever in flight.
func (l *stationLoop) Run(ctx context.Context) error {
	t := time.NewTicker(l.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-t.C:
			l.display.Tick(now)
			if err := l.pollOnce(ctx); err != nil {
				return err
			}
		}
	}
}

func (l *stationLoop) pollOnce(ctx context.Context) error {
	uid, err := l.tags.ReadUID()
	if err != nil {
		if !errors.Is(err, tagstore.ErrNoTag) {
			l.logger.Warn("tag poll failed", "error", err)
		}
		return nil
	}

	l.buzzer.Beep(beepDuration)

	s, err := l.sessions.Run(ctx, uid)
	if haltErr := l.tags.Halt(); haltErr != nil {
		l.logger.Warn("tag halt failed", "error", haltErr)
	}
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("session for tag %s: %w", s.TagID, err)
	}

	l.lastOutcome.Store(uint32(outcomeOf(s.State)))
	l.logger.Info("session finished",
		"tag_id", s.TagID,
		"name", s.Name,
		"state", s.State.String(),
		"payload", s.Record.Payload,
		"attempts", s.Attempts,
	)
	return nil
}

func outcomeOf(st session.State) beacon.Outcome {
	switch st {
	case session.Transmitted:
		return beacon.OutcomeTransmitted
	case session.TransmitFailed:
		return beacon.OutcomeTransmitFailed
	case session.Checkpointed:
		return beacon.OutcomeCheckpointed
	default:
		return beacon.OutcomeNone
	}
}
