package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"rubberweigh/internal/beacon"
	"rubberweigh/internal/config"
	"rubberweigh/internal/db"
	"rubberweigh/internal/httpapi"
	"rubberweigh/internal/indicator"
	"rubberweigh/internal/migrate"
	"rubberweigh/internal/modules/deliveries/repository"
	"rubberweigh/internal/modules/deliveries/types"
	"rubberweigh/internal/mqtt"
	"rubberweigh/internal/relay"
)

func RunGateway(ctx context.Context, cfg config.GatewayConfig, logger *slog.Logger) error {
	logger.Info("config loaded",
		"appEnv", cfg.AppEnv,
		"logLevel", cfg.LogLevel.String(),
		"backendURL", cfg.BackendURL,
		"httpMaxAttempts", cfg.HTTPMaxAttempts,
		"httpRetryDelay", cfg.HTTPRetryDelay,
		"inboxSize", cfg.InboxSize,
		"httpAddr", cfg.HTTPAddr,
		"sqlitePath", cfg.SQLitePath,
		"mqttBroker", cfg.MQTTBroker,
		"mqttPort", cfg.MQTTPort,
		"mqttTopicPrefix", cfg.MQTTTopicPrefix,
		"bleEnabled", cfg.BLEEnabled,
	)

	dbConn, err := db.Open(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(dbConn); closeErr != nil {
			logger.Error("db close", "error", closeErr)
		}
	}()

	if _, err := migrate.Run(ctx, dbConn, logger); err != nil {
		return err
	}

	var ok int
	if err := dbConn.QueryRowContext(ctx, `SELECT 1`).Scan(&ok); err != nil {
		return err
	}
	if ok != 1 {
		return errors.New("database connection failed")
	}
	logger.Info("database connection successful")

	repo := repository.NewRepository(dbConn)
	hub := httpapi.NewHub(logger)
	defer hub.Close()

	mqttClient, err := mqtt.NewClient(cfg.Base, logger)
	if err != nil {
		return err
	}

	// Subscribe before Connect so the OnConnect handler subscribes
	// immediately; the broker may deliver queued records right after CONNACK.
	inbox := relay.NewInbox(cfg.InboxSize, cfg.MQTTTopicPrefix, logger)
	if err := mqttClient.Subscribe(mqtt.RecordsWildcard(cfg.MQTTTopicPrefix), 1, inbox.Receive); err != nil {
		return err
	}

	connectCtx, connectCancel := context.WithTimeout(ctx, 5*time.Second)
	err = mqttClient.Connect(connectCtx)
	connectCancel()
	if err != nil {
		// Paho keeps retrying in the background; the status API stays up.
		logger.Warn("mqtt connection failed (continuing, will retry)", "error", err)
	}

	forwarder := relay.NewForwarder(
		&http.Client{Timeout: cfg.HTTPTimeout},
		relay.Options{BaseURL: cfg.BackendURL, MaxAttempts: cfg.HTTPMaxAttempts, RetryDelay: cfg.HTTPRetryDelay},
		newDeliveryRecorder(repo, hub, logger),
		logger,
	)

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	forwardDone := make(chan struct{})
	go func() {
		defer close(forwardDone)
		_ = forwarder.Run(runCtx, inbox)
	}()

	ledPin, err := indicator.OpenPin(cfg.LEDPin)
	if err != nil {
		logger.Warn("led unavailable; continuing without it", "pin", cfg.LEDPin, "error", err)
	}
	go indicator.NewLED(ledPin, logger).Blink(runCtx, cfg.LEDBlinkInterval)

	if cfg.BLEEnabled {
		bleHandler := beacon.NewHandler(repo, mqttClient, cfg.MQTTTopicPrefix, logger)
		bleHandler.OnStation(func(s types.Station) { hub.Broadcast("station", s) })
		bleHandler.StartListener(runCtx, beacon.NewListener(beacon.ListenerOptions{
			Adapter: cfg.BLEAdapter,
			Filter:  beacon.StationFilter(),
		}, logger))
	}

	mux := httpapi.NewMux(dbConn, repo, hub, mqttClient, logger)
	srv := httpapi.NewServer(cfg.HTTPAddr, mux, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listening", "addr", cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		cancelRun()
		<-forwardDone
		mqttClient.Disconnect()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("mqtt disconnecting")
	mqttClient.Disconnect()

	cancelRun()
	<-forwardDone
	if n := inbox.Dropped(); n > 0 {
		logger.Warn("records dropped while inbox was full", "count", n)
	}

	logger.Info("http shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	err = <-errCh
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return ctx.Err()
}

type broadcaster interface {
	Broadcast(msgType string, data any)
}

// deliveryRecorder writes every forwarding outcome to the audit log, marks
// the sending station as seen and pushes the row to live clients.
type deliveryRecorder struct {
	repo   repository.DeliveryRepository
	hub    broadcaster
	logger *slog.Logger
}

func newDeliveryRecorder(repo repository.DeliveryRepository, hub broadcaster, logger *slog.Logger) *deliveryRecorder {
	return &deliveryRecorder{repo: repo, hub: hub, logger: logger}
}

func (r *deliveryRecorder) RecordDelivery(ctx context.Context, d types.Delivery) {
	// The audit write must survive shutdown cancelling the forwarder.
	ctx = context.WithoutCancel(ctx)

	id, err := r.repo.InsertDelivery(ctx, d)
	if err != nil {
		r.logger.Error("delivery log insert failed", "station_id", d.StationID, "outcome", d.Outcome, "error", err)
	} else {
		d.ID = id
	}

	if d.StationID != "" {
		err := r.repo.UpsertStation(ctx, types.Station{
			ID:          d.StationID,
			Kind:        d.Kind,
			LastSeen:    d.CreatedAt,
			LastOutcome: string(d.Outcome),
			Source:      "mqtt",
		})
		if err != nil {
			r.logger.Warn("station upsert failed", "station_id", d.StationID, "error", err)
		}
	}

	if r.hub != nil {
		r.hub.Broadcast("delivery", d)
	}
}
