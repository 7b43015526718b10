package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"rubberweigh/shared/types"
)

// Base holds the settings shared by every binary.
type Base struct {
	AppEnv   string
	LogLevel slog.Level

	MQTTBroker      string
	MQTTPort        int
	MQTTClientID    string
	MQTTTopicPrefix string
}

type StationConfig struct {
	Base

	StationID string
	Kind      types.Kind

	ScalePort      string
	ScaleBaudRate  int
	ScaleIdleDelay time.Duration

	RFIDSPIPort     string
	RFIDResetPin    string
	RFIDIRQPin      string
	RFIDTimeout     time.Duration
	TagNameBlock    int
	TagWeightBlock  int
	TagPollInterval time.Duration

	BuzzerPin         string
	DisplayOutput     string // "" draws the panel on stdout
	DisplayClearAfter time.Duration

	LinkMaxAttempts int
	LinkAckWait     time.Duration
	LinkRetryDelay  time.Duration

	BeaconEnabled  bool
	BeaconAdapter  string
	BeaconDeviceID uint32
	BeaconInterval time.Duration
}

type GatewayConfig struct {
	Base

	BackendURL      string
	HTTPMaxAttempts int
	HTTPRetryDelay  time.Duration
	HTTPTimeout     time.Duration
	InboxSize       int

	HTTPAddr string

	SQLitePath            string
	SQLiteDSN             string
	SQLiteMaxOpenConns    int
	SQLiteMaxIdleConns    int
	SQLiteConnMaxLifetime time.Duration

	LEDPin           string
	LEDBlinkInterval time.Duration

	BLEEnabled bool
	BLEAdapter string
}

func loadBase(defaultClientID string) (Base, error) {
	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		appEnv = "dev"
	}
	switch appEnv {
	case "dev", "prod":
	default:
		return Base{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	logLevelStr := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if logLevelStr == "" {
		logLevelStr = "info"
	}
	level, err := parseLogLevel(logLevelStr)
	if err != nil {
		return Base{}, err
	}

	mqttPort, err := envInt("MQTT_PORT", 1883)
	if err != nil {
		return Base{}, err
	}

	return Base{
		AppEnv:          appEnv,
		LogLevel:        level,
		MQTTBroker:      envString("MQTT_BROKER", "localhost"),
		MQTTPort:        mqttPort,
		MQTTClientID:    envString("MQTT_CLIENT_ID", defaultClientID),
		MQTTTopicPrefix: strings.Trim(envString("MQTT_TOPIC_PREFIX", "stations"), "/"),
	}, nil
}

func LoadStationFromEnv() (StationConfig, error) {
	stationID := envString("STATION_ID", "scale-1")
	if strings.ContainsAny(stationID, "/+#") {
		return StationConfig{}, fmt.Errorf("invalid STATION_ID %q: must not contain MQTT wildcards or '/'", stationID)
	}

	base, err := loadBase("rubberweigh-" + stationID)
	if err != nil {
		return StationConfig{}, err
	}

	kind, err := types.ParseKind(envString("STATION_KIND", "raw-material"))
	if err != nil {
		return StationConfig{}, fmt.Errorf("invalid STATION_KIND: %w", err)
	}

	cfg := StationConfig{
		Base:          base,
		StationID:     stationID,
		Kind:          kind,
		ScalePort:     envString("SCALE_PORT", "/dev/ttyUSB0"),
		RFIDSPIPort:   envString("RFID_SPI_PORT", ""),
		RFIDResetPin:  envString("RFID_RESET_PIN", "GPIO25"),
		RFIDIRQPin:    envString("RFID_IRQ_PIN", "GPIO24"),
		BuzzerPin:     envString("BUZZER_PIN", ""),
		DisplayOutput: envString("DISPLAY_OUTPUT", ""),
		BeaconAdapter: envString("BEACON_ADAPTER", "hci0"),
	}

	if cfg.ScaleBaudRate, err = envInt("SCALE_BAUD_RATE", 9600); err != nil {
		return StationConfig{}, err
	}
	if cfg.ScaleIdleDelay, err = envPositiveDuration("SCALE_IDLE_DELAY", 10*time.Millisecond); err != nil {
		return StationConfig{}, err
	}
	if cfg.RFIDTimeout, err = envPositiveDuration("RFID_TIMEOUT", 100*time.Millisecond); err != nil {
		return StationConfig{}, err
	}
	if cfg.TagNameBlock, err = envInt("TAG_NAME_BLOCK", 2); err != nil {
		return StationConfig{}, err
	}
	if cfg.TagWeightBlock, err = envInt("TAG_WEIGHT_BLOCK", 4); err != nil {
		return StationConfig{}, err
	}
	for _, b := range []struct {
		name  string
		block int
	}{{"TAG_NAME_BLOCK", cfg.TagNameBlock}, {"TAG_WEIGHT_BLOCK", cfg.TagWeightBlock}} {
		if b.block <= 0 || b.block >= 64 || (b.block+1)%4 == 0 {
			return StationConfig{}, fmt.Errorf("invalid %s %d: must be a data block in 1..62 and not a sector trailer", b.name, b.block)
		}
	}
	if cfg.TagPollInterval, err = envPositiveDuration("TAG_POLL_INTERVAL", 100*time.Millisecond); err != nil {
		return StationConfig{}, err
	}
	if cfg.DisplayClearAfter, err = envPositiveDuration("DISPLAY_CLEAR_AFTER", 20*time.Second); err != nil {
		return StationConfig{}, err
	}
	if cfg.LinkMaxAttempts, err = envInt("LINK_MAX_ATTEMPTS", 5); err != nil {
		return StationConfig{}, err
	}
	if cfg.LinkMaxAttempts <= 0 {
		return StationConfig{}, fmt.Errorf("LINK_MAX_ATTEMPTS must be positive, got %d", cfg.LinkMaxAttempts)
	}
	if cfg.LinkAckWait, err = envPositiveDuration("LINK_ACK_WAIT", 500*time.Millisecond); err != nil {
		return StationConfig{}, err
	}
	if cfg.LinkRetryDelay, err = envPositiveDuration("LINK_RETRY_DELAY", 100*time.Millisecond); err != nil {
		return StationConfig{}, err
	}
	if cfg.BeaconEnabled, err = envBool("BEACON_ENABLED", false); err != nil {
		return StationConfig{}, err
	}
	deviceID, err := envUint32("BEACON_DEVICE_ID", 0)
	if err != nil {
		return StationConfig{}, err
	}
	cfg.BeaconDeviceID = deviceID
	if cfg.BeaconInterval, err = envPositiveDuration("BEACON_INTERVAL", 5*time.Second); err != nil {
		return StationConfig{}, err
	}

	return cfg, nil
}

func LoadGatewayFromEnv() (GatewayConfig, error) {
	base, err := loadBase("rubberweigh-gateway")
	if err != nil {
		return GatewayConfig{}, err
	}

	backendURL := strings.TrimRight(envString("BACKEND_URL", "https://localhost"), "/")
	if !strings.HasPrefix(backendURL, "https://") && !strings.HasPrefix(backendURL, "http://") {
		return GatewayConfig{}, fmt.Errorf("invalid BACKEND_URL %q: must start with https:// or http://", backendURL)
	}

	cfg := GatewayConfig{
		Base:       base,
		BackendURL: backendURL,
		HTTPAddr:   envString("HTTP_ADDR", ":8080"),
		SQLitePath: envString("SQLITE_PATH", "data/gateway.db"),
		SQLiteDSN:  envString("SQLITE_DSN", ""),
		LEDPin:     envString("LED_PIN", ""),
		BLEAdapter: envString("BLE_ADAPTER", "hci0"),
	}

	if cfg.HTTPMaxAttempts, err = envInt("HTTP_MAX_ATTEMPTS", 3); err != nil {
		return GatewayConfig{}, err
	}
	if cfg.HTTPMaxAttempts <= 0 {
		return GatewayConfig{}, fmt.Errorf("HTTP_MAX_ATTEMPTS must be positive, got %d", cfg.HTTPMaxAttempts)
	}
	if cfg.HTTPRetryDelay, err = envPositiveDuration("HTTP_RETRY_DELAY", time.Second); err != nil {
		return GatewayConfig{}, err
	}
	if cfg.HTTPTimeout, err = envPositiveDuration("HTTP_TIMEOUT", 10*time.Second); err != nil {
		return GatewayConfig{}, err
	}
	if cfg.InboxSize, err = envInt("INBOX_SIZE", 16); err != nil {
		return GatewayConfig{}, err
	}
	if cfg.InboxSize <= 0 {
		return GatewayConfig{}, fmt.Errorf("INBOX_SIZE must be positive, got %d", cfg.InboxSize)
	}
	if cfg.SQLiteMaxOpenConns, err = envInt("DB_MAX_OPEN_CONNS", 1); err != nil {
		return GatewayConfig{}, err
	}
	if cfg.SQLiteMaxIdleConns, err = envInt("DB_MAX_IDLE_CONNS", 1); err != nil {
		return GatewayConfig{}, err
	}
	if cfg.SQLiteConnMaxLifetime, err = envDuration("DB_CONN_MAX_LIFETIME", 0); err != nil {
		return GatewayConfig{}, err
	}
	if cfg.LEDBlinkInterval, err = envPositiveDuration("LED_BLINK_INTERVAL", 900*time.Millisecond); err != nil {
		return GatewayConfig{}, err
	}
	if cfg.BLEEnabled, err = envBool("BLE_ENABLED", false); err != nil {
		return GatewayConfig{}, err
	}

	return cfg, nil
}

func envString(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt(key string, def int) (int, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return v, nil
}

func envUint32(key string, def uint32) (uint32, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return uint32(v), nil
}

func envBool(key string, def bool) (bool, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return v, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return v, nil
}

func envPositiveDuration(key string, def time.Duration) (time.Duration, error) {
	v, err := envDuration(key, def)
	if err != nil {
		return 0, err
	}
	if v <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %v", key, v)
	}
	return v, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
