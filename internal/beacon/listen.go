package beacon

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"tinygo.org/x/bluetooth"

	"rubberweigh/internal/utils"
)

// Match is a single observation of a station beacon.
type Match struct {
	Address   string
	RSSI      int16
	LocalName string
	CompanyID uint16
	Data      []byte
	SeenAt    time.Time
}

type Filter struct {
	CompanyID            uint16
	ManufacturerDataPref []byte
}

type ListenerOptions struct {
	Adapter string // "hci0" by default
	Filter  Filter
}

// Listener wraps BlueZ scanning with context cancellation.
type Listener struct {
	adapter *bluetooth.Adapter
	opts    ListenerOptions
	logger  *slog.Logger
}

func NewListener(opts ListenerOptions, logger *slog.Logger) *Listener {
	if opts.Adapter == "" {
		opts.Adapter = "hci0"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{
		adapter: bluetooth.NewAdapter(opts.Adapter),
		opts:    opts,
		logger:  logger,
	}
}

// StationFilter matches station beacons only.
func StationFilter() Filter {
	return Filter{CompanyID: CompanyID, ManufacturerDataPref: Prefix()}
}

func (l *Listener) Run(ctx context.Context, onMatch func(Match)) error {
	l.logger.Info("ble: enabling adapter", "adapter", l.opts.Adapter)
	if err := l.adapter.Enable(); err != nil {
		return fmt.Errorf("ble enable (%s): %w", l.opts.Adapter, err)
	}

	go func() {
		<-ctx.Done()
		_ = l.adapter.StopScan()
	}()

	l.logger.Info("ble: scanning started",
		"filter_company", "0x"+utils.Hex4(l.opts.Filter.CompanyID),
		"filter_prefix", fmt.Sprintf("% X", l.opts.Filter.ManufacturerDataPref),
	)

	// adapter.Scan blocks until StopScan() or error.
	err := l.adapter.Scan(func(_ *bluetooth.Adapter, r bluetooth.ScanResult) {
		for _, md := range r.ManufacturerData() {
			if l.opts.Filter.CompanyID != 0 && md.CompanyID != l.opts.Filter.CompanyID {
				continue
			}
			if !bytes.HasPrefix(md.Data, l.opts.Filter.ManufacturerDataPref) {
				continue
			}
			if onMatch != nil {
				onMatch(Match{
					Address:   r.Address.String(),
					RSSI:      r.RSSI,
					LocalName: r.LocalName(),
					CompanyID: md.CompanyID,
					Data:      append([]byte(nil), md.Data...),
					SeenAt:    time.Now(),
				})
			}
			return
		}
	})

	// If ctx canceled, treat as clean shutdown.
	if ctx.Err() != nil {
		l.logger.Info("ble: scanning stopped (context canceled)")
		return nil
	}
	if err != nil {
		return fmt.Errorf("ble scan: %w", err)
	}

	l.logger.Info("ble: scanning stopped")
	return nil
}
