package beacon

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tinygo.org/x/bluetooth"
)

type AdvertiserOptions struct {
	Adapter   string // "hci0" by default
	LocalName string
	DeviceID  uint32
	// Interval between beacon refreshes. Each refresh bumps the sequence.
	Interval time.Duration
}

// Advertiser periodically broadcasts a station's status.
type Advertiser struct {
	adapter *bluetooth.Adapter
	opts    AdvertiserOptions
	logger  *slog.Logger
	seq     uint32
}

func NewAdvertiser(opts AdvertiserOptions, logger *slog.Logger) *Advertiser {
	if opts.Adapter == "" {
		opts.Adapter = "hci0"
	}
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Advertiser{adapter: bluetooth.NewAdapter(opts.Adapter), opts: opts, logger: logger}
}

// Run advertises until ctx is done. status is called before every refresh
// and supplies the kind and last outcome; the advertiser fills in the device
// id and sequence.
func (a *Advertiser) Run(ctx context.Context, status func() Status) error {
	if err := a.adapter.Enable(); err != nil {
		return fmt.Errorf("ble enable (%s): %w", a.opts.Adapter, err)
	}
	adv := a.adapter.DefaultAdvertisement()
	a.logger.Info("ble: advertising started", "adapter", a.opts.Adapter, "name", a.opts.LocalName, "device_id", a.opts.DeviceID)

	ticker := time.NewTicker(a.opts.Interval)
	defer ticker.Stop()
	for {
		if err := a.advertise(adv, status()); err != nil {
			a.logger.Warn("ble: advertise failed", "error", err)
		}
		select {
		case <-ctx.Done():
			_ = adv.Stop()
			a.logger.Info("ble: advertising stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (a *Advertiser) advertise(adv *bluetooth.Advertisement, s Status) error {
	a.seq++
	s.DeviceID = a.opts.DeviceID
	s.Sequence = a.seq

	_ = adv.Stop()
	err := adv.Configure(bluetooth.AdvertisementOptions{
		AdvertisementType: bluetooth.AdvertisingTypeNonConnInd,
		LocalName:         a.opts.LocalName,
		Interval:          bluetooth.NewDuration(100 * time.Millisecond),
		ManufacturerData: []bluetooth.ManufacturerDataElement{
			{CompanyID: CompanyID, Data: s.Encode()},
		},
	})
	if err != nil {
		return fmt.Errorf("configure: %w", err)
	}
	if err := adv.Start(); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	a.logger.Debug("ble: beacon refreshed", "seq", s.Sequence, "kind", s.Kind.String(), "outcome", s.Outcome.String())
	return nil
}
