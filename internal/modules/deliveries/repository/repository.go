package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	"rubberweigh/internal/modules/deliveries/types"
	shared "rubberweigh/shared/types"
)

//go:embed sql/insert-delivery.sql
var insertDeliverySQL string

//go:embed sql/get-recent-deliveries.sql
var getRecentDeliveriesSQL string

//go:embed sql/upsert-station.sql
var upsertStationSQL string

//go:embed sql/get-stations.sql
var getStationsSQL string

type DeliveryRepository interface {
	InsertDelivery(ctx context.Context, d types.Delivery) (int64, error)
	// GetRecentDeliveries returns the newest deliveries first. An empty
	// stationID matches every station.
	GetRecentDeliveries(ctx context.Context, stationID string, limit int) ([]types.Delivery, error)
	UpsertStation(ctx context.Context, s types.Station) error
	GetStations(ctx context.Context) ([]types.Station, error)
}

type repositoryImpl struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) DeliveryRepository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) InsertDelivery(ctx context.Context, d types.Delivery) (int64, error) {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	res, err := r.db.ExecContext(ctx, insertDeliverySQL,
		d.StationID,
		d.TagID,
		int(d.Kind),
		d.Payload,
		d.Method,
		d.Path,
		d.Attempts,
		d.StatusCode,
		string(d.Outcome),
		d.Error,
		d.ResponseBody,
		formatTime(d.CreatedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("insert delivery: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert delivery: last insert id: %w", err)
	}
	return id, nil
}

func (r *repositoryImpl) GetRecentDeliveries(ctx context.Context, stationID string, limit int) ([]types.Delivery, error) {
	rows, err := r.db.QueryContext(ctx, getRecentDeliveriesSQL, stationID, stationID, limit)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close deliveries rows", "error", err)
		}
	}()

	var out []types.Delivery
	for rows.Next() {
		var d types.Delivery
		var kind int
		var outcome, ts string
		if err := rows.Scan(
			&d.ID, &d.StationID, &d.TagID, &kind, &d.Payload, &d.Method, &d.Path,
			&d.Attempts, &d.StatusCode, &outcome, &d.Error, &d.ResponseBody, &ts,
		); err != nil {
			return nil, err
		}
		d.Kind = shared.Kind(kind)
		d.Outcome = types.Outcome(outcome)
		if d.CreatedAt, err = parseTime(ts); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *repositoryImpl) UpsertStation(ctx context.Context, s types.Station) error {
	if s.ID == "" {
		return fmt.Errorf("upsert station: empty id")
	}
	if s.LastSeen.IsZero() {
		s.LastSeen = time.Now()
	}
	_, err := r.db.ExecContext(ctx, upsertStationSQL,
		s.ID,
		int(s.Kind),
		formatTime(s.LastSeen),
		s.LastOutcome,
		int64(s.Sequence),
		s.Source,
	)
	if err != nil {
		return fmt.Errorf("upsert station %q: %w", s.ID, err)
	}
	return nil
}

func (r *repositoryImpl) GetStations(ctx context.Context) ([]types.Station, error) {
	rows, err := r.db.QueryContext(ctx, getStationsSQL)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close stations rows", "error", err)
		}
	}()

	var out []types.Station
	for rows.Next() {
		var s types.Station
		var kind int
		var seq int64
		var ts string
		if err := rows.Scan(&s.ID, &kind, &ts, &s.LastOutcome, &seq, &s.Source); err != nil {
			return nil, err
		}
		s.Kind = shared.Kind(kind)
		s.Sequence = uint32(seq)
		if s.LastSeen, err = parseTime(ts); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(ts string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		t2, err2 := time.Parse(time.RFC3339, ts)
		if err2 != nil {
			return time.Time{}, fmt.Errorf("parse timestamp %q: RFC3339Nano: %w; RFC3339: %w", ts, err, err2)
		}
		return t2, nil
	}
	return t, nil
}
