package httpapi

import (
	"database/sql"
	"log/slog"
	"net/http"

	"rubberweigh/internal/modules/deliveries"
	"rubberweigh/internal/modules/deliveries/repository"
)

func NewMux(db *sql.DB, repo repository.DeliveryRepository, hub *Hub, broker ConnectionStatus, logger *slog.Logger) *http.ServeMux {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	registerHealthcheck(mux, db, broker, logger)
	deliveries.RegisterFeature(mux, repo, logger)
	if hub != nil {
		mux.HandleFunc("GET /ws", hub.ServeWS)
	}
	return mux
}
