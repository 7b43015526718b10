package controller

import (
	"log/slog"
	"net/http"

	"rubberweigh/internal/modules/deliveries/repository"
)

type DeliveriesController interface {
	RegisterRoutes(mux *http.ServeMux)
}

type deliveriesControllerImpl struct {
	repository repository.DeliveryRepository
	logger     *slog.Logger
}

func NewDeliveriesController(repo repository.DeliveryRepository, logger *slog.Logger) DeliveriesController {
	if logger == nil {
		logger = slog.Default()
	}
	return &deliveriesControllerImpl{repository: repo, logger: logger}
}

func (c *deliveriesControllerImpl) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/deliveries", c.handleDeliveries)
	mux.HandleFunc("GET /api/stations", c.handleStations)
}
