package deliveries

import (
	"log/slog"
	"net/http"

	"rubberweigh/internal/modules/deliveries/controller"
	"rubberweigh/internal/modules/deliveries/repository"
)

func RegisterFeature(mux *http.ServeMux, repo repository.DeliveryRepository, logger *slog.Logger) {
	controller.NewDeliveriesController(repo, logger).RegisterRoutes(mux)
}
