package controller

import (
	"net/http"

	"rubberweigh/internal/utils"
)

func (c *deliveriesControllerImpl) handleDeliveries(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimitQuery(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	stationID := r.URL.Query().Get("station_id")
	deliveries, err := c.repository.GetRecentDeliveries(r.Context(), stationID, limit)
	if err != nil {
		c.logger.Error("deliveries: query failed", "station_id", stationID, "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load deliveries")
		return
	}
	utils.WriteList(w, deliveries)
}

func (c *deliveriesControllerImpl) handleStations(w http.ResponseWriter, r *http.Request) {
	stations, err := c.repository.GetStations(r.Context())
	if err != nil {
		c.logger.Error("stations: query failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load stations")
		return
	}
	utils.WriteList(w, stations)
}
