package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"rubberweigh/shared/types"
)

// drcPerTSC converts a TSC reading to DRC.
const drcPerTSC = 0.9

var (
	ErrUnknownKind = errors.New("unknown record kind")
	ErrBadPayload  = errors.New("payload is not a finite number")
)

type Route struct {
	Method string
	Path   string
}

var routes = map[types.Kind]Route{
	types.KindRawMaterial:      {Method: http.MethodPost, Path: "/giaodich/mu-tap/"},
	types.KindNetVehicleWeight: {Method: http.MethodPut, Path: "/giaodich/mu-nuoc/"},
	types.KindMoistureRatio:    {Method: http.MethodPut, Path: "/giaodich/tsc-drc/"},
}

func RouteFor(kind types.Kind) (Route, bool) {
	r, ok := routes[kind]
	return r, ok
}

type rawMaterialBody struct {
	RFID           string  `json:"RFID"`
	KhoiLuongMuTap float64 `json:"KhoiLuongMuTap"`
}

type netVehicleWeightBody struct {
	RFID            string  `json:"RFID"`
	KhoiLuongMuNuoc float64 `json:"KhoiLuongMuNuoc"`
}

type moistureRatioBody struct {
	RFID string  `json:"RFID"`
	TSC  float64 `json:"TSC"`
	DRC  float64 `json:"DRC"`
}

// BuildRequest maps rec to its backend route and JSON body.
func BuildRequest(rec types.WeightRecord) (Route, []byte, error) {
	route, ok := RouteFor(rec.Kind)
	if !ok {
		return Route{}, nil, fmt.Errorf("%w: %d", ErrUnknownKind, rec.Kind)
	}
	v, err := strconv.ParseFloat(rec.Payload, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return Route{}, nil, fmt.Errorf("%w: %q", ErrBadPayload, rec.Payload)
	}

	var body any
	switch rec.Kind {
	case types.KindRawMaterial:
		body = rawMaterialBody{RFID: rec.TagID, KhoiLuongMuTap: v}
	case types.KindNetVehicleWeight:
		body = netVehicleWeightBody{RFID: rec.TagID, KhoiLuongMuNuoc: v}
	case types.KindMoistureRatio:
		body = moistureRatioBody{RFID: rec.TagID, TSC: v, DRC: v * drcPerTSC}
	}

	data, err := json.Marshal(body)
	if err != nil {
		return Route{}, nil, fmt.Errorf("marshal body: %w", err)
	}
	return route, data, nil
}
