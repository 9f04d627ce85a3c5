package api

import (
	"encoding/json"
	"net/http"

	"procodus.dev/tempmon/internal/store"
)

type measurementsPage struct {
	Measurements []store.Measurement `json:"measurements"`
	Count        int64               `json:"count"`
}

func (h *handler) measurements(w http.ResponseWriter, r *http.Request) {
	ms, err := h.store.All(r.Context(), pageParams(r))
	if err != nil {
		badRequest(w, "Error retrieving measurements: "+err.Error())
		return
	}
	count, err := h.store.Count(r.Context())
	if err != nil {
		badRequest(w, "Error retrieving measurements: "+err.Error())
		return
	}

	h.writeJSON(w, measurementsPage{Measurements: nonNil(ms), Count: count})
}

func (h *handler) measurementsByDevice(w http.ResponseWriter, r *http.Request) {
	mac, err := requiredParam(r, paramDeviceMAC)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	ms, err := h.store.ByDevice(r.Context(), mac, pageParams(r))
	if err != nil {
		badRequest(w, "Error retrieving measurements: "+err.Error())
		return
	}
	h.writeJSON(w, nonNil(ms))
}

func (h *handler) measurementsInTimeRange(w http.ResponseWriter, r *http.Request) {
	tr, err := timeRangeParams(r, h.now())
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	ms, err := h.store.InTimeRange(r.Context(), tr)
	if err != nil {
		badRequest(w, "Error retrieving measurements: "+err.Error())
		return
	}
	h.writeJSON(w, nonNil(ms))
}

func (h *handler) averageTemperature(w http.ResponseWriter, r *http.Request) {
	tr, err := timeRangeParams(r, h.now())
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	avg, err := h.store.AverageTemperature(r.Context(), tr)
	if err != nil {
		badRequest(w, "Error retrieving average temperature: "+err.Error())
		return
	}
	h.writeJSON(w, avg)
}

func (h *handler) averageHumidity(w http.ResponseWriter, r *http.Request) {
	tr, err := timeRangeParams(r, h.now())
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	avg, err := h.store.AverageHumidity(r.Context(), tr)
	if err != nil {
		badRequest(w, "Error retrieving average humidity: "+err.Error())
		return
	}
	h.writeJSON(w, avg)
}

func (h *handler) latest(w http.ResponseWriter, r *http.Request) {
	ms, err := h.store.LatestPerDevice(r.Context())
	if err != nil {
		badRequest(w, "Error retrieving latest measurements: "+err.Error())
		return
	}
	h.writeJSON(w, nonNil(ms))
}

func (h *handler) devices(w http.ResponseWriter, r *http.Request) {
	devices, err := h.store.Devices(r.Context(), pageParams(r))
	if err != nil {
		badRequest(w, "Error retrieving devices: "+err.Error())
		return
	}
	if devices == nil {
		devices = []store.Device{}
	}
	h.writeJSON(w, devices)
}

func (h *handler) rooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.store.Rooms(r.Context(), pageParams(r))
	if err != nil {
		badRequest(w, "Error retrieving rooms: "+err.Error())
		return
	}
	if rooms == nil {
		rooms = []store.Room{}
	}
	h.writeJSON(w, rooms)
}

func (h *handler) roomMeasurements(w http.ResponseWriter, r *http.Request) {
	room, err := requiredParam(r, paramRoom)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	tr, err := optionalTimeRange(r, h.now())
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	ms, err := h.store.ByRoom(r.Context(), room, tr, pageParams(r))
	if err != nil {
		badRequest(w, "Error retrieving room measurements: "+err.Error())
		return
	}
	h.writeJSON(w, nonNil(ms))
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, map[string]string{"status": "ok"})
}

func (h *handler) writeJSON(w http.ResponseWriter, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("failed to encode response", "error", err)
		badRequest(w, "Error encoding response: "+err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func nonNil(ms []store.Measurement) []store.Measurement {
	if ms == nil {
		return []store.Measurement{}
	}
	return ms
}
