package www

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"lineflow/iot"
)

func (h *Handlers) apiListSensors(w http.ResponseWriter, r *http.Request) {
	sensors := h.engine.Provider().ListSensors()
	if post := r.URL.Query().Get("post"); post != "" {
		filtered := sensors[:0:0]
		for _, s := range sensors {
			if s.PostCode == post {
				filtered = append(filtered, s)
			}
		}
		sensors = filtered
	}
	if sensors == nil {
		sensors = []iot.SensorInfo{}
	}
	h.jsonOK(w, sensors)
}

func (h *Handlers) apiListRobots(w http.ResponseWriter, r *http.Request) {
	robots := h.engine.Provider().ListRobots()
	if robots == nil {
		robots = []iot.Robot{}
	}
	h.jsonOK(w, robots)
}

func (h *Handlers) apiRobotCommand(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Command string `json:"command"`
		Target  string `json:"target"`
	}
	if err := decodeBody(r, &req); err != nil {
		h.jsonError(w, "invalid request", http.StatusBadRequest)
		return
	}
	if err := h.engine.SendRobotCommand(chi.URLParam(r, "id"), req.Command, req.Target); err != nil {
		h.engineError(w, err)
		return
	}
	h.jsonOK(w, map[string]string{"status": "ok"})
}

func (h *Handlers) apiSetThreshold(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Warn  float64 `json:"warn"`
		Crit  float64 `json:"crit"`
		Actor string  `json:"actor"`
	}
	if err := decodeBody(r, &req); err != nil {
		h.jsonError(w, "invalid request", http.StatusBadRequest)
		return
	}
	if err := h.engine.SetSensorThreshold(chi.URLParam(r, "id"), req.Warn, req.Crit, actorOr(req.Actor)); err != nil {
		h.engineError(w, err)
		return
	}
	h.jsonOK(w, map[string]string{"status": "ok"})
}
