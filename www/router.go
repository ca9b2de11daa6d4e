package www

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"lineflow/alerts"
	"lineflow/engine"
	"lineflow/flow"
	"lineflow/iot"
	"lineflow/store"
)

type Handlers struct {
	engine *engine.Engine
	hub    *Hub
}

// NewRouter builds the HTTP surface of the engine. The returned func stops
// the live feed and must be called before the engine stops.
func NewRouter(eng *engine.Engine) (http.Handler, func()) {
	h := &Handlers{engine: eng, hub: NewHub()}
	unsubscribe := h.hub.Attach(eng.Events)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if eng.AppConfig().Debug {
		r.Use(middleware.Logger)
	}

	r.Handle("/metrics", eng.Metrics().Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.apiHealthCheck)
		r.Get("/live", h.handleLive)

		r.Get("/line", h.apiLineSnapshot)
		r.Post("/line/refresh", h.apiLineRefresh)
		r.Get("/line/health", h.apiHealthScores)

		r.Get("/posts", h.apiListPosts)
		r.Get("/posts/{code}", h.apiGetPost)
		r.Post("/posts/{code}/stock", h.apiSetStock)
		r.Get("/posts/{code}/maintenance", h.apiListMaintenance)
		r.Get("/corrections", h.apiListCorrections)

		r.Get("/alerts", h.apiListAlerts)
		r.Post("/alerts/{id}/ack", h.apiAcknowledgeAlert)
		r.Post("/alerts/{id}/resolve", h.apiResolveAlert)

		r.Post("/maintenance", h.apiScheduleMaintenance)
		r.Post("/maintenance/{id}/complete", h.apiCompleteMaintenance)

		r.Get("/sensors", h.apiListSensors)
		r.Post("/sensors/{id}/threshold", h.apiSetThreshold)
		r.Get("/robots", h.apiListRobots)
		r.Post("/robots/{id}/command", h.apiRobotCommand)

		r.Get("/orders", h.apiListOrders)
		r.Post("/orders", h.apiStartOrder)
		r.Get("/orders/current", h.apiCurrentOrder)
		r.Get("/orders/export", h.apiExportOrders)
		r.Post("/orders/current/pause", h.apiPauseOrder)
		r.Post("/orders/current/resume", h.apiResumeOrder)
		r.Post("/orders/current/cancel", h.apiCancelOrder)
		r.Get("/orders/{id}", h.apiGetOrder)
		r.Get("/orders/{id}/report", h.apiOrderReport)

		r.Get("/audit", h.apiListAudit)
		r.Post("/messaging/reconnect", h.apiMessagingReconnect)
	})

	stop := func() {
		unsubscribe()
		h.hub.Close()
	}
	return r, stop
}

func (h *Handlers) apiHealthCheck(w http.ResponseWriter, r *http.Request) {
	_, running := h.engine.CurrentOrder()
	h.jsonOK(w, map[string]any{
		"status":    "ok",
		"line":      h.engine.AppConfig().Line.ID,
		"provider":  h.engine.Provider().IsConnected(),
		"messaging": h.engine.MsgClient().IsConnected(),
		"running":   running,
		"clients":   h.hub.Len(),
	})
}

func (h *Handlers) apiMessagingReconnect(w http.ResponseWriter, r *http.Request) {
	h.engine.ReconfigureMessaging()
	h.jsonOK(w, map[string]any{
		"backend":   h.engine.AppConfig().Messaging.Backend,
		"connected": h.engine.MsgClient().IsConnected(),
	})
}

func (h *Handlers) jsonOK(w http.ResponseWriter, data any) {
	h.jsonStatus(w, http.StatusOK, data)
}

// jsonStatus writes data with a status code. Headers must be set before
// WriteHeader.
func (h *Handlers) jsonStatus(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}

func (h *Handlers) jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// engineError maps domain errors to HTTP status codes.
func (h *Handlers) engineError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, flow.ErrInvalidOrder),
		errors.Is(err, iot.ErrInvalidCommand):
		code = http.StatusBadRequest
	case errors.Is(err, flow.ErrUnknownPost),
		errors.Is(err, store.ErrNotFound),
		errors.Is(err, alerts.ErrAlertNotFound),
		errors.Is(err, iot.ErrUnknownRobot),
		errors.Is(err, iot.ErrUnknownSensor):
		code = http.StatusNotFound
	case errors.Is(err, flow.ErrRunInProgress),
		errors.Is(err, engine.ErrNoActiveOrder),
		errors.Is(err, alerts.ErrInvalidTransition),
		errors.Is(err, iot.ErrRobotState):
		code = http.StatusConflict
	case errors.Is(err, iot.ErrInputOnly), errors.Is(err, iot.ErrNotConnected):
		code = http.StatusServiceUnavailable
	}
	h.jsonError(w, err.Error(), code)
}

func decodeBody(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func queryLimit(r *http.Request, def int) int {
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func actorOr(actor string) string {
	if actor == "" {
		return "operator"
	}
	return actor
}
