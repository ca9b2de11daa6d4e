package www

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"lineflow/alerts"
	"lineflow/health"
)

func (h *Handlers) apiListAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := alerts.Filter{PostID: q.Get("post"), Status: alerts.Status(q.Get("status"))}
	if s := q.Get("severity"); s != "" {
		sev, err := alerts.ParseSeverity(s)
		if err != nil {
			h.jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.Severity = &sev
	}
	list := h.engine.Alerts().Filter(f)
	if list == nil {
		list = []alerts.Alert{}
	}
	h.jsonOK(w, list)
}

type actorRequest struct {
	Actor string `json:"actor"`
}

// readActor accepts an empty body.
func readActor(r *http.Request) string {
	var req actorRequest
	if r.ContentLength != 0 {
		decodeBody(r, &req)
	}
	return actorOr(req.Actor)
}

func (h *Handlers) apiAcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	a, err := h.engine.AcknowledgeAlert(chi.URLParam(r, "id"), readActor(r))
	if err != nil {
		h.engineError(w, err)
		return
	}
	h.jsonOK(w, a)
}

func (h *Handlers) apiResolveAlert(w http.ResponseWriter, r *http.Request) {
	a, err := h.engine.ResolveAlert(chi.URLParam(r, "id"), readActor(r))
	if err != nil {
		h.engineError(w, err)
		return
	}
	h.jsonOK(w, a)
}

func (h *Handlers) apiListMaintenance(w http.ResponseWriter, r *http.Request) {
	recs, err := h.engine.DB().ListMaintenance(chi.URLParam(r, "code"))
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if recs == nil {
		recs = []health.MaintenanceRecord{}
	}
	h.jsonOK(w, recs)
}

func (h *Handlers) apiScheduleMaintenance(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PostID        string    `json:"post_id"`
		ScheduledDate time.Time `json:"scheduled_date"`
		DurationMin   int       `json:"duration_min"`
	}
	if err := decodeBody(r, &req); err != nil || req.PostID == "" || req.ScheduledDate.IsZero() {
		h.jsonError(w, "invalid request", http.StatusBadRequest)
		return
	}
	rec := &health.MaintenanceRecord{
		PostID:            req.PostID,
		ScheduledDate:     req.ScheduledDate,
		EstimatedDuration: time.Duration(req.DurationMin) * time.Minute,
	}
	if err := h.engine.ScheduleMaintenance(rec); err != nil {
		h.engineError(w, err)
		return
	}
	h.jsonStatus(w, http.StatusCreated, rec)
}

func (h *Handlers) apiCompleteMaintenance(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.jsonError(w, "invalid id", http.StatusBadRequest)
		return
	}
	if err := h.engine.CompleteMaintenance(id, readActor(r)); err != nil {
		h.engineError(w, err)
		return
	}
	h.jsonOK(w, map[string]string{"status": "ok"})
}
