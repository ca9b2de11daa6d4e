package www

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"lineflow/report"
)

func (h *Handlers) apiStartOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := decodeBody(r, &req); err != nil {
		h.jsonError(w, "invalid request", http.StatusBadRequest)
		return
	}
	id, err := h.engine.StartOrder(req.Quantity)
	if err != nil {
		h.engineError(w, err)
		return
	}
	h.jsonStatus(w, http.StatusAccepted, map[string]any{"id": id, "quantity": req.Quantity})
}

func (h *Handlers) apiCurrentOrder(w http.ResponseWriter, r *http.Request) {
	st, ok := h.engine.CurrentOrder()
	if !ok {
		h.jsonError(w, "no active order", http.StatusNotFound)
		return
	}
	h.jsonOK(w, st)
}

func (h *Handlers) apiPauseOrder(w http.ResponseWriter, r *http.Request) {
	h.orderControl(w, h.engine.PauseOrder(), "paused")
}

func (h *Handlers) apiResumeOrder(w http.ResponseWriter, r *http.Request) {
	h.orderControl(w, h.engine.ResumeOrder(), "running")
}

func (h *Handlers) apiCancelOrder(w http.ResponseWriter, r *http.Request) {
	h.orderControl(w, h.engine.CancelOrder(), "cancelling")
}

func (h *Handlers) orderControl(w http.ResponseWriter, err error, status string) {
	if err != nil {
		h.engineError(w, err)
		return
	}
	h.jsonOK(w, map[string]string{"status": status})
}

func (h *Handlers) apiListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.engine.DB().ListOrders(queryLimit(r, 50))
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.jsonOK(w, orders)
}

func (h *Handlers) apiGetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.engine.DB().GetOrder(chi.URLParam(r, "id"))
	if err != nil {
		h.engineError(w, err)
		return
	}
	h.jsonOK(w, o)
}

func (h *Handlers) apiOrderReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	data, err := h.engine.OrderReport(id)
	if err != nil {
		h.engineError(w, err)
		return
	}
	h.xlsx(w, fmt.Sprintf("order-%s.xlsx", id), data)
}

func (h *Handlers) apiExportOrders(w http.ResponseWriter, r *http.Request) {
	data, err := h.engine.ExportReport(queryLimit(r, 500))
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	name := fmt.Sprintf("%s-%s.xlsx", h.engine.AppConfig().Line.ID, time.Now().Format("20060102-150405"))
	h.xlsx(w, name, data)
}

func (h *Handlers) xlsx(w http.ResponseWriter, filename string, data []byte) {
	w.Header().Set("Content-Type", report.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Write(data)
}
