package www

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"lineflow/poststate"
)

func (h *Handlers) apiLineSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.engine.Snapshot()
	if !ok {
		snap = h.engine.Refresh()
	}
	h.jsonOK(w, snap)
}

func (h *Handlers) apiLineRefresh(w http.ResponseWriter, r *http.Request) {
	h.jsonOK(w, h.engine.Refresh())
}

func (h *Handlers) apiHealthScores(w http.ResponseWriter, r *http.Request) {
	scores, err := h.engine.HealthScores()
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.jsonOK(w, scores)
}

func (h *Handlers) apiListPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := h.postStates()
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.jsonOK(w, posts)
}

func (h *Handlers) apiGetPost(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if ps := h.engine.PostState(); ps != nil {
		p, err := ps.Get(code)
		if err != nil {
			h.engineError(w, err)
			return
		}
		h.jsonOK(w, p)
		return
	}
	p, err := h.engine.DB().GetPost(code)
	if err != nil {
		h.engineError(w, err)
		return
	}
	h.jsonOK(w, p)
}

func (h *Handlers) postStates() ([]*poststate.PostState, error) {
	lineID := h.engine.AppConfig().Line.ID
	if ps := h.engine.PostState(); ps != nil {
		return ps.Line(lineID)
	}
	posts, err := h.engine.DB().ListPosts(lineID)
	if err != nil {
		return nil, err
	}
	out := make([]*poststate.PostState, 0, len(posts))
	for _, p := range posts {
		out = append(out, &poststate.PostState{
			Code:      p.Code,
			LineID:    p.LineID,
			Position:  p.Position,
			Capacity:  p.Capacity,
			Stock:     p.Stock,
			TU:        p.TU,
			UpdatedAt: p.UpdatedAt,
		})
	}
	return out, nil
}

func (h *Handlers) apiSetStock(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Stock  *int   `json:"stock"`
		Reason string `json:"reason"`
		Actor  string `json:"actor"`
	}
	if err := decodeBody(r, &req); err != nil || req.Stock == nil {
		h.jsonError(w, "invalid request", http.StatusBadRequest)
		return
	}
	if *req.Stock < 0 {
		h.jsonError(w, "stock must not be negative", http.StatusBadRequest)
		return
	}
	c, err := h.engine.SetStock(chi.URLParam(r, "code"), *req.Stock, req.Reason, actorOr(req.Actor))
	if err != nil {
		h.engineError(w, err)
		return
	}
	h.jsonOK(w, c)
}

func (h *Handlers) apiListCorrections(w http.ResponseWriter, r *http.Request) {
	list, err := h.engine.DB().ListCorrections(queryLimit(r, 100))
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.jsonOK(w, list)
}

func (h *Handlers) apiListAudit(w http.ResponseWriter, r *http.Request) {
	entries, err := h.engine.DB().ListAudit(r.URL.Query().Get("type"), queryLimit(r, 100))
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.jsonOK(w, entries)
}
