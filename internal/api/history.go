package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/sells-group/lead-wizard/internal/persist"
)

func (s *Server) listHistory(w http.ResponseWriter, r *http.Request) {
	page := 0
	if v := r.URL.Query().Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "page must be a non-negative integer")
			return
		}
		page = n
	}
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))

	view, err := tabFrom(r).History.List(r.Context(), page, force)
	if err != nil {
		writeOpError(w, r, "history_list", err, nil)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type idsRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,dive,required"`
}

func (s *Server) decodeIDs(w http.ResponseWriter, r *http.Request) ([]string, bool) {
	var req idsRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return nil, false
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "ids must be a non-empty list")
		return nil, false
	}
	return req.IDs, true
}

type selectionResponse struct {
	Selected []string `json:"selected"`
}

func (s *Server) selectHistory(w http.ResponseWriter, r *http.Request) {
	ids, ok := s.decodeIDs(w, r)
	if !ok {
		return
	}
	svc := tabFrom(r).History
	svc.Select(ids...)
	writeJSON(w, http.StatusOK, selectionResponse{Selected: svc.Mutator().Selected()})
}

func (s *Server) deselectHistory(w http.ResponseWriter, r *http.Request) {
	ids, ok := s.decodeIDs(w, r)
	if !ok {
		return
	}
	svc := tabFrom(r).History
	svc.Deselect(ids...)
	writeJSON(w, http.StatusOK, selectionResponse{Selected: svc.Mutator().Selected()})
}

type saveHistoryResponse struct {
	Saved   []string `json:"saved"`
	Failed  []string `json:"failed"`
	Warning string   `json:"warning,omitempty"`
}

func (s *Server) saveHistory(w http.ResponseWriter, r *http.Request) {
	res, err := tabFrom(r).History.SaveSelected(r.Context())
	warning, partial := partialWarning(err)
	if err != nil && !partial {
		writeOpError(w, r, "history_save", err, nil)
		return
	}
	out := saveHistoryResponse{Failed: res.Failed, Warning: warning}
	for _, sv := range res.Saved {
		out.Saved = append(out.Saved, sv.Key)
	}
	writeJSON(w, http.StatusOK, out)
}

type preferencesRequest struct {
	PageSize *int       `json:"page_size" validate:"omitempty,min=1,max=200"`
	From     *time.Time `json:"from"`
	To       *time.Time `json:"to"`
}

func (s *Server) putPreferences(w http.ResponseWriter, r *http.Request) {
	var req preferencesRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "page_size must be between 1 and 200")
		return
	}
	svc := tabFrom(r).History
	if req.PageSize != nil {
		if err := svc.SetPageSize(*req.PageSize); err != nil {
			writeOpError(w, r, "history_preferences", err, nil)
			return
		}
	}
	if req.From != nil || req.To != nil {
		var rng persist.DateRange
		if req.From != nil {
			rng.From = *req.From
		}
		if req.To != nil {
			rng.To = *req.To
		}
		if !rng.From.IsZero() && !rng.To.IsZero() && rng.To.Before(rng.From) {
			writeError(w, http.StatusBadRequest, "to must not be before from")
			return
		}
		if err := svc.SetDateRange(rng); err != nil {
			writeOpError(w, r, "history_preferences", err, nil)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"page_size":  svc.PageSize(),
		"date_range": svc.DateRange(),
	})
}
