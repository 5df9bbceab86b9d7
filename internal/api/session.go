package api

import (
	"net/http"

	"github.com/sells-group/lead-wizard/internal/model"
	"github.com/sells-group/lead-wizard/internal/workflow"
)

// sessionView is the response for every session operation.
type sessionView struct {
	Session      model.Session `json:"session"`
	Saved        []string      `json:"saved"`
	DefaultLeads int           `json:"default_leads"`
}

func viewOf(tab *Tab, s model.Session) sessionView {
	return sessionView{
		Session:      s,
		Saved:        tab.Workflow.Mutator().Saved(),
		DefaultLeads: tab.Workflow.DefaultLeads(),
	}
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, op string, sess model.Session, err error) {
	tab := tabFrom(r)
	if err != nil {
		writeOpError(w, r, op, err, viewOf(tab, sess))
		return
	}
	writeJSON(w, http.StatusOK, viewOf(tab, sess))
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	tab := tabFrom(r)
	writeJSON(w, http.StatusOK, viewOf(tab, tab.Workflow.Snapshot()))
}

func (s *Server) define(w http.ResponseWriter, r *http.Request) {
	var req workflow.DefineRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sess, err := tabFrom(r).Workflow.Define(r.Context(), req.Query)
	s.respond(w, r, "define", sess, err)
}

func (s *Server) refine(w http.ResponseWriter, r *http.Request) {
	var req workflow.RefineRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sess, err := tabFrom(r).Workflow.Refine(r.Context(), req.NumberOfLeads)
	s.respond(w, r, "refine", sess, err)
}

func (s *Server) choose(w http.ResponseWriter, r *http.Request) {
	var req workflow.ChooseRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sess, err := tabFrom(r).Workflow.Choose(r.Context(), req.CompanyIDs)
	s.respond(w, r, "choose", sess, err)
}

type finishResponse struct {
	sessionView
	SavedNow []string `json:"saved_now"`
	Failed   []string `json:"failed"`
	Warning  string   `json:"warning,omitempty"`
}

func (s *Server) finish(w http.ResponseWriter, r *http.Request) {
	var req workflow.FinishRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	tab := tabFrom(r)
	res, err := tab.Workflow.Finish(r.Context(), req.RecordIDs)
	warning, partial := partialWarning(err)
	if err != nil && !partial {
		writeOpError(w, r, "finish", err, viewOf(tab, res.Session))
		return
	}
	writeJSON(w, http.StatusOK, finishResponse{
		sessionView: viewOf(tab, res.Session),
		SavedNow:    res.Saved,
		Failed:      res.Failed,
		Warning:     warning,
	})
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	sess, err := tabFrom(r).Workflow.Refresh(r.Context())
	s.respond(w, r, "refresh", sess, err)
}

func (s *Server) back(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, "back", tabFrom(r).Workflow.Back(), nil)
}

func (s *Server) reset(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, "reset", tabFrom(r).Workflow.Reset(), nil)
}

type saveLeadResponse struct {
	LeadID   string `json:"lead_id"`
	Attached bool   `json:"attached"`
}

func (s *Server) saveLead(w http.ResponseWriter, r *http.Request) {
	var lead model.Lead
	if err := decode(r, &lead); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	res, err := tabFrom(r).Workflow.SaveLead(r.Context(), lead)
	if err != nil {
		writeOpError(w, r, "save_lead", err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, saveLeadResponse{LeadID: res.Saved[0].LeadID, Attached: res.Saved[0].Attached})
}
