package model

import (
	"slices"
	"sort"
)

// Step is a stage of the four-step lead workflow.
type Step int

const (
	StepDefine Step = iota + 1
	StepRefine
	StepChoose
	StepEnrich
)

// FirstStep and LastStep bound the pipeline.
const (
	FirstStep = StepDefine
	LastStep  = StepEnrich
)

func (s Step) String() string {
	switch s {
	case StepDefine:
		return "define"
	case StepRefine:
		return "refine"
	case StepChoose:
		return "choose"
	case StepEnrich:
		return "enrich"
	default:
		return "unknown"
	}
}

// Valid reports whether s is one of the four steps.
func (s Step) Valid() bool {
	return s >= FirstStep && s <= LastStep
}

// Session is the working state of one workflow.
type Session struct {
	Step              Step             `json:"step"`
	Query             string           `json:"query"`
	Intent            *Intent          `json:"parsed_intent,omitempty"`
	NumberOfLeads     int              `json:"number_of_leads"`
	PreviewResults    []PreviewRecord  `json:"preview_results"`
	SelectedCompanies []string         `json:"selected_companies"`
	EnrichedResults   []EnrichedRecord `json:"enriched_results"`
	CompletedOnce     bool             `json:"completed_once"`
}

// NewSession returns an empty session positioned on the first step.
func NewSession() Session {
	return Session{Step: FirstStep}
}

// Clone returns a deep copy so callers never share backing arrays.
func (s Session) Clone() Session {
	out := s
	if s.Intent != nil {
		in := *s.Intent
		in.Keywords = slices.Clone(s.Intent.Keywords)
		out.Intent = &in
	}
	out.PreviewResults = slices.Clone(s.PreviewResults)
	out.SelectedCompanies = slices.Clone(s.SelectedCompanies)
	out.EnrichedResults = make([]EnrichedRecord, len(s.EnrichedResults))
	for i, r := range s.EnrichedResults {
		r.ContactEmails = slices.Clone(r.ContactEmails)
		out.EnrichedResults[i] = r
	}
	if s.EnrichedResults == nil {
		out.EnrichedResults = nil
	}
	return out
}

// SelectedPreviews returns the preview records whose IDs are selected, in
// preview order.
func (s Session) SelectedPreviews() []PreviewRecord {
	if len(s.SelectedCompanies) == 0 {
		return nil
	}
	chosen := make(map[string]bool, len(s.SelectedCompanies))
	for _, id := range s.SelectedCompanies {
		chosen[id] = true
	}
	var out []PreviewRecord
	for _, p := range s.PreviewResults {
		if chosen[p.ID] {
			out = append(out, p)
		}
	}
	return out
}

// NormalizeSelection de-duplicates and sorts a set of record IDs.
func NormalizeSelection(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
