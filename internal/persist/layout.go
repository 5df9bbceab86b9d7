package persist

import (
	"strings"
	"time"
)

// Persisted keys. Workflow collections live in the ephemeral tier only.
const (
	KeyStep              = "workflow.step"
	KeyQuery             = "workflow.query"
	KeyIntent            = "workflow.parsed_intent"
	KeyNumberOfLeads     = "workflow.number_of_leads"
	KeyCompletedOnce     = "workflow.completed_once"
	KeyPreviewResults    = "workflow.preview_results"
	KeySelectedCompanies = "workflow.selected_companies"
	KeyEnrichedResults   = "workflow.enriched_results"
	KeyHistoryDateRange  = "filter.history_date_range"
	KeyPreferences       = "ui.preferences"
)

const day = 24 * time.Hour

// Layout maps key classes to durable expiry.
type Layout struct {
	Progress    time.Duration
	Filters     time.Duration
	Preferences time.Duration
}

// DefaultLayout keeps workflow progress for a week, filters for a month and
// UI preferences for a year.
func DefaultLayout() Layout {
	return Layout{
		Progress:    7 * day,
		Filters:     30 * day,
		Preferences: 365 * day,
	}
}

// LayoutFromDays builds a Layout from day counts; non-positive values fall
// back to DefaultLayout.
func LayoutFromDays(progress, filters, preferences int) Layout {
	l := DefaultLayout()
	if progress > 0 {
		l.Progress = time.Duration(progress) * day
	}
	if filters > 0 {
		l.Filters = time.Duration(filters) * day
	}
	if preferences > 0 {
		l.Preferences = time.Duration(preferences) * day
	}
	return l
}

// Expiry returns the durable TTL for key. A user namespace added by Prefixed
// is ignored. Unknown keys are treated as workflow progress.
func (l Layout) Expiry(key string) time.Duration {
	if i := strings.LastIndexByte(key, ':'); i >= 0 {
		key = key[i+1:]
	}
	switch {
	case strings.HasPrefix(key, "ui."):
		return l.Preferences
	case strings.HasPrefix(key, "filter."):
		return l.Filters
	default:
		return l.Progress
	}
}
