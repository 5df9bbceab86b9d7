// Package history keeps the server-side log of enrichment results and the
// paged view over it.
package history

import (
	"context"

	"github.com/sells-group/lead-wizard/internal/model"
)

// Page is one slice of the history log, newest first.
type Page struct {
	Records []model.HistoryRecord `json:"records"`
	HasMore bool                  `json:"has_more"`
}

// Store persists history records.
type Store interface {
	List(ctx context.Context, limit, offset int) (Page, error)
	Append(ctx context.Context, records []model.HistoryRecord) error
	Migrate(ctx context.Context) error
	Close() error
}

// DefaultPageSize is used when the caller passes a non-positive limit.
const DefaultPageSize = 25

// MaxPageSize caps a single page.
const MaxPageSize = 200

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultPageSize
	case limit > MaxPageSize:
		return MaxPageSize
	default:
		return limit
	}
}

// FromEnriched turns the successful records of an enrichment run into
// history rows. Failed records are not logged.
func FromEnriched(recs []model.EnrichedRecord) []model.HistoryRecord {
	var out []model.HistoryRecord
	for _, r := range recs {
		if r.Status != model.StatusSuccess {
			continue
		}
		out = append(out, model.HistoryRecord{
			CompanyName:  r.Name,
			ContactName:  r.ContactName,
			ContactEmail: r.PrimaryEmail(),
			ContactPhone: r.ContactPhone,
			Website:      r.Website,
			Location:     r.Location,
			Score:        r.Score,
		})
	}
	return out
}
