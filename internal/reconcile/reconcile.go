package reconcile

import (
	"github.com/sells-group/lead-wizard/internal/model"
)

// Reconcile merges enrichment results into the selected preview records.
// It returns exactly one record per preview, in preview order, whatever the
// enrichment source returned.
func Reconcile(previews []model.PreviewRecord, results []model.EnrichmentSourceRecord) []model.EnrichedRecord {
	lookup := BuildLookup(results)
	out := make([]model.EnrichedRecord, 0, len(previews))
	for _, p := range previews {
		match, ok := lookup.Find(p.Name)
		switch {
		case !ok:
			out = append(out, unmatched(p))
		case len(match.Emails()) == 0:
			out = append(out, noContact(p, match))
		default:
			out = append(out, enriched(p, match))
		}
	}
	return out
}

func unmatched(p model.PreviewRecord) model.EnrichedRecord {
	return model.EnrichedRecord{
		PreviewRecord: p,
		ContactEmails: []string{},
		Status:        model.StatusFailed,
	}
}

// noContact keeps the source's corrected name and website but falls back to
// the preview for fields the source tends to omit.
func noContact(p model.PreviewRecord, m model.EnrichmentSourceRecord) model.EnrichedRecord {
	rec := p
	rec.Name = firstNonEmpty(m.CompanyName, p.Name)
	rec.Website = firstNonEmpty(m.Website, p.Website)
	rec.Phone = firstNonEmpty(m.Phone, p.Phone)
	rec.Location = firstNonEmpty(m.Location, p.Location)
	return model.EnrichedRecord{
		PreviewRecord: rec,
		ContactEmails: []string{},
		Status:        model.StatusFailed,
	}
}

func enriched(p model.PreviewRecord, m model.EnrichmentSourceRecord) model.EnrichedRecord {
	rec := p
	rec.Name = firstNonEmpty(m.CompanyName, p.Name)
	rec.Website = firstNonEmpty(m.Website, p.Website)
	rec.Phone = firstNonEmpty(m.Phone, p.Phone)
	rec.Location = firstNonEmpty(m.Location, p.Location)

	score := float64(model.DefaultScore)
	if m.FinalScore != nil {
		score = *m.FinalScore
	}

	return model.EnrichedRecord{
		PreviewRecord: rec,
		ContactName:   m.ContactName,
		ContactEmails: m.Emails(),
		ContactPhone:  m.ContactPhone,
		Score:         score,
		Status:        model.StatusSuccess,
	}
}

// Summary counts reconciled outcomes.
type Summary struct {
	Total     int
	Succeeded int
	Failed    int
}

// Summarize tallies a reconciled batch.
func Summarize(records []model.EnrichedRecord) Summary {
	s := Summary{Total: len(records)}
	for _, r := range records {
		if r.Status == model.StatusSuccess {
			s.Succeeded++
		} else {
			s.Failed++
		}
	}
	return s
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
