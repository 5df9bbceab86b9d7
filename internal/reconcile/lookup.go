package reconcile

import "github.com/sells-group/lead-wizard/internal/model"

// Lookup maps canonical company names to enrichment results.
type Lookup struct {
	byName  map[string]model.EnrichmentSourceRecord
	primary map[string]bool
}

// BuildLookup indexes results by the canonical form of the name the source
// reported. When the source also echoes the name it was asked about, that
// name is indexed too, unless it collides with the record's own key or with
// any other record's reported name.
func BuildLookup(results []model.EnrichmentSourceRecord) *Lookup {
	l := &Lookup{
		byName:  make(map[string]model.EnrichmentSourceRecord, len(results)*2),
		primary: make(map[string]bool, len(results)),
	}

	for _, r := range results {
		key := Canonicalize(r.CompanyName)
		if key != "" {
			l.byName[key] = r
			l.primary[key] = true
		}

		orig := Canonicalize(r.OriginalCompanyName)
		if orig == "" || orig == key || l.primary[orig] {
			continue
		}
		if _, taken := l.byName[orig]; taken {
			continue
		}
		l.byName[orig] = r
	}
	return l
}

// Find returns the enrichment result for a preview company name.
func (l *Lookup) Find(name string) (model.EnrichmentSourceRecord, bool) {
	key := Canonicalize(name)
	if key == "" {
		return model.EnrichmentSourceRecord{}, false
	}
	r, ok := l.byName[key]
	return r, ok
}

// Len returns the number of indexed keys.
func (l *Lookup) Len() int { return len(l.byName) }
