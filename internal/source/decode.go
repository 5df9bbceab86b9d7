package source

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"

	"github.com/sells-group/lead-wizard/internal/model"
	"github.com/sells-group/lead-wizard/internal/reconcile"
)

// Array keys that carry records in backend responses, in lookup order.
var (
	previewArrayKeys    = []string{"companies", "leads", "places", "results", "data.companies", "data.leads"}
	enrichmentArrayKeys = []string{"leads", "results", "enriched", "data.leads", "data.results"}
)

// DecodePreview normalizes a preview response into PreviewRecords. Records
// without a name are dropped. Records without an id get one derived from the
// canonical name so selections stay stable across reloads. defaultSource tags
// records whose payload carries no source of its own.
func DecodePreview(body []byte, defaultSource string) ([]model.PreviewRecord, error) {
	items, err := recordArray(body, previewArrayKeys)
	if err != nil {
		return nil, eris.Wrap(err, "source: decode preview")
	}

	out := make([]model.PreviewRecord, 0, len(items))
	seen := make(map[string]int)
	for _, item := range items {
		name := firstString(item, "name", "company_name", "companyName", "displayName.text", "title")
		if name == "" {
			continue
		}
		rec := model.PreviewRecord{
			ID:              firstString(item, "id", "place_id", "company_id", "lead_id"),
			Name:            name,
			Industry:        firstString(item, "industry", "category", "primaryTypeDisplayName.text"),
			Location:        firstString(item, "location", "formatted_address", "formattedAddress", "address", "city"),
			Website:         firstString(item, "website", "websiteUri", "domain", "url"),
			Phone:           firstString(item, "phone", "phone_number", "nationalPhoneNumber"),
			EmployeeCount:   int(firstNumber(item, "employee_count", "employeeCount", "employees", "num_employees")),
			RevenueEstimate: firstString(item, "revenue_estimate", "revenueEstimate", "estimated_revenue", "revenue"),
			Source:          firstString(item, "source"),
		}
		if rec.Source == "" {
			rec.Source = defaultSource
		}
		if rec.ID == "" {
			rec.ID = defaultSource + ":" + reconcile.Canonicalize(name)
		}
		base := rec.ID
		seen[base]++
		if n := seen[base]; n > 1 {
			rec.ID = base + "-" + strconv.Itoa(n)
		}
		out = append(out, rec)
	}
	return out, nil
}

// DecodeEnrichment normalizes an enrichment response into
// EnrichmentSourceRecords. Records without a company name are dropped.
func DecodeEnrichment(body []byte) ([]model.EnrichmentSourceRecord, error) {
	items, err := recordArray(body, enrichmentArrayKeys)
	if err != nil {
		return nil, eris.Wrap(err, "source: decode enrichment")
	}

	out := make([]model.EnrichmentSourceRecord, 0, len(items))
	for _, item := range items {
		name := firstString(item, "company_name", "companyName", "company", "name")
		if name == "" {
			continue
		}
		rec := model.EnrichmentSourceRecord{
			CompanyName:         name,
			OriginalCompanyName: firstString(item, "original_company_name", "originalCompanyName", "input_company_name", "query_name"),
			ContactName:         firstString(item, "contact_name", "contactName", "contact.name"),
			ContactEmail:        firstString(item, "contact_email", "contactEmail", "email", "contact.email"),
			ContactEmails:       stringList(item, "contact_emails", "contactEmails", "emails"),
			ContactPhone:        firstString(item, "contact_phone", "contactPhone", "contact.phone"),
			Website:             firstString(item, "website", "domain", "url"),
			Location:            firstString(item, "location", "address", "city"),
			Phone:               firstString(item, "phone", "company_phone", "companyPhone"),
		}
		for _, path := range []string{"final_score", "finalScore", "score"} {
			if v := item.Get(path); v.Exists() && v.Type == gjson.Number {
				score := v.Float()
				rec.FinalScore = &score
				break
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

// recordArray returns the first array found under keys, or the body itself
// when it is a top-level array. A valid object without any known key yields
// no records.
func recordArray(body []byte, keys []string) ([]gjson.Result, error) {
	if !gjson.ValidBytes(body) {
		return nil, eris.New("invalid JSON")
	}
	root := gjson.ParseBytes(body)
	if root.IsArray() {
		return root.Array(), nil
	}
	if !root.IsObject() {
		return nil, eris.Errorf("unexpected JSON %s", root.Type)
	}
	for _, k := range keys {
		if v := root.Get(k); v.IsArray() {
			return v.Array(), nil
		}
	}
	return nil, nil
}

func firstString(item gjson.Result, paths ...string) string {
	for _, p := range paths {
		v := item.Get(p)
		if !v.Exists() || v.Type == gjson.Null || v.IsObject() || v.IsArray() {
			continue
		}
		if s := strings.TrimSpace(v.String()); s != "" {
			return s
		}
	}
	return ""
}

func firstNumber(item gjson.Result, paths ...string) float64 {
	for _, p := range paths {
		v := item.Get(p)
		switch v.Type {
		case gjson.Number:
			return v.Float()
		case gjson.String:
			if f, err := strconv.ParseFloat(strings.ReplaceAll(v.String(), ",", ""), 64); err == nil {
				return f
			}
		}
	}
	return 0
}

// stringList reads an array of strings, or of objects carrying an "email"
// or "value" field.
func stringList(item gjson.Result, paths ...string) []string {
	for _, p := range paths {
		v := item.Get(p)
		if !v.IsArray() {
			continue
		}
		var out []string
		for _, e := range v.Array() {
			s := e.String()
			if e.IsObject() {
				s = firstString(e, "email", "value")
			}
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return nil
}
