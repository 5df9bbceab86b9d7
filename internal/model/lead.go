// Package model defines the records that flow through the lead workflow.
package model

import (
	"strings"
	"time"
)

// EnrichStatus is the outcome of enriching one selected company.
type EnrichStatus string

const (
	StatusSuccess EnrichStatus = "success"
	StatusFailed  EnrichStatus = "failed"
)

// DefaultScore is assigned to a successful enrichment whose source omits a score.
const DefaultScore = 50

// Intent is the structured search criteria derived from a free-text query.
type Intent struct {
	Industry    string   `json:"industry,omitempty"`
	Location    string   `json:"location,omitempty"`
	CompanySize string   `json:"company_size,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
}

// IsZero reports whether the intent carries no criteria.
func (i *Intent) IsZero() bool {
	return i == nil || (i.Industry == "" && i.Location == "" && i.CompanySize == "" && len(i.Keywords) == 0)
}

// PreviewRecord is a contact-free company candidate from the discovery source.
type PreviewRecord struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Industry        string `json:"industry,omitempty"`
	Location        string `json:"location,omitempty"`
	Website         string `json:"website,omitempty"`
	Phone           string `json:"phone,omitempty"`
	EmployeeCount   int    `json:"employee_count,omitempty"`
	RevenueEstimate string `json:"revenue_estimate,omitempty"`
	Source          string `json:"source,omitempty"`
}

// EnrichmentSourceRecord is one enrichment result after boundary normalization.
// OriginalCompanyName is set when the source echoes back the name it was given.
type EnrichmentSourceRecord struct {
	CompanyName         string   `json:"company_name"`
	OriginalCompanyName string   `json:"original_company_name,omitempty"`
	ContactName         string   `json:"contact_name,omitempty"`
	ContactEmail        string   `json:"contact_email,omitempty"`
	ContactEmails       []string `json:"contact_emails,omitempty"`
	ContactPhone        string   `json:"contact_phone,omitempty"`
	Website             string   `json:"website,omitempty"`
	Location            string   `json:"location,omitempty"`
	Phone               string   `json:"phone,omitempty"`
	FinalScore          *float64 `json:"final_score,omitempty"`
}

// Emails returns the non-blank contact emails, primary first, without duplicates.
func (r EnrichmentSourceRecord) Emails() []string {
	var out []string
	seen := make(map[string]bool)
	add := func(e string) {
		e = strings.TrimSpace(e)
		if e == "" || seen[strings.ToLower(e)] {
			return
		}
		seen[strings.ToLower(e)] = true
		out = append(out, e)
	}
	add(r.ContactEmail)
	for _, e := range r.ContactEmails {
		add(e)
	}
	return out
}

// EnrichedRecord is a preview record merged with contact data.
type EnrichedRecord struct {
	PreviewRecord
	ContactName   string       `json:"contact_name,omitempty"`
	ContactEmails []string     `json:"contact_emails"`
	ContactPhone  string       `json:"contact_phone,omitempty"`
	Score         float64      `json:"score"`
	Status        EnrichStatus `json:"status"`
}

// PrimaryEmail returns the first contact email or "".
func (r EnrichedRecord) PrimaryEmail() string {
	if len(r.ContactEmails) == 0 {
		return ""
	}
	return r.ContactEmails[0]
}

// HistoryRecord is a row of the enrichment log. AlreadySaved is derived on
// every load and never stored.
type HistoryRecord struct {
	ID           string    `json:"id"`
	CompanyName  string    `json:"company_name"`
	ContactName  string    `json:"contact_name,omitempty"`
	ContactEmail string    `json:"contact_email,omitempty"`
	ContactPhone string    `json:"contact_phone,omitempty"`
	Website      string    `json:"website,omitempty"`
	Location     string    `json:"location,omitempty"`
	Score        float64   `json:"score"`
	CreatedAt    time.Time `json:"created_at"`
	AlreadySaved bool      `json:"already_saved"`
}

// Contact is a person attached to a lead.
type Contact struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// Lead is what gets written to the lead database.
type Lead struct {
	CompanyName string  `json:"company_name"`
	Website     string  `json:"website,omitempty"`
	Industry    string  `json:"industry,omitempty"`
	Location    string  `json:"location,omitempty"`
	Phone       string  `json:"phone,omitempty"`
	Employees   int     `json:"employees,omitempty"`
	Score       float64 `json:"score,omitempty"`
	Contact     Contact `json:"contact"`
}

// ExistingLead is a lead already present in the lead database.
type ExistingLead struct {
	ID          string `json:"id"`
	CompanyName string `json:"company_name"`
	Website     string `json:"website,omitempty"`
}

// LeadFromEnriched converts a reconciled record into a lead.
func LeadFromEnriched(r EnrichedRecord) Lead {
	return Lead{
		CompanyName: r.Name,
		Website:     r.Website,
		Industry:    r.Industry,
		Location:    r.Location,
		Phone:       r.Phone,
		Employees:   r.EmployeeCount,
		Score:       r.Score,
		Contact: Contact{
			Name:  r.ContactName,
			Email: r.PrimaryEmail(),
			Phone: r.ContactPhone,
		},
	}
}

// LeadFromHistory converts an enrichment log row into a lead.
func LeadFromHistory(h HistoryRecord) Lead {
	return Lead{
		CompanyName: h.CompanyName,
		Website:     h.Website,
		Location:    h.Location,
		Score:       h.Score,
		Contact: Contact{
			Name:  h.ContactName,
			Email: h.ContactEmail,
			Phone: h.ContactPhone,
		},
	}
}
