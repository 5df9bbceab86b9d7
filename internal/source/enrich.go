package source

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-wizard/internal/model"
	"github.com/sells-group/lead-wizard/pkg/leadgen"
)

// EnrichRequest asks for contact data on the selected companies.
type EnrichRequest struct {
	CompanyIDs []string
	Companies  []model.PreviewRecord
}

// EnrichmentSource attaches contact-level detail to companies.
type EnrichmentSource interface {
	Enrich(ctx context.Context, req EnrichRequest) ([]model.EnrichmentSourceRecord, error)
}

// LeadGenEnrichment enriches through the lead-generation backend.
type LeadGenEnrichment struct {
	client leadgen.Client
}

// NewLeadGenEnrichment creates an EnrichmentSource over client.
func NewLeadGenEnrichment(client leadgen.Client) *LeadGenEnrichment {
	return &LeadGenEnrichment{client: client}
}

// Enrich implements EnrichmentSource. An empty request returns no results
// without a network call.
func (s *LeadGenEnrichment) Enrich(ctx context.Context, req EnrichRequest) ([]model.EnrichmentSourceRecord, error) {
	if len(req.Companies) == 0 {
		return nil, nil
	}
	companies := make([]leadgen.Company, len(req.Companies))
	for i, c := range req.Companies {
		companies[i] = leadgen.Company{ID: c.ID, Name: c.Name, Website: c.Website, Location: c.Location}
	}

	body, err := s.client.Enrich(ctx, leadgen.EnrichRequest{
		CompanyIDs: req.CompanyIDs,
		Companies:  companies,
	})
	if err != nil {
		return nil, eris.Wrap(err, "source: enrich")
	}
	return DecodeEnrichment(body)
}
