package source

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-wizard/internal/model"
	"github.com/sells-group/lead-wizard/internal/resilience"
	"github.com/sells-group/lead-wizard/pkg/google"
	"github.com/sells-group/lead-wizard/pkg/leadgen"
)

// PreviewRequest asks a preview source for up to MaxResults candidates.
type PreviewRequest struct {
	Industry    string
	Location    string
	CompanySize string
	Keywords    []string
	MaxResults  int
}

// RequestFromIntent builds a PreviewRequest for n results.
func RequestFromIntent(intent model.Intent, n int) PreviewRequest {
	return PreviewRequest{
		Industry:    intent.Industry,
		Location:    intent.Location,
		CompanySize: intent.CompanySize,
		Keywords:    append([]string(nil), intent.Keywords...),
		MaxResults:  n,
	}
}

// PreviewSource returns cheap, contact-free company candidates.
type PreviewSource interface {
	Preview(ctx context.Context, req PreviewRequest) ([]model.PreviewRecord, error)
}

// LeadGenPreview reads previews from the lead-generation backend.
type LeadGenPreview struct {
	client leadgen.Client
}

// NewLeadGenPreview creates a PreviewSource over client.
func NewLeadGenPreview(client leadgen.Client) *LeadGenPreview {
	return &LeadGenPreview{client: client}
}

// Preview implements PreviewSource.
func (s *LeadGenPreview) Preview(ctx context.Context, req PreviewRequest) ([]model.PreviewRecord, error) {
	body, err := s.client.Search(ctx, leadgen.SearchRequest{
		Industry:    req.Industry,
		Location:    req.Location,
		CompanySize: req.CompanySize,
		Keywords:    req.Keywords,
		MaxResults:  req.MaxResults,
	})
	if err != nil {
		return nil, eris.Wrap(err, "source: leadgen preview")
	}
	recs, err := DecodePreview(body, "leadgen")
	if err != nil {
		return nil, err
	}
	return limit(recs, req.MaxResults), nil
}

// PlacesPreview finds candidates with Google Places text search, following
// page tokens until MaxResults is reached.
type PlacesPreview struct {
	client google.Client
	retry  resilience.RetryConfig
}

// NewPlacesPreview creates a PreviewSource over client.
func NewPlacesPreview(client google.Client, retry resilience.RetryConfig) *PlacesPreview {
	return &PlacesPreview{client: client, retry: retry}
}

// maxPlacesPages bounds pagination; the API stops at 60 results anyway.
const maxPlacesPages = 3

// Preview implements PreviewSource.
func (s *PlacesPreview) Preview(ctx context.Context, req PreviewRequest) ([]model.PreviewRecord, error) {
	query := placesQuery(req)
	if query == "" {
		return nil, eris.New("source: places preview needs an industry, keywords or location")
	}

	var places []google.Place
	token := ""
	for page := 0; page < maxPlacesPages; page++ {
		resp, err := resilience.DoVal(ctx, s.retry, "google: text search", func(ctx context.Context) (*google.TextSearchResponse, error) {
			return s.client.TextSearch(ctx, google.TextSearchRequest{
				TextQuery: query,
				PageSize:  req.MaxResults - len(places),
				PageToken: token,
			})
		})
		if err != nil {
			if len(places) > 0 {
				zap.L().Warn("places pagination stopped early", zap.Int("results", len(places)), zap.Error(err))
				break
			}
			return nil, eris.Wrap(err, "source: places preview")
		}
		places = append(places, resp.Places...)
		token = resp.NextPageToken
		if token == "" || (req.MaxResults > 0 && len(places) >= req.MaxResults) {
			break
		}
	}

	body, err := json.Marshal(google.TextSearchResponse{Places: places})
	if err != nil {
		return nil, eris.Wrap(err, "source: encode places")
	}
	recs, err := DecodePreview(body, "google_places")
	if err != nil {
		return nil, err
	}
	for i := range recs {
		if recs[i].Industry == "" {
			recs[i].Industry = req.Industry
		}
	}
	return limit(recs, req.MaxResults), nil
}

func placesQuery(req PreviewRequest) string {
	var parts []string
	if req.Industry != "" {
		parts = append(parts, req.Industry)
	}
	for _, k := range req.Keywords {
		if !strings.Contains(strings.ToLower(req.Industry), strings.ToLower(k)) {
			parts = append(parts, k)
		}
	}
	if len(parts) == 0 && req.Location == "" {
		return ""
	}
	if len(parts) == 0 {
		parts = append(parts, "businesses")
	}
	q := strings.Join(parts, " ")
	if req.Location != "" {
		q += " in " + req.Location
	}
	return q
}

func limit[T any](recs []T, n int) []T {
	if n > 0 && len(recs) > n {
		return recs[:n]
	}
	return recs
}
