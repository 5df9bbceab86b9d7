package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePreview_CompaniesKey(t *testing.T) {
	body := []byte(`{"companies":[
		{"id":"db-1","name":"Mid-Ohio Forklift","industry":"Equipment","location":"Columbus, OH",
		 "website":"midohioforklift.com","employee_count":45,"revenue_estimate":"$5M-$10M"},
		{"id":"db-2","company_name":"Buckeye Lift","employees":"1,200"}
	]}`)

	recs, err := DecodePreview(body, "leadgen")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "db-1", recs[0].ID)
	assert.Equal(t, "Mid-Ohio Forklift", recs[0].Name)
	assert.Equal(t, 45, recs[0].EmployeeCount)
	assert.Equal(t, "$5M-$10M", recs[0].RevenueEstimate)
	assert.Equal(t, "leadgen", recs[0].Source)
	assert.Equal(t, "Buckeye Lift", recs[1].Name)
	assert.Equal(t, 1200, recs[1].EmployeeCount)
}

func TestDecodePreview_LeadsKeyAndPlacesShape(t *testing.T) {
	leads := []byte(`{"leads":[{"lead_id":"7","name":"Acme","source":"apollo"}]}`)
	recs, err := DecodePreview(leads, "leadgen")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "7", recs[0].ID)
	assert.Equal(t, "apollo", recs[0].Source)

	places := []byte(`{"places":[{"id":"ChIJ1","displayName":{"text":"Acme HVAC"},
		"formattedAddress":"1 Main St","websiteUri":"https://acme.com","nationalPhoneNumber":"(614) 555-0100",
		"primaryTypeDisplayName":{"text":"HVAC contractor"}}]}`)
	recs, err = DecodePreview(places, "google_places")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "ChIJ1", recs[0].ID)
	assert.Equal(t, "Acme HVAC", recs[0].Name)
	assert.Equal(t, "1 Main St", recs[0].Location)
	assert.Equal(t, "https://acme.com", recs[0].Website)
	assert.Equal(t, "(614) 555-0100", recs[0].Phone)
	assert.Equal(t, "HVAC contractor", recs[0].Industry)
	assert.Equal(t, "google_places", recs[0].Source)
}

func TestDecodePreview_DerivedIDsAreStableAndUnique(t *testing.T) {
	body := []byte(`[{"name":"Acme Co."},{"name":"ACME co"},{"name":""},{"id":null,"name":"Beta"}]`)
	recs, err := DecodePreview(body, "csv")
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "csv:acmeco", recs[0].ID)
	assert.Equal(t, "csv:acmeco-2", recs[1].ID)
	assert.Equal(t, "csv:beta", recs[2].ID)

	again, err := DecodePreview(body, "csv")
	require.NoError(t, err)
	assert.Equal(t, recs, again)
}

func TestDecodePreview_Errors(t *testing.T) {
	_, err := DecodePreview([]byte(`{not json`), "x")
	assert.Error(t, err)

	_, err = DecodePreview([]byte(`"a string"`), "x")
	assert.Error(t, err)

	recs, err := DecodePreview([]byte(`{"unexpected":[]}`), "x")
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestDecodeEnrichment_Aliases(t *testing.T) {
	body := []byte(`{"leads":[
		{"company_name":"Mid Ohio Forklift Co","original_company_name":"Mid-Ohio Forklift",
		 "contact_email":"a@b.com","contact_name":"Ann","website":"midohio.com","final_score":82},
		{"companyName":"Beta","contact":{"name":"Bo","email":"bo@beta.com","phone":"555"},"score":"n/a"},
		{"company":"Gamma","emails":[{"email":"g@gamma.com"},"g2@gamma.com"]},
		{"contact_email":"orphan@x.com"}
	]}`)

	recs, err := DecodeEnrichment(body)
	require.NoError(t, err)
	require.Len(t, recs, 3)

	assert.Equal(t, "Mid Ohio Forklift Co", recs[0].CompanyName)
	assert.Equal(t, "Mid-Ohio Forklift", recs[0].OriginalCompanyName)
	assert.Equal(t, "a@b.com", recs[0].ContactEmail)
	require.NotNil(t, recs[0].FinalScore)
	assert.InDelta(t, 82.0, *recs[0].FinalScore, 0.001)

	assert.Equal(t, "Bo", recs[1].ContactName)
	assert.Equal(t, "bo@beta.com", recs[1].ContactEmail)
	assert.Equal(t, "555", recs[1].ContactPhone)
	assert.Nil(t, recs[1].FinalScore)

	assert.Equal(t, []string{"g@gamma.com", "g2@gamma.com"}, recs[2].ContactEmails)
}

func TestDecodeEnrichment_ResultsKey(t *testing.T) {
	recs, err := DecodeEnrichment([]byte(`{"results":[{"company_name":"Acme"}]}`))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Acme", recs[0].CompanyName)

	recs, err = DecodeEnrichment([]byte(`{"leads":[]}`))
	require.NoError(t, err)
	assert.Empty(t, recs)
}
