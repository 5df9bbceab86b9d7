package salesforce

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Account represents a Salesforce Account record.
type Account struct {
	ID                string `json:"Id" salesforce:"Id"`
	Name              string `json:"Name" salesforce:"Name"`
	Website           string `json:"Website" salesforce:"Website"`
	Industry          string `json:"Industry" salesforce:"Industry"`
	Description       string `json:"Description" salesforce:"Description"`
	BillingCity       string `json:"BillingCity" salesforce:"BillingCity"`
	BillingState      string `json:"BillingState" salesforce:"BillingState"`
	Phone             string `json:"Phone" salesforce:"Phone"`
	NumberOfEmployees int    `json:"NumberOfEmployees" salesforce:"NumberOfEmployees"`
}

// accountFields are the SOQL fields selected for Account queries.
var accountFields = []string{
	"Id", "Name", "Website", "Industry", "Description",
	"BillingCity", "BillingState", "Phone", "NumberOfEmployees",
}

// MaxNamesPerQuery bounds the IN clause of FindAccountsByNames so the SOQL
// statement stays well under the request-line limit.
const MaxNamesPerQuery = 100

// FindAccountsByName returns Accounts whose Name equals name or starts with
// it, most recently created first.
func FindAccountsByName(ctx context.Context, c Client, name string, limit int) ([]Account, error) {
	if strings.TrimSpace(name) == "" {
		return nil, eris.New("sf: account name is required")
	}
	if limit <= 0 {
		limit = 5
	}
	escaped := escapeSoql(name)
	soql := fmt.Sprintf(
		"SELECT %s FROM Account WHERE Name = '%s' OR Name LIKE '%s%%' ORDER BY CreatedDate DESC LIMIT %d",
		strings.Join(accountFields, ", "),
		escaped, escapeLike(escaped), limit,
	)

	var accounts []Account
	if err := c.Query(ctx, soql, &accounts); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("sf: find accounts by name %s", name))
	}
	return accounts, nil
}

// FindAccountsByNames returns the Accounts whose Name is exactly one of names.
// At most MaxNamesPerQuery names are accepted per call.
func FindAccountsByNames(ctx context.Context, c Client, names []string) ([]Account, error) {
	if len(names) == 0 {
		return nil, nil
	}
	if len(names) > MaxNamesPerQuery {
		return nil, eris.Errorf("sf: %d names exceeds the per-query limit of %d", len(names), MaxNamesPerQuery)
	}
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = "'" + escapeSoql(n) + "'"
	}
	soql := fmt.Sprintf(
		"SELECT Id, Name FROM Account WHERE Name IN (%s)",
		strings.Join(quoted, ", "),
	)

	var accounts []Account
	if err := c.Query(ctx, soql, &accounts); err != nil {
		return nil, eris.Wrap(err, "sf: find accounts by names")
	}
	return accounts, nil
}

// FindAccountByID queries Salesforce for an Account by its ID.
// Returns nil if no account is found.
func FindAccountByID(ctx context.Context, c Client, id string) (*Account, error) {
	soql := fmt.Sprintf(
		"SELECT %s FROM Account WHERE Id = '%s' LIMIT 1",
		strings.Join(accountFields, ", "),
		escapeSoql(id),
	)

	var accounts []Account
	if err := c.Query(ctx, soql, &accounts); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("sf: find account by id %s", id))
	}
	if len(accounts) == 0 {
		return nil, nil
	}
	return &accounts[0], nil
}

// escapeSoql escapes backslashes and single quotes in SOQL string literals to
// prevent injection.
func escapeSoql(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, "'", `\'`)
}

// escapeLike escapes LIKE wildcards in an already-escaped literal.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, "%", `\%`)
	return strings.ReplaceAll(s, "_", `\_`)
}
