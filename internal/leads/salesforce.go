package leads

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/lead-wizard/internal/model"
	"github.com/sells-group/lead-wizard/internal/reconcile"
	"github.com/sells-group/lead-wizard/pkg/salesforce"
)

// SalesforceStore keeps leads as Accounts with one Contact each.
type SalesforceStore struct {
	client      salesforce.Client
	concurrency int
	searchLimit int
}

// Option configures a SalesforceStore.
type Option func(*SalesforceStore)

// WithConcurrency bounds the number of parallel existence queries.
func WithConcurrency(n int) Option {
	return func(s *SalesforceStore) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// NewSalesforceStore creates a Store over client. Rate limiting is the
// client's job (salesforce.WithRateLimit).
func NewSalesforceStore(client salesforce.Client, opts ...Option) *SalesforceStore {
	s := &SalesforceStore{client: client, concurrency: 4, searchLimit: 5}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Create implements Store.
func (s *SalesforceStore) Create(ctx context.Context, lead model.Lead) (string, error) {
	name := strings.TrimSpace(lead.CompanyName)
	if name == "" {
		return "", eris.New("leads: company name is required")
	}

	fields := map[string]any{"Name": name}
	setIf(fields, "Website", lead.Website)
	setIf(fields, "Industry", lead.Industry)
	setIf(fields, "Phone", lead.Phone)
	setIf(fields, "BillingCity", lead.Location)
	if lead.Employees > 0 {
		fields["NumberOfEmployees"] = lead.Employees
	}

	accountID, err := salesforce.CreateAccount(ctx, s.client, fields)
	if err != nil {
		if salesforce.IsDuplicate(err) {
			return "", &DuplicateEntityError{Entity: "Account", Name: name, Err: err}
		}
		return "", eris.Wrap(err, "leads: create")
	}

	if hasContact(lead.Contact) {
		if _, err := salesforce.CreateContact(ctx, s.client, accountID, contactFields(lead.Contact)); err != nil {
			if salesforce.IsDuplicate(err) {
				zap.L().Debug("contact already exists", zap.String("account_id", accountID))
				return accountID, nil
			}
			return accountID, eris.Wrapf(err, "leads: create contact for %s", name)
		}
	}
	return accountID, nil
}

// FindByCompanyName implements Store. Exact canonical matches come first,
// then accounts whose name extends the searched name.
func (s *SalesforceStore) FindByCompanyName(ctx context.Context, name string) ([]model.ExistingLead, error) {
	accounts, err := salesforce.FindAccountsByName(ctx, s.client, name, s.searchLimit)
	if err != nil {
		return nil, eris.Wrap(err, "leads: find by company name")
	}

	want := reconcile.Canonicalize(name)
	var exact, prefix []model.ExistingLead
	for _, a := range accounts {
		got := reconcile.Canonicalize(a.Name)
		lead := model.ExistingLead{ID: a.ID, CompanyName: a.Name, Website: a.Website}
		switch {
		case got == want:
			exact = append(exact, lead)
		case want != "" && strings.HasPrefix(got, want):
			prefix = append(prefix, lead)
		}
	}
	return append(exact, prefix...), nil
}

// AttachContact implements Store.
func (s *SalesforceStore) AttachContact(ctx context.Context, leadID string, contact model.Contact) error {
	if _, err := salesforce.CreateContact(ctx, s.client, leadID, contactFields(contact)); err != nil {
		if salesforce.IsDuplicate(err) {
			return &DuplicateEntityError{Entity: "Contact", Name: contact.Email, Err: err}
		}
		return eris.Wrap(err, "leads: attach contact")
	}
	return nil
}

// BatchCheckExists implements Store. Names are queried in chunks that run
// concurrently; matching is by canonical name.
func (s *SalesforceStore) BatchCheckExists(ctx context.Context, names []string) (map[string]bool, error) {
	out := make(map[string]bool, len(names))
	var unique []string
	seen := make(map[string]bool)
	for _, n := range names {
		out[n] = false
		t := strings.TrimSpace(n)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		unique = append(unique, t)
	}
	if len(unique) == 0 {
		return out, nil
	}

	var chunks [][]string
	for start := 0; start < len(unique); start += salesforce.MaxNamesPerQuery {
		end := min(start+salesforce.MaxNamesPerQuery, len(unique))
		chunks = append(chunks, unique[start:end])
	}

	found := make([][]salesforce.Account, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, chunk := range chunks {
		g.Go(func() error {
			accts, err := salesforce.FindAccountsByNames(gctx, s.client, chunk)
			if err != nil {
				return err
			}
			found[i] = accts
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "leads: batch check exists")
	}

	existing := make(map[string]bool)
	for _, accts := range found {
		for _, a := range accts {
			existing[reconcile.Canonicalize(a.Name)] = true
		}
	}
	for n := range out {
		if c := reconcile.Canonicalize(n); c != "" && existing[c] {
			out[n] = true
		}
	}
	return out, nil
}

func hasContact(c model.Contact) bool {
	return strings.TrimSpace(c.Email) != "" || strings.TrimSpace(c.Name) != ""
}

// contactFields maps a contact onto Salesforce Contact fields. LastName is
// mandatory there, so a missing name falls back to the email's local part.
func contactFields(c model.Contact) map[string]any {
	first, last := splitName(c.Name)
	if last == "" {
		last = strings.TrimSpace(c.Email)
		if at := strings.IndexByte(last, '@'); at > 0 {
			last = last[:at]
		}
	}
	if last == "" {
		last = "Unknown"
	}
	fields := map[string]any{"LastName": last}
	setIf(fields, "FirstName", first)
	setIf(fields, "Email", strings.TrimSpace(c.Email))
	setIf(fields, "Phone", strings.TrimSpace(c.Phone))
	return fields
}

func splitName(name string) (first, last string) {
	parts := strings.Fields(name)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return "", parts[0]
	default:
		return strings.Join(parts[:len(parts)-1], " "), parts[len(parts)-1]
	}
}

func setIf(fields map[string]any, key, value string) {
	if value = strings.TrimSpace(value); value != "" {
		fields[key] = value
	}
}
