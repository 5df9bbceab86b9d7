// Package leads writes saved leads to the CRM and answers existence checks.
package leads

import (
	"context"
	"errors"
	"fmt"

	"github.com/sells-group/lead-wizard/internal/model"
)

// Store is the lead database as seen by the save flow.
type Store interface {
	// Create writes a new lead and its contact. It returns a
	// *DuplicateEntityError when the lead already exists.
	Create(ctx context.Context, lead model.Lead) (string, error)
	// FindByCompanyName returns existing leads matching name, best match first.
	FindByCompanyName(ctx context.Context, name string) ([]model.ExistingLead, error)
	// AttachContact adds a contact to an existing lead. It returns a
	// *DuplicateEntityError when the contact already exists there.
	AttachContact(ctx context.Context, leadID string, contact model.Contact) error
	// BatchCheckExists reports, for every input name, whether a lead exists.
	BatchCheckExists(ctx context.Context, names []string) (map[string]bool, error)
}

// DuplicateEntityError reports that the CRM rejected a write as a duplicate.
type DuplicateEntityError struct {
	Entity string
	Name   string
	Err    error
}

func (e *DuplicateEntityError) Error() string {
	return fmt.Sprintf("leads: duplicate %s %q: %v", e.Entity, e.Name, e.Err)
}

func (e *DuplicateEntityError) Unwrap() error {
	return e.Err
}

// IsDuplicate reports whether err is or wraps a *DuplicateEntityError.
func IsDuplicate(err error) bool {
	var de *DuplicateEntityError
	return errors.As(err, &de)
}
