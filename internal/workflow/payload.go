package workflow

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// DefineRequest is the step 1 payload.
type DefineRequest struct {
	Query string `json:"query" validate:"required,min=2,max=500"`
}

// Validate validates the DefineRequest.
func (r *DefineRequest) Validate() error {
	return validate.Struct(r)
}

// RefineRequest is the step 2 payload.
type RefineRequest struct {
	NumberOfLeads int `json:"number_of_leads" validate:"required,min=1"`
}

// Validate checks the request against the configured lead cap.
func (r *RefineRequest) Validate(maxLeads int) error {
	if err := validate.Struct(r); err != nil {
		return err
	}
	return validate.Var(r.NumberOfLeads, fmt.Sprintf("max=%d", maxLeads))
}

// ChooseRequest is the step 3 payload.
type ChooseRequest struct {
	CompanyIDs []string `json:"company_ids" validate:"required,min=1,dive,required"`
}

// Validate validates the ChooseRequest.
func (r *ChooseRequest) Validate() error {
	return validate.Struct(r)
}

// FinishRequest is the step 4 payload.
type FinishRequest struct {
	RecordIDs []string `json:"record_ids" validate:"required,min=1,dive,required"`
}

// Validate validates the FinishRequest.
func (r *FinishRequest) Validate() error {
	return validate.Struct(r)
}
