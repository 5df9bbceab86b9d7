package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/sells-group/lead-wizard/internal/mutate"
	"github.com/sells-group/lead-wizard/internal/resilience"
	"github.com/sells-group/lead-wizard/internal/source"
	"github.com/sells-group/lead-wizard/internal/workflow"
)

// errorBody is the JSON shape of a failed request.
type errorBody struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable,omitempty"`
	Session   any    `json:"session,omitempty"`
}

// statusFor maps an operation error onto an HTTP status and a user message.
func statusFor(err error) (int, string, bool) {
	var inErr *workflow.InputError
	var total *mutate.TotalBatchError
	switch {
	case errors.As(err, &inErr):
		return http.StatusBadRequest, inErr.Error(), false
	case errors.Is(err, source.ErrEmptyQuery), errors.Is(err, source.ErrNoIntent):
		return http.StatusUnprocessableEntity, "could not find search criteria in the query", false
	case errors.Is(err, workflow.ErrStepOrder):
		return http.StatusConflict, "operation not valid at the current step", false
	case errors.Is(err, workflow.ErrNoData):
		return http.StatusConflict, "this step has no data; go back and resubmit", false
	case errors.As(err, &total):
		return http.StatusBadGateway, total.Error(), resilience.IsTransient(total.Last)
	case resilience.IsTransient(err):
		return http.StatusServiceUnavailable, "upstream service unavailable, try again", true
	default:
		return http.StatusInternalServerError, "internal error", false
	}
}

// writeOpError logs and writes err. session is included so the client can
// re-render the unchanged state.
func writeOpError(w http.ResponseWriter, r *http.Request, op string, err error, session any) {
	status, msg, retryable := statusFor(err)
	log := zap.L().With(zap.String("op", op), zap.String("tab", r.Header.Get(HeaderTab)), zap.Error(err))
	if status >= http.StatusInternalServerError {
		log.Error("api: operation failed")
	} else {
		log.Info("api: operation rejected")
	}
	writeJSON(w, status, errorBody{Error: msg, Retryable: retryable, Session: session})
}

// partialWarning returns the "N saved, M failed" message for partial batches.
func partialWarning(err error) (string, bool) {
	var partial *mutate.PartialBatchError
	if errors.As(err, &partial) {
		return partial.Error(), true
	}
	return "", false
}
