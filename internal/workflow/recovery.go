package workflow

import (
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/lead-wizard/internal/model"
)

// RecoveryPolicy tunes the stale-session check that runs after entering
// step 3 or 4.
type RecoveryPolicy struct {
	// SettleDelay is how long to wait before checking, so a restore that is
	// still landing is not mistaken for missing data.
	SettleDelay time.Duration
	// ProgressWindow treats the session as in normal forward progression
	// when the last forward transition is younger than this.
	ProgressWindow time.Duration
}

// DefaultRecoveryPolicy returns the defaults used by the server.
func DefaultRecoveryPolicy() RecoveryPolicy {
	return RecoveryPolicy{
		SettleDelay:    time.Second,
		ProgressWindow: 30 * time.Second,
	}
}

// missingUpstream reports ErrNoData when the step cannot be shown.
func missingUpstream(s model.Session) error {
	switch s.Step {
	case model.StepChoose:
		if len(s.PreviewResults) == 0 {
			return ErrNoData
		}
	case model.StepEnrich:
		if len(s.PreviewResults) == 0 || len(s.SelectedCompanies) == 0 {
			return ErrNoData
		}
	}
	return nil
}

// needsRecovery decides whether the session is stale. Caller holds c.mu.
func (c *Controller) needsRecovery() bool {
	if missingUpstream(c.session) == nil {
		return false
	}
	inProgress := (!c.lastForward.IsZero() && c.now().Sub(c.lastForward) < c.policy.ProgressWindow) ||
		(c.session.Step == model.StepEnrich && len(c.session.PreviewResults) > 0)
	return c.session.CompletedOnce || !inProgress
}

// scheduleRecovery arms the settle timer when the current step needs
// upstream data. Caller holds c.mu.
func (c *Controller) scheduleRecovery() {
	if c.session.Step != model.StepChoose && c.session.Step != model.StepEnrich {
		return
	}
	if c.recovery != nil {
		c.recovery.Stop()
	}
	gen := c.generation
	c.recovery = time.AfterFunc(c.policy.SettleDelay, func() {
		c.checkRecovery(gen)
	})
}

// checkRecovery resets the session when it is still the one the timer was
// armed for and it is stale.
func (c *Controller) checkRecovery(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation || c.closed || !c.needsRecovery() {
		return
	}
	zap.L().Info("workflow: stale session, returning to first step",
		zap.String("tab", c.id),
		zap.Stringer("step", c.session.Step),
		zap.Error(missingUpstream(c.session)),
	)
	c.resetLocked()
}
