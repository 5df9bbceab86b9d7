// Package insight writes a short AI-generated company summary onto newly
// saved leads.
package insight

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-wizard/internal/mutate"
	"github.com/sells-group/lead-wizard/pkg/anthropic"
	"github.com/sells-group/lead-wizard/pkg/salesforce"
)

// maxDescription is the Salesforce limit for Account.Description.
const maxDescription = 32000

const systemPrompt = `You are a B2B sales research assistant. Given what is known about a
company, write a concise account summary for a sales rep: what the company
likely does, who to approach, and one suggested opening angle. Plain text,
at most 120 words, no headings.`

// Analyzer summarizes a saved lead and stores the summary on the account.
type Analyzer struct {
	ai        anthropic.Client
	sf        salesforce.Client
	model     string
	maxTokens int64
}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer(ai anthropic.Client, sf salesforce.Client, model string) *Analyzer {
	return &Analyzer{ai: ai, sf: sf, model: model, maxTokens: 400}
}

// Func returns the analyzer as a mutate.AnalysisFunc.
func (a *Analyzer) Func() mutate.AnalysisFunc {
	return a.Analyze
}

// Analyze makes a single attempt; the caller owns timeouts.
func (a *Analyzer) Analyze(ctx context.Context, saved mutate.Saved) error {
	if saved.LeadID == "" {
		return eris.Errorf("insight: %s has no lead id", saved.Lead.CompanyName)
	}

	resp, err := a.ai.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		System:    anthropic.BuildCachedSystemBlocks(systemPrompt, "1h"),
		Messages:  []anthropic.Message{{Role: "user", Content: describe(saved)}},
	})
	if err != nil {
		return eris.Wrapf(err, "insight: analyze %s", saved.Lead.CompanyName)
	}
	resp.Usage.LogCost(a.model, "insight")

	summary := strings.TrimSpace(resp.Text())
	if summary == "" {
		return eris.Errorf("insight: empty summary for %s", saved.Lead.CompanyName)
	}
	if len(summary) > maxDescription {
		summary = summary[:maxDescription]
	}

	if err := salesforce.UpdateAccount(ctx, a.sf, saved.LeadID, map[string]any{
		"Description": summary,
	}); err != nil {
		return eris.Wrapf(err, "insight: store summary for %s", saved.Lead.CompanyName)
	}

	zap.L().Debug("insight: summary stored",
		zap.String("company", saved.Lead.CompanyName),
		zap.String("lead_id", saved.LeadID),
	)
	return nil
}

func describe(saved mutate.Saved) string {
	l := saved.Lead
	var b strings.Builder
	fmt.Fprintf(&b, "Company: %s\n", l.CompanyName)
	line := func(label, v string) {
		if v != "" {
			fmt.Fprintf(&b, "%s: %s\n", label, v)
		}
	}
	line("Website", l.Website)
	line("Industry", l.Industry)
	line("Location", l.Location)
	if l.Employees > 0 {
		fmt.Fprintf(&b, "Employees: %d\n", l.Employees)
	}
	line("Contact", l.Contact.Name)
	line("Contact email", l.Contact.Email)
	if l.Score > 0 {
		fmt.Fprintf(&b, "Lead score: %.0f\n", l.Score)
	}
	return b.String()
}
