// Package source adapts the external intent parser, preview source and
// enrichment source to the workflow's internal record shapes.
package source

import (
	"context"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/sells-group/lead-wizard/internal/model"
	"github.com/sells-group/lead-wizard/pkg/anthropic"
)

// ErrEmptyQuery is returned when the query has no usable text.
var ErrEmptyQuery = eris.New("source: empty query")

// ErrNoIntent is returned when a parser could not derive any criteria.
var ErrNoIntent = eris.New("source: no search criteria in query")

// IntentParser turns a free-text query into structured search criteria.
type IntentParser interface {
	Parse(ctx context.Context, query string) (model.Intent, error)
}

const intentSystemPrompt = `You extract B2B company search criteria from a sales rep's request.
Reply with a single JSON object and nothing else:
{"industry": string, "location": string, "company_size": string, "keywords": [string]}
Use "" or [] for anything the request does not mention. company_size is one of
"small", "medium", "large", "enterprise" or an employee range like "50-200".`

// LLMIntentParser asks Claude for the criteria.
type LLMIntentParser struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewLLMIntentParser creates a parser that uses model via client.
func NewLLMIntentParser(client anthropic.Client, model string) *LLMIntentParser {
	return &LLMIntentParser{client: client, model: model, maxTokens: 512}
}

// Parse implements IntentParser.
func (p *LLMIntentParser) Parse(ctx context.Context, query string) (model.Intent, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return model.Intent{}, ErrEmptyQuery
	}

	temp := 0.0
	resp, err := p.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       p.model,
		MaxTokens:   p.maxTokens,
		System:      anthropic.BuildCachedSystemBlocks(intentSystemPrompt, "5m"),
		Messages:    []anthropic.Message{{Role: "user", Content: query}},
		Temperature: &temp,
	})
	if err != nil {
		return model.Intent{}, eris.Wrap(err, "source: parse intent")
	}
	resp.Usage.LogCost(p.model, "intent")

	intent, err := decodeIntent(resp.Text())
	if err != nil {
		return model.Intent{}, eris.Wrap(err, "source: parse intent")
	}
	if intent.IsZero() {
		return model.Intent{}, ErrNoIntent
	}
	return intent, nil
}

// decodeIntent reads the first JSON object embedded in text.
func decodeIntent(text string) (model.Intent, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return model.Intent{}, eris.New("no JSON object in answer")
	}
	raw := text[start : end+1]
	if !gjson.Valid(raw) {
		return model.Intent{}, eris.New("malformed JSON in answer")
	}
	obj := gjson.Parse(raw)

	intent := model.Intent{
		Industry:    firstString(obj, "industry"),
		Location:    firstString(obj, "location"),
		CompanySize: firstString(obj, "company_size", "companySize", "size"),
		Keywords:    stringList(obj, "keywords"),
	}
	if len(intent.Keywords) == 0 {
		if kw := firstString(obj, "keywords"); kw != "" {
			intent.Keywords = splitKeywords(kw)
		}
	}
	return intent, nil
}

var (
	locationRe = regexp.MustCompile(`\b(?i:in|near|around)\s+([A-Z][A-Za-z.'-]*(?:\s+[A-Z][A-Za-z.'-]*)*(?:,\s*[A-Z]{2})?)`)
	rangeRe    = regexp.MustCompile(`(?i)\b(\d+\s*-\s*\d+|\d+\+)\s*(?:employees|staff|people)\b`)
	sizeRe     = regexp.MustCompile(`(?i)\b(small|medium|mid-sized|large|enterprise)\b`)
	stopWords  = map[string]bool{
		"a": true, "an": true, "the": true, "and": true, "or": true, "of": true,
		"for": true, "with": true, "find": true, "me": true, "show": true,
		"companies": true, "company": true, "businesses": true, "business": true,
		"firms": true, "leads": true, "sized": true, "employees": true,
	}
)

// KeywordIntentParser derives criteria with simple patterns. It needs no
// network and backs up the LLM parser.
type KeywordIntentParser struct{}

// Parse implements IntentParser.
func (KeywordIntentParser) Parse(_ context.Context, query string) (model.Intent, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return model.Intent{}, ErrEmptyQuery
	}

	var intent model.Intent
	if m := locationRe.FindStringSubmatchIndex(q); m != nil {
		intent.Location = strings.TrimSpace(q[m[2]:m[3]])
		q = q[:m[0]] + " " + q[m[1]:]
	}
	if m := rangeRe.FindStringSubmatchIndex(q); m != nil {
		intent.CompanySize = strings.ReplaceAll(q[m[2]:m[3]], " ", "")
		q = q[:m[0]] + " " + q[m[1]:]
	} else if m := sizeRe.FindStringSubmatchIndex(q); m != nil {
		intent.CompanySize = strings.ToLower(q[m[2]:m[3]])
		if intent.CompanySize == "mid-sized" {
			intent.CompanySize = "medium"
		}
		q = q[:m[0]] + " " + q[m[1]:]
	}

	intent.Keywords = splitKeywords(q)
	intent.Industry = strings.Join(intent.Keywords, " ")
	if intent.IsZero() {
		return model.Intent{}, ErrNoIntent
	}
	return intent, nil
}

func splitKeywords(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\t' || r == '\n'
	})
	var out []string
	for _, f := range fields {
		f = strings.Trim(f, ".!?\"'()")
		if f == "" || stopWords[f] {
			continue
		}
		out = append(out, f)
	}
	return out
}

// FallbackParser uses Primary and falls back to Fallback when Primary fails
// for any reason other than an empty query.
type FallbackParser struct {
	Primary  IntentParser
	Fallback IntentParser
}

// Parse implements IntentParser.
func (p FallbackParser) Parse(ctx context.Context, query string) (model.Intent, error) {
	intent, err := p.Primary.Parse(ctx, query)
	if err == nil || eris.Is(err, ErrEmptyQuery) || p.Fallback == nil {
		return intent, err
	}
	zap.L().Warn("intent parser failed, using fallback", zap.Error(err))
	return p.Fallback.Parse(ctx, query)
}
