package source

import (
	"context"
	"errors"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-wizard/internal/model"
	"github.com/sells-group/lead-wizard/pkg/anthropic"
	anthropicmocks "github.com/sells-group/lead-wizard/pkg/anthropic/mocks"
)

func textResponse(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Model:   "claude-haiku-4-5-20251001",
		Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
	}
}

func TestLLMIntentParser_Parse(t *testing.T) {
	client := anthropicmocks.NewMockClient(t)
	client.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return req.Model == "claude-haiku-4-5-20251001" &&
			len(req.Messages) == 1 && req.Messages[0].Content == "forklift dealers in Ohio" &&
			len(req.System) == 1 && req.System[0].CacheControl != nil
	})).Return(textResponse("Here you go:\n```json\n"+
		`{"industry":"forklift dealers","location":"Ohio","company_size":"","keywords":["forklift","material handling"]}`+
		"\n```"), nil)

	p := NewLLMIntentParser(client, "claude-haiku-4-5-20251001")
	intent, err := p.Parse(context.Background(), "  forklift dealers in Ohio ")
	require.NoError(t, err)
	assert.Equal(t, "forklift dealers", intent.Industry)
	assert.Equal(t, "Ohio", intent.Location)
	assert.Empty(t, intent.CompanySize)
	assert.Equal(t, []string{"forklift", "material handling"}, intent.Keywords)
}

func TestLLMIntentParser_KeywordsAsString(t *testing.T) {
	client := anthropicmocks.NewMockClient(t)
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse(`{"industry":"dental","companySize":"small","keywords":"orthodontics, implants"}`), nil)

	intent, err := NewLLMIntentParser(client, "m").Parse(context.Background(), "small dental practices")
	require.NoError(t, err)
	assert.Equal(t, "small", intent.CompanySize)
	assert.Equal(t, []string{"orthodontics", "implants"}, intent.Keywords)
}

func TestLLMIntentParser_Errors(t *testing.T) {
	t.Run("empty query skips the call", func(t *testing.T) {
		client := anthropicmocks.NewMockClient(t)
		_, err := NewLLMIntentParser(client, "m").Parse(context.Background(), "   ")
		assert.True(t, eris.Is(err, ErrEmptyQuery))
	})

	t.Run("api error", func(t *testing.T) {
		client := anthropicmocks.NewMockClient(t)
		client.On("CreateMessage", mock.Anything, mock.Anything).Return(nil, errors.New("overloaded"))
		_, err := NewLLMIntentParser(client, "m").Parse(context.Background(), "x")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parse intent")
	})

	t.Run("no json", func(t *testing.T) {
		client := anthropicmocks.NewMockClient(t)
		client.On("CreateMessage", mock.Anything, mock.Anything).Return(textResponse("I cannot help"), nil)
		_, err := NewLLMIntentParser(client, "m").Parse(context.Background(), "x")
		assert.Error(t, err)
	})

	t.Run("empty criteria", func(t *testing.T) {
		client := anthropicmocks.NewMockClient(t)
		client.On("CreateMessage", mock.Anything, mock.Anything).
			Return(textResponse(`{"industry":"","location":"","keywords":[]}`), nil)
		_, err := NewLLMIntentParser(client, "m").Parse(context.Background(), "hello")
		assert.True(t, eris.Is(err, ErrNoIntent))
	})
}

func TestKeywordIntentParser(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  model.Intent
	}{
		{
			name:  "location and range",
			query: "HVAC contractors in Columbus, OH with 50-200 employees",
			want: model.Intent{
				Industry:    "hvac contractors",
				Location:    "Columbus, OH",
				CompanySize: "50-200",
				Keywords:    []string{"hvac", "contractors"},
			},
		},
		{
			name:  "size word",
			query: "Find small accounting firms near Denver",
			want: model.Intent{
				Industry:    "accounting",
				Location:    "Denver",
				CompanySize: "small",
				Keywords:    []string{"accounting"},
			},
		},
		{
			name:  "keywords only",
			query: "solar installers",
			want: model.Intent{
				Industry: "solar installers",
				Keywords: []string{"solar", "installers"},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := KeywordIntentParser{}.Parse(context.Background(), tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := KeywordIntentParser{}.Parse(context.Background(), "")
	assert.True(t, eris.Is(err, ErrEmptyQuery))
	_, err = KeywordIntentParser{}.Parse(context.Background(), "find the companies")
	assert.True(t, eris.Is(err, ErrNoIntent))
}

type stubParser struct {
	intent model.Intent
	err    error
	calls  int
}

func (s *stubParser) Parse(context.Context, string) (model.Intent, error) {
	s.calls++
	return s.intent, s.err
}

func TestFallbackParser(t *testing.T) {
	t.Run("primary ok", func(t *testing.T) {
		primary := &stubParser{intent: model.Intent{Industry: "a"}}
		fallback := &stubParser{}
		got, err := FallbackParser{Primary: primary, Fallback: fallback}.Parse(context.Background(), "q")
		require.NoError(t, err)
		assert.Equal(t, "a", got.Industry)
		assert.Zero(t, fallback.calls)
	})

	t.Run("primary fails", func(t *testing.T) {
		primary := &stubParser{err: errors.New("down")}
		fallback := &stubParser{intent: model.Intent{Industry: "b"}}
		got, err := FallbackParser{Primary: primary, Fallback: fallback}.Parse(context.Background(), "q")
		require.NoError(t, err)
		assert.Equal(t, "b", got.Industry)
	})

	t.Run("empty query not retried", func(t *testing.T) {
		primary := &stubParser{err: ErrEmptyQuery}
		fallback := &stubParser{}
		_, err := FallbackParser{Primary: primary, Fallback: fallback}.Parse(context.Background(), "")
		assert.Error(t, err)
		assert.Zero(t, fallback.calls)
	})
}
