package anthropic

import "go.uber.org/zap"

// TokenUsage is the token accounting of one call.
type TokenUsage struct {
	InputTokens              int64
	OutputTokens             int64
	CacheCreationInputTokens int64
	CacheReadInputTokens     int64
}

// price is USD per million tokens.
type price struct {
	input, output float64
}

var prices = map[string]price{
	"claude-haiku-4-5-20251001":  {input: 0.80, output: 4.00},
	"claude-sonnet-4-5-20250929": {input: 3.00, output: 15.00},
}

// Cache writes cost 1.25x input, cache reads 0.1x.
const (
	cacheWriteMul = 1.25
	cacheReadMul  = 0.1
)

// EstimateCost returns the USD cost of u on model, or 0 for unpriced models.
func (u TokenUsage) EstimateCost(model string) float64 {
	p, ok := prices[model]
	if !ok {
		return 0
	}
	const mtok = 1e6
	in := float64(u.InputTokens) + float64(u.CacheCreationInputTokens)*cacheWriteMul + float64(u.CacheReadInputTokens)*cacheReadMul
	return in/mtok*p.input + float64(u.OutputTokens)/mtok*p.output
}

// LogCost logs the usage of a call made for purpose ("intent", "insight").
func (u TokenUsage) LogCost(model, purpose string) {
	zap.L().Info("anthropic usage",
		zap.String("model", model),
		zap.String("purpose", purpose),
		zap.Int64("input_tokens", u.InputTokens),
		zap.Int64("output_tokens", u.OutputTokens),
		zap.Int64("cache_write_tokens", u.CacheCreationInputTokens),
		zap.Int64("cache_read_tokens", u.CacheReadInputTokens),
		zap.Float64("estimated_cost_usd", u.EstimateCost(model)),
	)
}
