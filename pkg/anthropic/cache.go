package anthropic

// BuildCachedSystemBlocks constructs a single system block with an ephemeral
// cache breakpoint. ttl is "5m" or "1h"; empty uses the API default.
func BuildCachedSystemBlocks(text, ttl string) []SystemBlock {
	return []SystemBlock{
		{
			Text:         text,
			CacheControl: &CacheControl{TTL: ttl},
		},
	}
}
