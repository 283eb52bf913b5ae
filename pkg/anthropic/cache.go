package anthropic

// BuildCachedSystemBlocks constructs system content blocks with a cache
// breakpoint. The classification and normalization system prompts are
// identical across calls in a session, so a 5-minute TTL covers a fill batch.
func BuildCachedSystemBlocks(text string) []SystemBlock {
	return []SystemBlock{
		{
			Text:         text,
			CacheControl: &CacheControl{TTL: "5m"},
		},
	}
}
