package anthropic

// CachedSystem builds a single system block with an ephemeral cache
// breakpoint. Stages that send the same instructions for every sheet use it
// so only the first call pays the full input price.
func CachedSystem(text, ttl string) []SystemBlock {
	return []SystemBlock{{Text: text, CacheControl: &CacheControl{TTL: ttl}}}
}

// PlainSystem builds a single uncached system block.
func PlainSystem(text string) []SystemBlock {
	if text == "" {
		return nil
	}
	return []SystemBlock{{Text: text}}
}
