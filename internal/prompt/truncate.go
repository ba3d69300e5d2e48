package prompt

// Defaults for Budget fields left at zero.
const (
	DefaultContextTokens = 32000
	DefaultCharsPerToken = 4
	DefaultReservedChars = 4000
)

// Budget bounds the size of the assembled prompt. Token counts are estimated
// from character counts; the estimate is deliberately coarse.
type Budget struct {
	ContextTokens int
	CharsPerToken int
	// ReservedChars is headroom kept free for the model's response.
	ReservedChars int
}

// WithDefaults returns b with zero fields replaced by package defaults.
func (b Budget) WithDefaults() Budget {
	if b.ContextTokens <= 0 {
		b.ContextTokens = DefaultContextTokens
	}
	if b.CharsPerToken <= 0 {
		b.CharsPerToken = DefaultCharsPerToken
	}
	if b.ReservedChars < 0 {
		b.ReservedChars = 0
	}
	return b
}

// HistoryChars is the number of characters available for history once the
// system instructions, retrieved context, query and response headroom are paid for.
func (b Budget) HistoryChars(retrievedContext, query string) int {
	return b.ContextTokens*b.CharsPerToken -
		(b.ReservedChars + len(SystemInstructions) + len(retrievedContext) + len(query))
}

// Truncate drops the oldest turns until history fits the budget, then strips
// leading assistant turns whose user turn was dropped. The result is empty or
// starts with a user turn. The input slice is not modified.
func Truncate(history []Turn, retrievedContext, query string, b Budget) ([]Turn, bool) {
	limit := b.HistoryChars(retrievedContext, query)
	total := Size(history)
	start := 0
	for start < len(history) && (limit <= 0 || total > limit) {
		total -= len(history[start].Text)
		start++
	}
	for start < len(history) && history[start].Role != RoleUser {
		start++
	}
	if start == 0 {
		return history, false
	}
	out := make([]Turn, len(history)-start)
	copy(out, history[start:])
	return out, true
}

// Size reports the total character count of history.
func Size(history []Turn) int {
	n := 0
	for _, t := range history {
		n += len(t.Text)
	}
	return n
}
