// Package snapshot bounds oversized page text for token-budgeted consumers.
// Every window keeps a fixed-size tail of the document so pagination and
// navigation affordances at the end of a long page stay reachable from any
// chunk.
package snapshot

import "fmt"

const (
	// DefaultMaxChars is the hard ceiling on a single window payload.
	DefaultMaxChars = 40000
	// DefaultTailChars is the suffix included in every window.
	DefaultTailChars = 2000
	// MarkerReserve is budget held back for the truncation marker. The
	// marker text is shorter than this; reserving a fixed amount keeps the
	// content slice boundaries independent of the marker's digit widths.
	MarkerReserve = 200

	// minContent is the floor on the per-window content slice. It keeps
	// NextOffset strictly advancing even under a budget too tight to hold
	// the tail and marker, at the cost of slightly overshooting maxChars.
	minContent = 64
)

// Result is one bounded view of a larger text.
type Result struct {
	Chunk       string `json:"chunk"`
	Truncated   bool   `json:"truncated"`
	TotalLength int    `json:"total_length"`
	HasMore     bool   `json:"has_more"`
	NextOffset  int    `json:"next_offset"`
}

// Window slices text at offset using the default budget.
func Window(text string, offset int) Result {
	return WindowN(text, offset, DefaultMaxChars, DefaultTailChars)
}

// WindowN slices text at offset with explicit budgets. Iterating from offset
// zero via NextOffset until HasMore is false visits every pre-tail character
// exactly once; the tail appears in every chunk.
func WindowN(text string, offset, maxChars, tailChars int) Result {
	total := len(text)
	if total <= maxChars {
		return Result{Chunk: text, TotalLength: total}
	}

	tailStart := total - tailChars
	if offset < 0 {
		offset = 0
	}
	if offset > tailStart {
		offset = tailStart
	}

	contentBudget := maxChars - tailChars - MarkerReserve
	if contentBudget < minContent {
		contentBudget = minContent
	}
	end := offset + contentBudget
	if end > tailStart {
		end = tailStart
	}

	marker := fmt.Sprintf(
		"\n\n[content truncated: showing chars %d-%d of %d; request offset=%d for the next chunk]\n\n",
		offset, end, total, end,
	)

	return Result{
		Chunk:       text[offset:end] + marker + text[tailStart:],
		Truncated:   true,
		TotalLength: total,
		HasMore:     end < tailStart,
		NextOffset:  end,
	}
}
