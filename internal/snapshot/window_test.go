package snapshot

import (
	"strings"
	"testing"
)

func TestWindowSmallTextPassesThrough(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"empty", ""},
		{"short", "hello world"},
		{"exactly at limit", strings.Repeat("x", 100)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := WindowN(tt.text, 0, 100, 20)
			if res.Truncated {
				t.Error("expected untruncated result")
			}
			if res.Chunk != tt.text {
				t.Errorf("chunk altered: %q", res.Chunk)
			}
			if res.HasMore {
				t.Error("expected no more chunks")
			}
			if res.TotalLength != len(tt.text) {
				t.Errorf("TotalLength = %d, want %d", res.TotalLength, len(tt.text))
			}
		})
	}
}

func TestWindowOversizedIncludesTail(t *testing.T) {
	// Distinct pagination block at the end, like page navigation controls.
	tail := strings.Repeat("P", 100)
	body := strings.Repeat("b", 200000-len(tail))
	text := body + tail

	res := WindowN(text, 0, 4000, 100)
	if !res.Truncated {
		t.Fatal("expected truncation")
	}
	if len(res.Chunk) > 4000 {
		t.Errorf("chunk exceeds budget: %d", len(res.Chunk))
	}
	if !strings.HasPrefix(res.Chunk, "bbbb") {
		t.Error("expected chunk to start with document head")
	}
	if !strings.HasSuffix(res.Chunk, tail) {
		t.Error("expected chunk to end with the tail block")
	}
	if !res.HasMore {
		t.Error("expected more chunks")
	}

	// Feeding NextOffset back yields different leading content but the
	// same tail block.
	res2 := WindowN(text, res.NextOffset, 4000, 100)
	if res2.Chunk[:100] == res.Chunk[:100] {
		t.Error("expected different leading content in second chunk")
	}
	if !strings.HasSuffix(res2.Chunk, tail) {
		t.Error("expected second chunk to also end with the tail block")
	}
}

func TestWindowIterationCoversEveryCharOnce(t *testing.T) {
	// Use distinct characters so reassembly detects gaps and overlaps.
	var b strings.Builder
	for i := 0; i < 5000; i++ {
		b.WriteByte(byte('a' + i%26))
	}
	text := b.String()
	const maxChars, tailChars = 1000, 100
	tailStart := len(text) - tailChars

	var rebuilt strings.Builder
	offset := 0
	for i := 0; ; i++ {
		if i > 100 {
			t.Fatal("iteration did not terminate")
		}
		res := WindowN(text, offset, maxChars, tailChars)
		if !res.Truncated {
			t.Fatal("expected truncation throughout iteration")
		}
		if len(res.Chunk) > maxChars {
			t.Fatalf("chunk %d exceeds budget: %d", i, len(res.Chunk))
		}
		if !strings.HasSuffix(res.Chunk, text[tailStart:]) {
			t.Fatalf("chunk %d missing tail", i)
		}
		if res.NextOffset <= offset && res.HasMore {
			t.Fatalf("NextOffset did not advance: %d -> %d", offset, res.NextOffset)
		}
		// Content slice is everything before the truncation marker.
		idx := strings.Index(res.Chunk, "\n\n[content truncated:")
		if idx < 0 {
			t.Fatalf("chunk %d missing marker", i)
		}
		rebuilt.WriteString(res.Chunk[:idx])
		if !res.HasMore {
			break
		}
		offset = res.NextOffset
	}

	if rebuilt.String() != text[:tailStart] {
		t.Errorf("iteration did not reassemble pre-tail region exactly: got %d chars, want %d",
			rebuilt.Len(), tailStart)
	}
}

func TestWindowClampsOffset(t *testing.T) {
	text := strings.Repeat("z", 5000)
	const maxChars, tailChars = 1000, 100
	tailStart := len(text) - tailChars

	t.Run("negative offset", func(t *testing.T) {
		res := WindowN(text, -50, maxChars, tailChars)
		if res.NextOffset != maxChars-tailChars-MarkerReserve {
			t.Errorf("expected slice from 0, NextOffset = %d", res.NextOffset)
		}
	})

	t.Run("offset past tail boundary", func(t *testing.T) {
		res := WindowN(text, len(text)+100, maxChars, tailChars)
		if res.HasMore {
			t.Error("expected final chunk")
		}
		if res.NextOffset != tailStart {
			t.Errorf("NextOffset = %d, want %d", res.NextOffset, tailStart)
		}
	})
}

func TestWindowMarkerStatesRange(t *testing.T) {
	text := strings.Repeat("q", 3000)
	res := WindowN(text, 0, 1000, 100)
	if !strings.Contains(res.Chunk, "of 3000") {
		t.Errorf("marker should state total length: %q", res.Chunk[600:800])
	}
	if !strings.Contains(res.Chunk, "offset=") {
		t.Error("marker should state the next offset")
	}
}

func TestWindowTightBudgetStillAdvances(t *testing.T) {
	// A tail nearly as large as the whole budget leaves no room for
	// content after the marker reserve. The window must neither panic nor
	// stall; it falls back to a minimal content slice per chunk.
	text := strings.Repeat("x", 10000)
	const maxChars, tailChars = 2100, 2000
	tailStart := len(text) - tailChars

	offset := 0
	for i := 0; ; i++ {
		if i > 1000 {
			t.Fatal("iteration did not terminate")
		}
		res := WindowN(text, offset, maxChars, tailChars)
		if !res.Truncated {
			t.Fatal("expected truncation")
		}
		if res.HasMore && res.NextOffset <= offset {
			t.Fatalf("NextOffset did not advance: %d -> %d", offset, res.NextOffset)
		}
		if !res.HasMore {
			if res.NextOffset != tailStart {
				t.Errorf("final NextOffset = %d, want %d", res.NextOffset, tailStart)
			}
			break
		}
		offset = res.NextOffset
	}
}

func TestWindowDefaults(t *testing.T) {
	small := "tiny"
	if res := Window(small, 0); res.Truncated || res.Chunk != small {
		t.Error("defaults should pass small text through")
	}

	big := strings.Repeat("w", DefaultMaxChars+1)
	res := Window(big, 0)
	if !res.Truncated {
		t.Error("expected truncation above DefaultMaxChars")
	}
	if len(res.Chunk) > DefaultMaxChars {
		t.Errorf("chunk exceeds default budget: %d", len(res.Chunk))
	}
}
