// Package tokenutil provides token counting for LLM usage accounting,
// backed by tiktoken-go. The cl100k_base encoding is initialized once and a
// character-based heuristic is used when initialization fails (for example
// in offline test environments that cannot fetch the encoding tables).
package tokenutil

import (
	"strings"
	"sync"
	"unicode"

	"github.com/pkoukk/tiktoken-go"
)

var (
	once     sync.Once
	encoding *tiktoken.Tiktoken
)

func initEncoding() {
	once.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			encoding = enc
		}
	})
}

// CountTokens returns a token count for text using cl100k_base encoding,
// falling back to EstimateFast when tiktoken is unavailable.
func CountTokens(text string) int {
	initEncoding()
	if encoding != nil {
		return len(encoding.Encode(text, nil, nil))
	}
	return EstimateFast(text)
}

// EstimateFast returns a heuristic token estimate without the encoder.
// Han runes encode at roughly one token each under cl100k_base, so they are
// counted individually; the rest of the text is estimated at four characters
// per token, floored by the word count.
func EstimateFast(text string) int {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0
	}
	han, other := 0, 0
	for _, r := range trimmed {
		switch {
		case unicode.Is(unicode.Han, r):
			han++
		case !unicode.IsSpace(r):
			other++
		}
	}
	words := len(strings.Fields(trimmed))
	estimate := han + other/4
	if estimate < words {
		estimate = words
	}
	if estimate == 0 {
		estimate = 1
	}
	return estimate
}
