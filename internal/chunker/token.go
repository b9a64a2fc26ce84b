package chunker

import (
	"strings"
	"unicode"
)

// EstimateTokens approximates a token count: one per Han character plus
// 1.33 per whitespace-separated word of everything else.
func EstimateTokens(text string) int {
	han := 0
	var rest strings.Builder
	for _, r := range text {
		if unicode.Is(unicode.Han, r) {
			han++
			rest.WriteByte(' ')
			continue
		}
		rest.WriteRune(r)
	}
	words := len(strings.Fields(rest.String()))
	return han + int(float64(words)*1.33)
}
