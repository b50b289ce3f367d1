package segment

import "strings"

// isTerminator reports whether r ends a sentence outside quotes.
func isTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

// splitSentences scans text rune by rune and cuts it into trimmed,
// non-empty sentences.
//
// A '.', '!' or '?' terminates a sentence only when the scanner is outside
// a double-quote span and the terminator is not immediately followed by
// another '.' — so ellipses and chained dots stay inside one sentence, and
// punctuation inside dialog never splits the surrounding sentence. Quote
// state is tracked by parity; an unterminated quote simply extends to the
// end of the text.
func splitSentences(text string) []string {
	runes := []rune(text)
	var sentences []string
	var cur strings.Builder
	inQuote := false

	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			sentences = append(sentences, s)
		}
		cur.Reset()
	}

	for i, r := range runes {
		cur.WriteRune(r)

		if r == '"' {
			inQuote = !inQuote
			continue
		}
		if !isTerminator(r) || inQuote {
			continue
		}
		// Ellipsis or "..": keep scanning.
		if i+1 < len(runes) && runes[i+1] == '.' {
			continue
		}
		flush()
	}
	flush()

	return sentences
}
