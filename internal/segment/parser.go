package segment

import (
	"strings"

	"github.com/penumbralworks/narvox/internal/roster"
)

// Parse splits narrative into ordered dialog segments attributed to the
// game master, the player, or roster NPCs.
//
// The narrative is first cut into sentences (quote-aware, see
// splitSentences). Within each sentence every double-quoted span becomes a
// quoted segment with its speaker detected from the surrounding text;
// unquoted text around the spans is narrated by the game master. Adjacent
// segments with the same voice are merged within each sentence; whole
// sentences stay separate so playback can pace them individually. idx may
// be nil, in which case no speaker name resolves to a roster ID.
func Parse(narrative string, idx *roster.Index) []Segment {
	var segments []Segment
	for _, sentence := range splitSentences(narrative) {
		segments = append(segments, mergeAdjacent(parseSentence(sentence, idx))...)
	}
	return segments
}

// parseSentence emits the segments for a single sentence.
func parseSentence(sentence string, idx *roster.Index) []Segment {
	runes := []rune(sentence)

	var quotePos []int
	for i, r := range runes {
		if r == '"' {
			quotePos = append(quotePos, i)
		}
	}

	if len(quotePos) == 0 {
		return []Segment{{Speaker: SpeakerGM, Text: sentence}}
	}

	var segments []Segment
	prevEnd := 0

	for k := 0; k < len(quotePos); k += 2 {
		open := quotePos[k]
		// An unterminated quote extends to the end of the sentence.
		close := len(runes)
		if k+1 < len(quotePos) {
			close = quotePos[k+1]
		}

		if lead := strings.TrimSpace(string(runes[prevEnd:open])); lead != "" {
			segments = append(segments, Segment{Speaker: SpeakerGM, Text: lead})
		}

		quoted := strings.TrimSpace(string(runes[open+1 : close]))
		if quoted != "" {
			before := string(runes[:open])
			var after string
			if close+1 < len(runes) {
				after = string(runes[close+1:])
			}
			attr := attributeQuote(before, after, idx)
			segments = append(segments, Segment{
				Speaker:     attr.speaker,
				SpeakerID:   attr.id,
				SpeakerName: attr.name,
				Text:        quoted,
				Quoted:      true,
			})
		}

		prevEnd = close + 1
	}

	if prevEnd < len(runes) {
		rest := stripDanglingAttribution(string(runes[prevEnd:]))
		if rest = strings.TrimSpace(rest); rest != "" {
			segments = append(segments, Segment{Speaker: SpeakerGM, Text: rest})
		}
	}

	return segments
}

// mergeAdjacent collapses consecutive segments spoken by the same voice
// into one, joining their text with a single space. The first segment of a
// run keeps its display name.
func mergeAdjacent(segments []Segment) []Segment {
	if len(segments) < 2 {
		return segments
	}

	merged := segments[:1]
	for _, seg := range segments[1:] {
		last := &merged[len(merged)-1]
		if last.sameVoice(seg) {
			last.Text += " " + seg.Text
			if last.SpeakerName == "" {
				last.SpeakerName = seg.SpeakerName
			}
			continue
		}
		merged = append(merged, seg)
	}
	return merged
}
