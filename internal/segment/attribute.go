package segment

import (
	"regexp"
	"strings"

	"github.com/penumbralworks/narvox/internal/roster"
)

// lookaheadWindow is how much text after a closing quote is inspected for
// an attribution phrase. Attribution almost always sits directly against
// the quote ("..." said Marcus); anything further away belongs to the next
// clause.
const lookaheadWindow = 50

// speechVerbs matches the speech verbs recognised in attribution phrases,
// in past and third-person present forms.
const speechVerbs = `(?:says|said|asks|asked|replies|replied|whispers|whispered|` +
	`shouts|shouted|mutters|muttered|growls|growled|hisses|hissed|` +
	`calls|called|cries|cried|answers|answered|responds|responded|` +
	`exclaims|exclaimed|demands|demanded)`

// playerVerbs additionally covers the base second-person forms ("you say",
// "you shout") that never appear in third-person attribution.
const playerVerbs = `(?:say|says|said|ask|asks|asked|reply|replies|replied|` +
	`whisper|whispers|whispered|shout|shouts|shouted|mutter|mutters|muttered|` +
	`growl|growls|growled|hiss|hisses|hissed|call|calls|called|` +
	`cry|cries|cried|answer|answers|answered|respond|responds|responded|` +
	`exclaim|exclaims|exclaimed|demand|demands|demanded)`

// properName matches a capitalised one- or two-word proper noun.
const properName = `[A-Z][A-Za-z'-]*(?:\s+[A-Z][A-Za-z'-]*)?`

var (
	// playerCue matches second-person speech attribution ("you say",
	// "you shouted"). Checked before NPC patterns: "you" is never a name.
	playerCue = regexp.MustCompile(`(?i)\byou\s+` + playerVerbs + `\b`)

	// verbThenName: `said Marcus`, `whispered Elena Vasquez`.
	verbThenName = regexp.MustCompile(`\b` + speechVerbs + `\s+(` + properName + `)`)

	// nameThenVerb: `Marcus said`, `Elena Vasquez whispered`.
	nameThenVerb = regexp.MustCompile(`\b(` + properName + `)\s+` + speechVerbs + `\b`)

	// danglingAttribution matches an attribution phrase left over at the
	// start of the text following a closing quote, so it can be stripped
	// before the remainder is narrated ("said John." after `"Run," said
	// John.`). Player cues are stripped the same way.
	danglingAttribution = regexp.MustCompile(`^[\s,;]*(?:` +
		speechVerbs + `\s+` + properName + `|` +
		properName + `\s+` + speechVerbs + `|` +
		`(?i:you)\s+` + playerVerbs +
		`)[\s.,!?;]*`)
)

// attribution is the tagged result of speaker detection for one quoted
// span.
type attribution struct {
	speaker Speaker
	id      string // set for resolved NPCs
	name    string // display name; raw capture for unresolved NPCs
}

// attributionPatterns is the ordered list of NPC attribution forms. The
// first pattern with a capturing match wins, so the order is part of the
// contract.
var attributionPatterns = []*regexp.Regexp{
	verbThenName,
	nameThenVerb,
}

// attributeQuote determines who speaks a quoted span given the sentence
// text before the quote and the text after it.
//
// Player cues are checked first across both contexts. Otherwise the
// ordered NPC patterns run against before+after; a captured name is
// resolved against the roster index, and an unresolvable but plausibly
// proper name (capitalised, more than one character) still yields an NPC
// attribution without an ID. Anything else defaults to the game master.
func attributeQuote(before, after string, idx *roster.Index) attribution {
	// Truncate by runes so a multi-byte character at the boundary is never
	// cut mid-sequence.
	if runes := []rune(after); len(runes) > lookaheadWindow {
		after = string(runes[:lookaheadWindow])
	}
	context := before + " " + after

	if playerCue.MatchString(context) {
		return attribution{speaker: SpeakerPlayer}
	}

	for _, pat := range attributionPatterns {
		m := pat.FindStringSubmatch(context)
		if m == nil {
			continue
		}
		name := strings.TrimSpace(m[1])
		if id, canonical, ok := idx.Resolve(name); ok {
			return attribution{speaker: SpeakerNPC, id: id, name: canonical}
		}
		if len(name) > 1 {
			return attribution{speaker: SpeakerNPC, name: name}
		}
	}

	return attribution{speaker: SpeakerGM}
}

// stripDanglingAttribution removes a leading leftover attribution phrase
// from text trailing the last quote of a sentence.
func stripDanglingAttribution(text string) string {
	return danglingAttribution.ReplaceAllString(text, "")
}
