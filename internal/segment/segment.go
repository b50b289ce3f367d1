// Package segment splits narration text into sentence-level dialog segments
// and attributes each one to a speaker.
//
// The INFECTED story generator produces prose that mixes game-master
// narration, player speech, and quoted NPC dialog:
//
//	The corridor reeked of rust. Marcus said, "We need to move now."
//	"Agreed," you reply, checking the door.
//
// [Parse] turns such prose into an ordered sequence of [Segment] values,
// one per speaker change, so the narration player can voice each span with
// the right synthesis voice. Attribution is deterministic keyword and
// pattern matching — no model calls — and degrades gracefully: a speaker
// that cannot be resolved stays an unresolved NPC or falls back to the
// game master, it never blocks the pipeline.
package segment

import "github.com/penumbralworks/narvox/internal/roster"

// Speaker classifies who voices a segment.
type Speaker string

const (
	// SpeakerGM is the game-master narrator voice.
	SpeakerGM Speaker = "gm"

	// SpeakerPlayer is the player character.
	SpeakerPlayer Speaker = "player"

	// SpeakerNPC is a named non-player character.
	SpeakerNPC Speaker = "npc"
)

// Segment is a contiguous span of narration attributed to exactly one
// speaker.
type Segment struct {
	// Speaker classifies the voice for this span.
	Speaker Speaker `json:"speaker"`

	// SpeakerID is the roster member ID when Speaker is [SpeakerNPC] and
	// the name resolved. Empty otherwise.
	SpeakerID string `json:"speakerId,omitempty"`

	// SpeakerName is the best-effort display name. For unresolved NPCs it
	// is the raw proper noun captured from the attribution phrase.
	SpeakerName string `json:"speakerName,omitempty"`

	// Text is the trimmed, non-empty utterance or narration chunk.
	Text string `json:"text"`

	// Quoted reports whether the text sat inside double quotes in the
	// source narration.
	Quoted bool `json:"isQuoted"`
}

// sameVoice reports whether two segments would be spoken identically and
// can therefore be merged. SpeakerName is deliberately excluded: it is
// display metadata, not part of the merge key.
func (s Segment) sameVoice(o Segment) bool {
	return s.Speaker == o.Speaker && s.SpeakerID == o.SpeakerID && s.Quoted == o.Quoted
}

// Segments returns pre verbatim when non-empty — segments already produced
// by an upstream generation step are authoritative — and otherwise parses
// narrative with [Parse].
func Segments(narrative string, pre []Segment, idx *roster.Index) []Segment {
	if len(pre) > 0 {
		return pre
	}
	return Parse(narrative, idx)
}
