// Package voice assigns stable synthesis voices to party members.
//
// Each member is classified into one of eight archetypes — the cross
// product of {veteran, young, authority, mysterious} and {male, female} —
// from their role, personality traits, age, and appearance. Every archetype
// owns a fixed ordered pool of three voice identifiers; the member's ID is
// hashed onto a pool slot, so the same character always speaks with the
// same voice without any stored state.
//
// Classification is deliberately a deterministic keyword policy, not a
// model: the rules run in a fixed priority order and the first match wins.
// Reordering them changes assignments, so the order is part of the
// contract.
package voice

import (
	"strings"

	"github.com/penumbralworks/narvox/internal/roster"
)

// Archetype is one of the eight fixed voice-style categories.
type Archetype string

const (
	VeteranMale      Archetype = "veteran-male"
	VeteranFemale    Archetype = "veteran-female"
	YoungMale        Archetype = "young-male"
	YoungFemale      Archetype = "young-female"
	AuthorityMale    Archetype = "authority-male"
	AuthorityFemale  Archetype = "authority-female"
	MysteriousMale   Archetype = "mysterious-male"
	MysteriousFemale Archetype = "mysterious-female"
)

// style is the gender-independent half of an archetype.
type style string

const (
	styleVeteran    style = "veteran"
	styleYoung      style = "young"
	styleAuthority  style = "authority"
	styleMysterious style = "mysterious"
)

// archetypeFor combines a style with an inferred gender.
func archetypeFor(s style, female bool) Archetype {
	if female {
		return Archetype(string(s) + "-female")
	}
	return Archetype(string(s) + "-male")
}

// Keyword sets for the classification rules. Word sets are matched against
// whitespace-split, punctuation-trimmed words; role sets are matched as
// plain substrings of the lowercased role.
var (
	femaleCues = wordSet("woman", "female", "she", "her", "girl", "lady",
		"mother", "sister", "daughter", "wife")
	maleCues = wordSet("man", "male", "he", "him", "boy", "guy",
		"father", "brother", "son", "husband")

	authorityRoles = []string{"doctor", "medic", "nurse",
		"leader", "chief", "boss",
		"scientist", "researcher", "professor"}
	veteranRoles = []string{"soldier", "military", "guard"}

	veteranTraits    = wordSet("aggressive", "violent", "ruthless", "fierce", "tough")
	youngTraits      = wordSet("kind", "gentle", "warm", "caring", "compassionate")
	mysteriousTraits = wordSet("creepy", "unsettling", "mysterious", "sinister", "eerie")

	youngAges   = []string{"young", "teen", "child"}
	veteranAges = []string{"elder", "older", "senior", "60", "70"}

	femaleRelations = []string{"wife", "mother", "sister", "daughter"}
	maleRelations   = []string{"husband", "father", "brother", "son"}
)

// Classify determines the archetype for a member. Members carrying an
// explicit voice never reach this function; see [Assigner.Assign].
func Classify(m roster.Member) Archetype {
	if !m.IsFull() {
		return classifyBasic(m)
	}

	female := InferGender(m.Appearance+" "+m.Role) == GenderFemale

	role := strings.ToLower(m.Role)
	if containsAny(role, authorityRoles) {
		return archetypeFor(styleAuthority, female)
	}
	if containsAny(role, veteranRoles) {
		return archetypeFor(styleVeteran, female)
	}

	if intersects(m.Traits, veteranTraits) {
		return archetypeFor(styleVeteran, female)
	}
	if intersects(m.Traits, youngTraits) {
		return archetypeFor(styleYoung, female)
	}
	if intersects(m.Traits, mysteriousTraits) {
		return archetypeFor(styleMysterious, female)
	}

	age := strings.ToLower(m.Age)
	if containsAny(age, youngAges) {
		return archetypeFor(styleYoung, female)
	}
	if containsAny(age, veteranAges) {
		return archetypeFor(styleVeteran, female)
	}

	return archetypeFor(styleYoung, female)
}

// classifyBasic handles members that only carry a relationship label.
// Kinship implies gender; everything else defaults to young-male.
func classifyBasic(m roster.Member) Archetype {
	rel := strings.ToLower(m.Relationship)
	if containsAny(rel, femaleRelations) {
		return YoungFemale
	}
	if containsAny(rel, maleRelations) {
		return YoungMale
	}
	return YoungMale
}

// Gender is the binary gender inferred for pool selection. Unknown is
// treated as not-female when picking a pool.
type Gender string

const (
	GenderFemale  Gender = "female"
	GenderMale    Gender = "male"
	GenderUnknown Gender = "unknown"
)

// InferGender applies the gender keyword sets to free text. Female cues
// take precedence when both sets match; absence of both yields
// [GenderUnknown].
func InferGender(text string) Gender {
	male := false
	for _, w := range words(text) {
		if femaleCues[w] {
			return GenderFemale
		}
		if maleCues[w] {
			male = true
		}
	}
	if male {
		return GenderMale
	}
	return GenderUnknown
}

// words lowercases text and splits it into punctuation-trimmed words.
func words(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	out := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, ".,;:!?'\"()-")
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

func wordSet(ws ...string) map[string]bool {
	set := make(map[string]bool, len(ws))
	for _, w := range ws {
		set[w] = true
	}
	return set
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

func intersects(traits []string, set map[string]bool) bool {
	for _, t := range traits {
		if set[strings.ToLower(strings.TrimSpace(t))] {
			return true
		}
	}
	return false
}
