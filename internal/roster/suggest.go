package roster

import (
	"sort"
	"strings"

	"github.com/antzucaro/matchr"
)

// suggestThreshold is the minimum Jaro-Winkler similarity for a roster name
// to be offered as a suggestion for an unresolved speaker name.
const suggestThreshold = 0.75

// Suggestion pairs a roster name with its similarity to the queried name.
type Suggestion struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// Suggest returns roster names phonetically or textually close to name,
// best first. It is a diagnostic aid for narration authors debugging
// unresolved speaker attributions — segmentation itself never consults it,
// so attribution stays strictly exact/prefix.
func Suggest(idx *Index, name string) []Suggestion {
	q := strings.ToLower(strings.TrimSpace(name))
	if q == "" {
		return nil
	}
	qPrimary, qSecondary := matchr.DoubleMetaphone(q)

	var out []Suggestion
	for _, candidate := range idx.Names() {
		cl := strings.ToLower(candidate)
		score := matchr.JaroWinkler(q, cl, true)

		// A phonetic hit rescues near-threshold spellings ("Jerald" for
		// "Gerald") that pure string similarity underrates.
		cPrimary, cSecondary := matchr.DoubleMetaphone(cl)
		phonetic := qPrimary != "" &&
			(qPrimary == cPrimary || qPrimary == cSecondary ||
				(qSecondary != "" && (qSecondary == cPrimary || qSecondary == cSecondary)))

		if score >= suggestThreshold || phonetic {
			out = append(out, Suggestion{Name: candidate, Score: score})
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}
