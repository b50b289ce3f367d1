package voice

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/penumbralworks/narvox/internal/roster"
)

// DefaultVoice is the hardcoded fallback used when an archetype has no
// configured pool. It should never be reached with the built-in pools; a
// hit is logged as a configuration problem, not surfaced to the player.
const DefaultVoice = "adam"

// poolSize is the fixed number of candidate voices per archetype.
const poolSize = 3

// DefaultPools maps every archetype to its ordered pool of synthesis voice
// identifiers. The order matters: the member-ID hash indexes into it.
var DefaultPools = map[Archetype][]string{
	VeteranMale:      {"clyde", "thomas", "james"},
	VeteranFemale:    {"dorothy", "matilda", "grace"},
	YoungMale:        {"josh", "ethan", "liam"},
	YoungFemale:      {"elli", "gigi", "mimi"},
	AuthorityMale:    {"daniel", "michael", "joseph"},
	AuthorityFemale:  {"rachel", "charlotte", "serena"},
	MysteriousMale:   {"antoni", "arnold", "fin"},
	MysteriousFemale: {"domi", "freya", "nicole"},
}

// Assigner maps party members to stable voice identifiers, caching one
// assignment per member ID for the lifetime of the process (or until
// [Assigner.ClearCache]). All methods are safe for concurrent use.
type Assigner struct {
	pools map[Archetype][]string

	mu    sync.Mutex
	cache map[string]string
}

// NewAssigner creates an [Assigner] using [DefaultPools]. Individual pools
// can be overridden with pool entries from configuration; overrides must
// keep exactly three voices per archetype and are validated by the config
// layer.
func NewAssigner(overrides map[Archetype][]string) *Assigner {
	pools := make(map[Archetype][]string, len(DefaultPools))
	for a, p := range DefaultPools {
		pools[a] = p
	}
	for a, p := range overrides {
		if len(p) != poolSize {
			slog.Warn("ignoring voice pool override with wrong size",
				"archetype", a, "size", len(p), "want", poolSize)
			continue
		}
		pools[a] = p
	}
	return &Assigner{
		pools: pools,
		cache: make(map[string]string),
	}
}

// Assign computes the voice for a member as a pure function of its
// attributes: an explicit voice short-circuits, otherwise the member's
// archetype pool is indexed by a content hash of the ID. Calling Assign
// twice with the same member always yields the same voice.
func (a *Assigner) Assign(m roster.Member) string {
	if m.VoiceID != "" {
		return m.VoiceID
	}

	arch := Classify(m)
	pool := a.pools[arch]
	if len(pool) == 0 {
		slog.Warn("no voice pool for archetype, using default voice",
			"archetype", arch, "member_id", m.ID)
		return DefaultVoice
	}
	return pool[hashID(m.ID)%len(pool)]
}

// VoiceFor returns the cached voice for a member, computing and caching it
// on first lookup.
func (a *Assigner) VoiceFor(m roster.Member) string {
	a.mu.Lock()
	defer a.mu.Unlock()

	if v, ok := a.cache[m.ID]; ok {
		return v
	}
	v := a.Assign(m)
	a.cache[m.ID] = v
	return v
}

// ClearCache drops all cached assignments, so a reused member ID in a
// fresh story does not inherit a stale assignment. The narvox server
// builds its voice map once at startup and resets by restarting; embedders
// that host several stories in one process call this between them.
// Recomputation stays deterministic and may well reproduce the same values.
func (a *Assigner) ClearCache() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cache = make(map[string]string)
}

// VoiceMap builds the lookup table the narration player resolves speakers
// against: every member is indexed by ID, lowercase name, and lowercase
// nickname, so segments that only carry a display name still find a voice.
func (a *Assigner) VoiceMap(members []roster.Member) map[string]string {
	vm := make(map[string]string, len(members)*2)
	for _, m := range members {
		v := a.VoiceFor(m)
		vm[m.ID] = v
		if m.Name != "" {
			vm[strings.ToLower(m.Name)] = v
		}
		if m.Nickname != "" {
			vm[strings.ToLower(m.Nickname)] = v
		}
	}
	return vm
}

// hashID folds id into a non-negative int using the classic multiply-by-31
// string hash over 32-bit signed arithmetic. The fold to int32 with wrap
// and subsequent absolute value keep assignments identical across
// platforms.
func hashID(id string) int {
	var h int32
	for _, r := range id {
		h = h*31 + int32(r)
	}
	if h < 0 {
		// Negating math.MinInt32 overflows back to itself; clamp to 0.
		if h == -2147483648 {
			return 0
		}
		h = -h
	}
	return int(h)
}
