package config

import "slices"

// ConfigDiff describes what changed between two configs, restricted to the
// sections a running server reacts to. The log level applies live; voice
// and rate limit changes are surfaced so the operator knows a restart is
// needed for them.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// VoicesChanged is true if any narrator voice or pool override changed.
	// Changed pools are listed by archetype name in PoolChanges.
	VoicesChanged bool
	PoolChanges   []string

	// RateLimitChanged is true if any route limit changed.
	RateLimitChanged bool
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	ov, nv := old.Voices, new.Voices
	if ov.GM != nv.GM || ov.Player != nv.Player || ov.PlayerGender != nv.PlayerGender ||
		ov.PlayerMale != nv.PlayerMale || ov.PlayerFemale != nv.PlayerFemale {
		d.VoicesChanged = true
	}
	d.PoolChanges = diffPools(ov.Pools, nv.Pools)
	if len(d.PoolChanges) > 0 {
		d.VoicesChanged = true
	}

	if old.RateLimit != new.RateLimit {
		d.RateLimitChanged = true
	}

	return d
}

// diffPools returns the archetype names whose override was added, removed,
// or modified, in sorted order.
func diffPools(old, new map[string][]string) []string {
	var changed []string
	for name, op := range old {
		np, ok := new[name]
		if !ok || !slices.Equal(op, np) {
			changed = append(changed, name)
		}
	}
	for name := range new {
		if _, ok := old[name]; !ok {
			changed = append(changed, name)
		}
	}
	slices.Sort(changed)
	return changed
}
