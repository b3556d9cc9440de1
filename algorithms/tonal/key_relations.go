package tonal

import (
	"fmt"
	"strings"

	"github.com/RyanBlaney/sonido-key/algorithms/chroma"
	"github.com/RyanBlaney/sonido-key/algorithms/common"
)

// KeyName returns human-readable key name, e.g. "C# major"
func KeyName(tonic int, mode KeyMode) string {
	return chroma.PitchClassName(tonic) + " " + mode.String()
}

// ParseKey parses names such as "F# minor", "Bb major", "Am" or "C". A bare
// tonic means major.
func ParseKey(name string) (int, KeyMode, error) {
	fields := strings.Fields(name)

	var tonicName, modeName string
	switch len(fields) {
	case 1:
		tonicName = fields[0]
		if len(tonicName) > 1 && strings.HasSuffix(tonicName, "m") {
			tonicName, modeName = strings.TrimSuffix(tonicName, "m"), "minor"
		}
	case 2:
		tonicName, modeName = fields[0], fields[1]
	default:
		return 0, KeyModeMajor, fmt.Errorf("invalid key name %q", name)
	}

	tonic, err := chroma.ParsePitchClass(tonicName)
	if err != nil {
		return 0, KeyModeMajor, fmt.Errorf("invalid key name %q: %w", name, err)
	}

	switch strings.ToLower(modeName) {
	case "", "major", "maj":
		return tonic, KeyModeMajor, nil
	case "minor", "min":
		return tonic, KeyModeMinor, nil
	}
	return 0, KeyModeMajor, fmt.Errorf("invalid key mode %q", modeName)
}

// RelativeKey returns the relative major/minor key
func RelativeKey(tonic int, mode KeyMode) (int, KeyMode) {
	if mode == KeyModeMajor {
		// Relative minor is 3 semitones down
		return common.Mod(tonic-3, chroma.NumPitchClasses), KeyModeMinor
	}
	// Relative major is 3 semitones up
	return common.Mod(tonic+3, chroma.NumPitchClasses), KeyModeMajor
}

// ParallelKey returns the parallel major/minor key
func ParallelKey(tonic int, mode KeyMode) (int, KeyMode) {
	if mode == KeyModeMajor {
		return common.Mod(tonic, chroma.NumPitchClasses), KeyModeMinor
	}
	return common.Mod(tonic, chroma.NumPitchClasses), KeyModeMajor
}

// DominantKey returns the dominant key (5th above)
func DominantKey(tonic int, mode KeyMode) (int, KeyMode) {
	return common.Mod(tonic+7, chroma.NumPitchClasses), mode
}

// SubdominantKey returns the subdominant key (5th below)
func SubdominantKey(tonic int, mode KeyMode) (int, KeyMode) {
	return common.Mod(tonic-7, chroma.NumPitchClasses), mode
}

// IsKeyCompatible checks if two keys are identical or closely related
// (relative, parallel, dominant or subdominant)
func IsKeyCompatible(a, b KeyCandidate) bool {
	if common.Mod(a.Tonic, chroma.NumPitchClasses) == b.Tonic && a.Mode == b.Mode {
		return true
	}

	for _, r := range RelatedKeys(a.Tonic, a.Mode) {
		if r.Key.Tonic == b.Tonic && r.Key.Mode == b.Mode {
			return true
		}
	}

	return false
}

// KeyRelation names how a key relates to another
type KeyRelation struct {
	Relation string       `json:"relation"` // "relative", "parallel", "dominant" or "subdominant"
	Key      KeyCandidate `json:"key"`
}

// RelatedKeys lists the closely related keys of a key, in the order
// relative, parallel, dominant, subdominant
func RelatedKeys(tonic int, mode KeyMode) []KeyRelation {
	relations := []struct {
		name string
		fn   func(int, KeyMode) (int, KeyMode)
	}{
		{"relative", RelativeKey},
		{"parallel", ParallelKey},
		{"dominant", DominantKey},
		{"subdominant", SubdominantKey},
	}

	related := make([]KeyRelation, 0, len(relations))
	for _, r := range relations {
		t, m := r.fn(tonic, mode)
		related = append(related, KeyRelation{
			Relation: r.name,
			Key:      KeyCandidate{Tonic: t, Mode: m},
		})
	}

	return related
}
