package chroma

import (
	"fmt"
	"strings"

	"github.com/RyanBlaney/sonido-key/algorithms/common"
)

// NumPitchClasses is the number of pitch classes in the chromatic scale
const NumPitchClasses = 12

// PitchClassVector holds the relative energy of each pitch class in an excerpt,
// indexed 0=C, 1=C#, ..., 11=B. Only relative magnitude matters to the key estimator.
type PitchClassVector []float64

// pitchClassNames uses sharps only, matching the usual chroma axis labelling
var pitchClassNames = [NumPitchClasses]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// PitchClassName returns the display name of a pitch class (wrapped modulo 12)
func PitchClassName(pc int) string {
	return pitchClassNames[common.Mod(pc, NumPitchClasses)]
}

// PitchClassNames returns a copy of the pitch class name table
func PitchClassNames() []string {
	names := make([]string, NumPitchClasses)
	copy(names, pitchClassNames[:])
	return names
}

// ParsePitchClass resolves a pitch class name such as "F#" or "Bb" to its index
func ParsePitchClass(name string) (int, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, fmt.Errorf("empty pitch class name")
	}

	for i, n := range pitchClassNames {
		if strings.EqualFold(n, name) {
			return i, nil
		}
	}

	// Flats are accepted on input even though output always uses sharps
	if len(name) == 2 && (name[1] == 'b' || name[1] == 'B') {
		for i, n := range pitchClassNames {
			if strings.EqualFold(n, name[:1]) {
				return common.Mod(i-1, NumPitchClasses), nil
			}
		}
	}

	return 0, fmt.Errorf("unknown pitch class %q", name)
}

// SumChromagram collapses a chromagram (frames x 12) into a single vector by summing
// each pitch class over time.
func SumChromagram(chromagram [][]float64) (PitchClassVector, error) {
	if len(chromagram) == 0 {
		return nil, fmt.Errorf("empty chromagram")
	}

	vector := make(PitchClassVector, NumPitchClasses)
	for t, frame := range chromagram {
		if len(frame) != NumPitchClasses {
			return nil, fmt.Errorf("frame %d has %d bins, expected %d", t, len(frame), NumPitchClasses)
		}
		for pc, energy := range frame {
			vector[pc] += energy
		}
	}

	return vector, nil
}

// Rotate transposes a vector up by k semitones: out[i] = v[(i-k) mod 12]
func (v PitchClassVector) Rotate(k int) PitchClassVector {
	n := len(v)
	rotated := make(PitchClassVector, n)
	if n == 0 {
		return rotated
	}

	for i := 0; i < n; i++ {
		rotated[i] = v[common.Mod(i-k, n)]
	}

	return rotated
}

// RelativeProminence scales the vector so its strongest pitch class is 1.0
func (v PitchClassVector) RelativeProminence() PitchClassVector {
	return common.MaxNormalize(v)
}

// Dominant returns the strongest pitch class and its energy
func (v PitchClassVector) Dominant() (int, float64) {
	best, bestEnergy := 0, 0.0
	for pc, energy := range v {
		if pc == 0 || energy > bestEnergy {
			best, bestEnergy = pc, energy
		}
	}
	return best, bestEnergy
}
