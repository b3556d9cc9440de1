package keyfinder

import (
	"fmt"
	"strings"

	"github.com/RyanBlaney/sonido-key/algorithms/chroma"
	"github.com/RyanBlaney/sonido-key/algorithms/tonal"
)

// FormatKeyLine renders the detected key and, when present, the near-tie alternative
func FormatKeyLine(key tonal.KeyCandidate, alternative *tonal.KeyCandidate) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Detected key: %s, correlation: %.3f", key.Name(), key.Correlation)
	if alternative != nil {
		fmt.Fprintf(&sb, "\nalso possible: %s, correlation: %.3f", alternative.Name(), alternative.Correlation)
	}
	return sb.String()
}

// FormatTable renders one "<key>\t<correlation>" line per candidate, in the given order
func FormatTable(table tonal.KeyEstimate) string {
	lines := make([]string, 0, len(table))
	for _, kc := range table {
		lines = append(lines, fmt.Sprintf("%s\t%6.3f", kc.Name(), kc.Correlation))
	}
	return strings.Join(lines, "\n")
}

// FormatChroma renders the prominence of each pitch class relative to the strongest
func FormatChroma(vector chroma.PitchClassVector) string {
	prominence := vector.RelativeProminence()

	lines := make([]string, 0, len(prominence))
	for pc, value := range prominence {
		lines = append(lines, fmt.Sprintf("%s\t%5.3f", chroma.PitchClassName(pc), value))
	}
	return strings.Join(lines, "\n")
}

// FormatResult renders the key line of a result, prefixed by its source when set
func FormatResult(r *Result) string {
	line := FormatKeyLine(r.Key, r.Alternative)
	if r.Source == "" {
		return line
	}
	return r.Source + ": " + strings.ReplaceAll(line, "\n", "\n"+strings.Repeat(" ", len(r.Source)+2))
}
