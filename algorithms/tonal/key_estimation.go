package tonal

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"github.com/RyanBlaney/sonido-key/algorithms/chroma"
	"github.com/RyanBlaney/sonido-key/algorithms/common"
	"github.com/RyanBlaney/sonido-key/algorithms/stats"
	"github.com/RyanBlaney/sonido-key/logging"
)

var (
	// ErrInvalidInput is returned for vectors of the wrong length or with NaN/Inf values
	ErrInvalidInput = errors.New("invalid pitch class vector")

	// ErrDegenerateInput is returned for constant vectors, whose correlation is undefined
	ErrDegenerateInput = errors.New("degenerate pitch class vector")
)

// NumKeys is the number of candidate keys: 12 tonics in 2 modes
const NumKeys = 2 * chroma.NumPitchClasses

// KeyMode represents major or minor mode
type KeyMode int

const (
	KeyModeMajor KeyMode = iota
	KeyModeMinor
)

func (m KeyMode) String() string {
	switch m {
	case KeyModeMajor:
		return "major"
	case KeyModeMinor:
		return "minor"
	default:
		return "unknown"
	}
}

// MarshalText encodes the mode as "major" or "minor"
func (m KeyMode) MarshalText() ([]byte, error) {
	switch m {
	case KeyModeMajor, KeyModeMinor:
		return []byte(m.String()), nil
	}
	return nil, fmt.Errorf("invalid key mode %d", int(m))
}

// UnmarshalText decodes "major" or "minor"
func (m *KeyMode) UnmarshalText(text []byte) error {
	switch string(text) {
	case "major":
		*m = KeyModeMajor
	case "minor":
		*m = KeyModeMinor
	default:
		return fmt.Errorf("invalid key mode %q", text)
	}
	return nil
}

// KeyProfile is a reference distribution of scale degree stability for a key with tonic C
type KeyProfile [chroma.NumPitchClasses]float64

// Krumhansl-Kessler probe tone ratings as used by the Krumhansl-Schmuckler algorithm.
// Arrays are copied on assignment so ReferenceProfile never exposes these to mutation.
var (
	majorProfile = KeyProfile{6.35, 2.23, 3.48, 2.33, 4.38, 4.09, 2.52, 5.19, 2.39, 3.66, 2.29, 2.88}
	minorProfile = KeyProfile{6.33, 2.68, 3.52, 5.38, 2.60, 3.53, 2.54, 4.75, 3.98, 2.69, 3.34, 3.17}
)

// ReferenceProfile returns a copy of the K-S profile for the given mode
func ReferenceProfile(mode KeyMode) KeyProfile {
	if mode == KeyModeMinor {
		return minorProfile
	}
	return majorProfile
}

// Rotate moves the profile's tonic from C to pitch class r: out[i] = p[(i-r) mod 12]
func (p KeyProfile) Rotate(r int) KeyProfile {
	var rotated KeyProfile
	for i := range rotated {
		rotated[i] = p[common.Mod(i-r, chroma.NumPitchClasses)]
	}
	return rotated
}

// KeyCandidate is one (tonic, mode) hypothesis with its correlation score
type KeyCandidate struct {
	Tonic       int     `json:"tonic"`       // Pitch class of the tonic (0=C, ..., 11=B)
	Mode        KeyMode `json:"mode"`        // Major or Minor
	Correlation float64 `json:"correlation"` // Pearson correlation in [-1, 1]
}

// Name returns the display name, e.g. "F# minor"
func (kc KeyCandidate) Name() string {
	return KeyName(kc.Tonic, kc.Mode)
}

// index is the canonical position: C major ... B major, C minor ... B minor
func (kc KeyCandidate) index() int {
	return int(kc.Mode)*chroma.NumPitchClasses + kc.Tonic
}

// KeyEstimate holds all 24 candidates
type KeyEstimate []KeyCandidate

// Best returns the top ranked candidate
func (ke KeyEstimate) Best() (KeyCandidate, bool) {
	if len(ke) == 0 {
		return KeyCandidate{}, false
	}
	return ke[0], true
}

// Find returns the candidate for a given tonic and mode
func (ke KeyEstimate) Find(tonic int, mode KeyMode) (KeyCandidate, bool) {
	tonic = common.Mod(tonic, chroma.NumPitchClasses)
	for _, kc := range ke {
		if kc.Tonic == tonic && kc.Mode == mode {
			return kc, true
		}
	}
	return KeyCandidate{}, false
}

// Canonical returns a copy ordered C major ... B major, C minor ... B minor
func (ke KeyEstimate) Canonical() KeyEstimate {
	ordered := slices.Clone(ke)
	slices.SortFunc(ordered, func(a, b KeyCandidate) int {
		return cmp.Compare(a.index(), b.index())
	})
	return ordered
}

// compareRanked orders by correlation descending. Exactly equal correlations fall
// back to the canonical order: major before minor, then tonic ascending.
func compareRanked(a, b KeyCandidate) int {
	if c := cmp.Compare(b.Correlation, a.Correlation); c != 0 {
		return c
	}
	return cmp.Compare(a.index(), b.index())
}

// KeyEstimationParams contains parameters for key estimation
type KeyEstimationParams struct {
	// NearTieMargin is the largest correlation gap below the best key at which a
	// second key is still reported as a plausible alternative
	NearTieMargin float64 `json:"near_tie_margin"`

	// PreferRelativeMinor reports the relative minor of a winning major key when
	// its correlation exceeds RelativeMinorRatio times the winner's
	PreferRelativeMinor bool    `json:"prefer_relative_minor"`
	RelativeMinorRatio  float64 `json:"relative_minor_ratio"`
}

// DefaultKeyEstimationParams returns the default parameters
func DefaultKeyEstimationParams() KeyEstimationParams {
	return KeyEstimationParams{
		NearTieMargin:       0.1,
		PreferRelativeMinor: false,
		RelativeMinorRatio:  0.9,
	}
}

// Validate checks the parameters for sensible values
func (p KeyEstimationParams) Validate() error {
	if p.NearTieMargin < 0 || p.NearTieMargin > 2 {
		return fmt.Errorf("near tie margin must be within [0, 2], got %.3f", p.NearTieMargin)
	}
	if p.RelativeMinorRatio <= 0 || p.RelativeMinorRatio > 1 {
		return fmt.Errorf("relative minor ratio must be within (0, 1], got %.3f", p.RelativeMinorRatio)
	}
	return nil
}

// KeyEstimator implements Krumhansl-Schmuckler key estimation.
//
// It holds only read-only parameters, so a single estimator may be shared by any
// number of goroutines.
type KeyEstimator struct {
	params KeyEstimationParams
	logger logging.Logger
}

// NewKeyEstimator creates a new key estimator with default parameters
func NewKeyEstimator() *KeyEstimator {
	return &KeyEstimator{
		params: DefaultKeyEstimationParams(),
		logger: logging.WithFields(logging.Fields{"component": "key_estimator"}),
	}
}

// NewKeyEstimatorWithParams creates a key estimator with custom parameters
func NewKeyEstimatorWithParams(params KeyEstimationParams) (*KeyEstimator, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	return &KeyEstimator{
		params: params,
		logger: logging.WithFields(logging.Fields{"component": "key_estimator"}),
	}, nil
}

// GetParameters returns current parameters
func (ke *KeyEstimator) GetParameters() KeyEstimationParams {
	return ke.params
}

// RankKeys correlates the vector with all 24 rotated profiles and returns the
// candidates sorted by correlation, highest first.
func (ke *KeyEstimator) RankKeys(vector chroma.PitchClassVector) (KeyEstimate, error) {
	estimate, err := ke.scoreKeys(vector)
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(estimate, compareRanked)
	return estimate, nil
}

// CorrelationTable returns all 24 candidates, ranked when sorted is true and in
// canonical order (C major ... B minor) otherwise.
func (ke *KeyEstimator) CorrelationTable(vector chroma.PitchClassVector, sorted bool) (KeyEstimate, error) {
	if sorted {
		return ke.RankKeys(vector)
	}
	return ke.scoreKeys(vector)
}

// BestKey returns the top ranked key and, when the runner-up lies within
// NearTieMargin of it, the runner-up as a secondary candidate.
func (ke *KeyEstimator) BestKey(vector chroma.PitchClassVector) (KeyCandidate, *KeyCandidate, error) {
	ranked, err := ke.RankKeys(vector)
	if err != nil {
		return KeyCandidate{}, nil, err
	}

	best := ranked[0]
	secondary := ke.nearTie(ranked, best)

	ke.logger.Debug("Key estimated", logging.Fields{
		"key":         best.Name(),
		"correlation": best.Correlation,
		"has_alt":     secondary != nil,
	})

	return best, secondary, nil
}

// KeyWithContext is BestKey with relative major/minor disambiguation applied when
// PreferRelativeMinor is enabled. A major winner is replaced by its relative minor
// if the minor's correlation exceeds RelativeMinorRatio of the winner's.
func (ke *KeyEstimator) KeyWithContext(vector chroma.PitchClassVector) (KeyCandidate, *KeyCandidate, error) {
	ranked, err := ke.RankKeys(vector)
	if err != nil {
		return KeyCandidate{}, nil, err
	}

	return ke.KeyFromRanking(ranked)
}

// KeyFromRanking applies the KeyWithContext selection to a table already produced
// by RankKeys, so callers holding the table need not score the vector again.
func (ke *KeyEstimator) KeyFromRanking(ranked KeyEstimate) (KeyCandidate, *KeyCandidate, error) {
	if len(ranked) != NumKeys {
		return KeyCandidate{}, nil, fmt.Errorf("%w: expected %d ranked keys, got %d", ErrInvalidInput, NumKeys, len(ranked))
	}

	best := ranked[0]
	if ke.params.PreferRelativeMinor && best.Mode == KeyModeMajor && best.Correlation > 0 {
		relTonic, relMode := RelativeKey(best.Tonic, best.Mode)
		if relative, ok := ranked.Find(relTonic, relMode); ok &&
			relative.Correlation > best.Correlation*ke.params.RelativeMinorRatio {
			ke.logger.Debug("Preferring relative minor", logging.Fields{
				"major":             best.Name(),
				"minor":             relative.Name(),
				"major_correlation": best.Correlation,
				"minor_correlation": relative.Correlation,
			})
			best = relative
		}
	}

	return best, ke.nearTie(ranked, best), nil
}

// nearTie returns the highest ranked candidate other than best whose correlation is
// within NearTieMargin of best's, or nil.
func (ke *KeyEstimator) nearTie(ranked KeyEstimate, best KeyCandidate) *KeyCandidate {
	for _, kc := range ranked {
		if kc.Tonic == best.Tonic && kc.Mode == best.Mode {
			continue
		}
		gap := best.Correlation - kc.Correlation
		if gap < 0 {
			gap = -gap
		}
		if gap < ke.params.NearTieMargin {
			alt := kc
			return &alt
		}
		// Ranked order means later candidates are only further below
		if kc.Correlation < best.Correlation {
			return nil
		}
	}
	return nil
}

// scoreKeys validates the vector and scores every key in canonical order
func (ke *KeyEstimator) scoreKeys(vector chroma.PitchClassVector) (KeyEstimate, error) {
	if err := validateVector(vector); err != nil {
		return nil, err
	}

	estimate := make(KeyEstimate, 0, NumKeys)
	for _, mode := range []KeyMode{KeyModeMajor, KeyModeMinor} {
		reference := ReferenceProfile(mode)

		for tonic := 0; tonic < chroma.NumPitchClasses; tonic++ {
			profile := reference.Rotate(tonic)

			corr, err := stats.PearsonCorrelation(vector, profile[:])
			if err != nil {
				if errors.Is(err, stats.ErrZeroVariance) {
					return nil, fmt.Errorf("%w: %v", ErrDegenerateInput, err)
				}
				return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
			}

			estimate = append(estimate, KeyCandidate{
				Tonic:       tonic,
				Mode:        mode,
				Correlation: corr,
			})
		}
	}

	return estimate, nil
}

// validateVector rejects input before any correlation is computed
func validateVector(vector chroma.PitchClassVector) error {
	if len(vector) != chroma.NumPitchClasses {
		return fmt.Errorf("%w: expected %d values, got %d", ErrInvalidInput, chroma.NumPitchClasses, len(vector))
	}

	if ok, idx := common.AllFinite(vector); !ok {
		return fmt.Errorf("%w: non-finite value %v at pitch class %s", ErrInvalidInput, vector[idx], chroma.PitchClassName(idx))
	}

	if common.IsConstant(vector) {
		return fmt.Errorf("%w: all pitch classes have the same energy", ErrDegenerateInput)
	}

	return nil
}
