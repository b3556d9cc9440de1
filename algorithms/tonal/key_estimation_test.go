package tonal

import (
	"encoding/json"
	"errors"
	"math"
	"slices"
	"testing"

	"github.com/RyanBlaney/sonido-key/algorithms/chroma"
)

// Summed chroma of a reference excerpt, normalised to its strongest pitch class
var referenceChroma = chroma.PitchClassVector{1.000, 0.627, 0.920, 0.652, 0.956, 0.618, 0.668, 0.993, 0.670, 0.835, 0.645, 0.979}

func mustRank(t *testing.T, ke *KeyEstimator, v chroma.PitchClassVector) KeyEstimate {
	t.Helper()
	ranked, err := ke.RankKeys(v)
	if err != nil {
		t.Fatalf("RankKeys: %v", err)
	}
	return ranked
}

func TestRankKeysReferenceExcerpt(t *testing.T) {
	ranked := mustRank(t, NewKeyEstimator(), referenceChroma)

	want := []struct {
		name string
		corr float64
	}{
		{"G major", 0.860},
		{"E minor", 0.793},
		{"C major", 0.706},
		{"A minor", 0.528},
		{"B minor", 0.445},
		{"D major", 0.418},
		{"C minor", 0.248},
		{"E major", 0.215},
		{"G minor", 0.188},
		{"A major", 0.175},
		{"D minor", 0.106},
		{"F major", 0.081},
		{"B major", -0.062},
		{"G# minor", -0.167},
		{"C# minor", -0.199},
		{"F# minor", -0.236},
		{"A# major", -0.254},
		{"D# major", -0.295},
		{"F minor", -0.372},
		{"G# major", -0.456},
		{"D# minor", -0.593},
		{"F# major", -0.597},
		{"A# minor", -0.739},
		{"C# major", -0.793},
	}

	if len(ranked) != len(want) {
		t.Fatalf("expected %d candidates, got %d", len(want), len(ranked))
	}

	for i, w := range want {
		if ranked[i].Name() != w.name {
			t.Errorf("rank %d: got %s, want %s", i, ranked[i].Name(), w.name)
		}
		if math.Abs(ranked[i].Correlation-w.corr) > 6e-4 {
			t.Errorf("%s: correlation %.4f, want %.3f", w.name, ranked[i].Correlation, w.corr)
		}
	}
}

func TestBestKeyReferenceExcerpt(t *testing.T) {
	t.Run("plain ranking", func(t *testing.T) {
		best, secondary, err := NewKeyEstimator().BestKey(referenceChroma)
		if err != nil {
			t.Fatalf("BestKey: %v", err)
		}
		if best.Tonic != 7 || best.Mode != KeyModeMajor {
			t.Errorf("best = %s, want G major", best.Name())
		}
		if secondary == nil {
			t.Fatal("expected E minor as near-tie secondary")
		}
		if secondary.Tonic != 4 || secondary.Mode != KeyModeMinor {
			t.Errorf("secondary = %s, want E minor", secondary.Name())
		}
	})

	t.Run("relative minor preferred", func(t *testing.T) {
		params := DefaultKeyEstimationParams()
		params.PreferRelativeMinor = true
		ke, err := NewKeyEstimatorWithParams(params)
		if err != nil {
			t.Fatalf("NewKeyEstimatorWithParams: %v", err)
		}

		best, secondary, err := ke.KeyWithContext(referenceChroma)
		if err != nil {
			t.Fatalf("KeyWithContext: %v", err)
		}
		if best.Tonic != 4 || best.Mode != KeyModeMinor {
			t.Errorf("best = %s, want E minor", best.Name())
		}
		if math.Abs(best.Correlation-0.793) > 6e-4 {
			t.Errorf("correlation = %.4f, want 0.793", best.Correlation)
		}
		if secondary == nil || secondary.Name() != "G major" {
			t.Errorf("secondary = %v, want G major", secondary)
		}
	})

	t.Run("relative minor disabled", func(t *testing.T) {
		best, _, err := NewKeyEstimator().KeyWithContext(referenceChroma)
		if err != nil {
			t.Fatalf("KeyWithContext: %v", err)
		}
		if best.Name() != "G major" {
			t.Errorf("best = %s, want G major", best.Name())
		}
	})
}

func TestNearTieMargin(t *testing.T) {
	params := DefaultKeyEstimationParams()
	params.NearTieMargin = 0.05
	ke, err := NewKeyEstimatorWithParams(params)
	if err != nil {
		t.Fatalf("NewKeyEstimatorWithParams: %v", err)
	}

	// G major leads E minor by ~0.067
	_, secondary, err := ke.BestKey(referenceChroma)
	if err != nil {
		t.Fatalf("BestKey: %v", err)
	}
	if secondary != nil {
		t.Errorf("expected no secondary with margin 0.05, got %s", secondary.Name())
	}
}

func TestRankKeysDeterminism(t *testing.T) {
	ke := NewKeyEstimator()
	first := mustRank(t, ke, referenceChroma)
	second := mustRank(t, ke, referenceChroma)

	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("rank %d differs: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestRankKeysCompletenessAndRange(t *testing.T) {
	vectors := []chroma.PitchClassVector{
		referenceChroma,
		{1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0},
		{0, 3, 1, 4, 1, 5, 9, 2, 6, 5, 3, 5},
		{-1, 2, -3, 4, -5, 6, -7, 8, -9, 10, -11, 12},
	}

	for _, v := range vectors {
		ranked := mustRank(t, NewKeyEstimator(), v)
		if len(ranked) != NumKeys {
			t.Fatalf("expected %d candidates, got %d", NumKeys, len(ranked))
		}

		seen := make(map[int]bool)
		for i, kc := range ranked {
			if kc.Tonic < 0 || kc.Tonic > 11 {
				t.Errorf("tonic out of range: %d", kc.Tonic)
			}
			if seen[kc.index()] {
				t.Errorf("duplicate candidate %s", kc.Name())
			}
			seen[kc.index()] = true

			if kc.Correlation < -1 || kc.Correlation > 1 {
				t.Errorf("%s correlation %v outside [-1, 1]", kc.Name(), kc.Correlation)
			}
			if i > 0 && ranked[i-1].Correlation < kc.Correlation {
				t.Errorf("not sorted at rank %d", i)
			}
		}
	}
}

func TestRankKeysRotationSymmetry(t *testing.T) {
	ke := NewKeyEstimator()
	base := mustRank(t, ke, referenceChroma)

	for k := 0; k < 12; k++ {
		rotated := mustRank(t, ke, referenceChroma.Rotate(k))

		for _, kc := range base {
			shifted, ok := rotated.Find(kc.Tonic+k, kc.Mode)
			if !ok {
				t.Fatalf("missing candidate for %s shifted by %d", kc.Name(), k)
			}
			if math.Abs(shifted.Correlation-kc.Correlation) > 1e-12 {
				t.Errorf("k=%d: %s %.15f vs %s %.15f", k, kc.Name(), kc.Correlation, shifted.Name(), shifted.Correlation)
			}
		}

		if rotated[0].Tonic != (base[0].Tonic+k)%12 || rotated[0].Mode != base[0].Mode {
			t.Errorf("k=%d: best %s, want %s", k, rotated[0].Name(), KeyName(base[0].Tonic+k, base[0].Mode))
		}
	}
}

func TestRankKeysSelfMatch(t *testing.T) {
	for _, mode := range []KeyMode{KeyModeMajor, KeyModeMinor} {
		profile := ReferenceProfile(mode)
		ranked := mustRank(t, NewKeyEstimator(), profile[:])

		self, ok := ranked.Find(0, mode)
		if !ok {
			t.Fatalf("missing C %s", mode)
		}
		if math.Abs(self.Correlation-1.0) > 1e-12 {
			t.Errorf("C %s self correlation = %.15f, want 1", mode, self.Correlation)
		}
		if ranked[0] != self {
			t.Errorf("expected C %s ranked first, got %s", mode, ranked[0].Name())
		}
	}
}

func TestRankKeysRejectsInput(t *testing.T) {
	tests := []struct {
		name   string
		vector chroma.PitchClassVector
		want   error
	}{
		{"constant", chroma.PitchClassVector{5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5}, ErrDegenerateInput},
		{"silence", make(chroma.PitchClassVector, 12), ErrDegenerateInput},
		{"too short", chroma.PitchClassVector{1, 2, 3}, ErrInvalidInput},
		{"too long", make(chroma.PitchClassVector, 24), ErrInvalidInput},
		{"nil", nil, ErrInvalidInput},
		{"NaN", chroma.PitchClassVector{1, 2, 3, 4, 5, 6, math.NaN(), 8, 9, 10, 11, 12}, ErrInvalidInput},
		{"Inf", chroma.PitchClassVector{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, math.Inf(1)}, ErrInvalidInput},
	}

	ke := NewKeyEstimator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ranked, err := ke.RankKeys(tt.vector)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
			if ranked != nil {
				t.Error("expected no partial result")
			}

			if _, _, err := ke.BestKey(tt.vector); !errors.Is(err, tt.want) {
				t.Errorf("BestKey: expected %v, got %v", tt.want, err)
			}
		})
	}

	t.Run("degenerate is distinguishable", func(t *testing.T) {
		_, err := ke.RankKeys(chroma.PitchClassVector{5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5})
		if errors.Is(err, ErrInvalidInput) {
			t.Error("degenerate input must not match ErrInvalidInput")
		}
	})
}

func TestCorrelationTable(t *testing.T) {
	ke := NewKeyEstimator()

	table, err := ke.CorrelationTable(referenceChroma, false)
	if err != nil {
		t.Fatalf("CorrelationTable: %v", err)
	}
	for i, kc := range table {
		if kc.index() != i {
			t.Fatalf("position %d holds %s, expected canonical order", i, kc.Name())
		}
	}

	sorted, err := ke.CorrelationTable(referenceChroma, true)
	if err != nil {
		t.Fatalf("CorrelationTable: %v", err)
	}
	ranked := mustRank(t, ke, referenceChroma)
	for i := range ranked {
		if sorted[i] != ranked[i] {
			t.Fatalf("sorted table differs from RankKeys at %d", i)
		}
	}

	canonical := ranked.Canonical()
	for i := range canonical {
		if canonical[i] != table[i] {
			t.Fatalf("Canonical() differs from unsorted table at %d", i)
		}
	}
}

func TestCompareRankedTieBreak(t *testing.T) {
	candidates := KeyEstimate{
		{Tonic: 5, Mode: KeyModeMinor, Correlation: 0.5},
		{Tonic: 2, Mode: KeyModeMajor, Correlation: 0.5},
		{Tonic: 0, Mode: KeyModeMinor, Correlation: 0.5},
		{Tonic: 9, Mode: KeyModeMajor, Correlation: 0.7},
	}

	want := []string{"A major", "D major", "C minor", "F minor"}

	sorted := candidates.Canonical()
	slices.SortStableFunc(sorted, compareRanked)
	for i, name := range want {
		if sorted[i].Name() != name {
			t.Errorf("rank %d: got %s, want %s", i, sorted[i].Name(), name)
		}
	}
}

func TestReferenceProfileIsCopied(t *testing.T) {
	profile := ReferenceProfile(KeyModeMajor)
	profile[0] = 0

	if ReferenceProfile(KeyModeMajor)[0] != 6.35 {
		t.Error("mutating a returned profile changed the reference")
	}
}

func TestKeyProfileRotate(t *testing.T) {
	major := ReferenceProfile(KeyModeMajor)
	g := major.Rotate(7)

	// Tonic weight moves to G, leading tone weight to F#
	if g[7] != major[0] || g[6] != major[11] {
		t.Errorf("unexpected rotation: %v", g)
	}
	if major.Rotate(12) != major || major.Rotate(-5) != major.Rotate(7) {
		t.Error("rotation must be periodic modulo 12")
	}
}

func TestKeyEstimationParamsValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*KeyEstimationParams)
		wantErr bool
	}{
		{"defaults", func(p *KeyEstimationParams) {}, false},
		{"negative margin", func(p *KeyEstimationParams) { p.NearTieMargin = -0.1 }, true},
		{"zero ratio", func(p *KeyEstimationParams) { p.RelativeMinorRatio = 0 }, true},
		{"ratio above one", func(p *KeyEstimationParams) { p.RelativeMinorRatio = 1.5 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := DefaultKeyEstimationParams()
			tt.mutate(&params)
			_, err := NewKeyEstimatorWithParams(params)
			if (err != nil) != tt.wantErr {
				t.Errorf("error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestKeyCandidateJSON(t *testing.T) {
	kc := KeyCandidate{Tonic: 4, Mode: KeyModeMinor, Correlation: 0.5}

	data, err := json.Marshal(kc)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(data) != `{"tonic":4,"mode":"minor","correlation":0.5}` {
		t.Errorf("unexpected JSON %s", data)
	}

	var decoded KeyCandidate
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded != kc {
		t.Errorf("decoded %+v, want %+v", decoded, kc)
	}

	if err := json.Unmarshal([]byte(`{"mode":"dorian"}`), &decoded); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestRankKeysScaleInvariance(t *testing.T) {
	ke := NewKeyEstimator()
	want := mustRank(t, ke, referenceChroma)

	for _, scale := range []float64{1e-13, 1e-6, 1e6} {
		scaled := make(chroma.PitchClassVector, len(referenceChroma))
		for i, v := range referenceChroma {
			scaled[i] = v * scale
		}

		got, err := ke.RankKeys(scaled)
		if err != nil {
			t.Fatalf("scale %g: %v", scale, err)
		}
		for i := range want {
			if got[i].Tonic != want[i].Tonic || got[i].Mode != want[i].Mode {
				t.Fatalf("scale %g: rank %d is %s, want %s", scale, i, got[i].Name(), want[i].Name())
			}
			if math.Abs(got[i].Correlation-want[i].Correlation) > 1e-9 {
				t.Errorf("scale %g: %s correlation %v, want %v", scale, got[i].Name(), got[i].Correlation, want[i].Correlation)
			}
		}
	}
}

func TestRankKeysRejectsConstantAtAnyScale(t *testing.T) {
	ke := NewKeyEstimator()

	for _, level := range []float64{1e-15, 0.1, 1.0 / 3, 123456.789, 1e12 / 7} {
		constant := make(chroma.PitchClassVector, chroma.NumPitchClasses)
		for i := range constant {
			constant[i] = level
		}
		if _, err := ke.RankKeys(constant); !errors.Is(err, ErrDegenerateInput) {
			t.Errorf("level %g: expected ErrDegenerateInput, got %v", level, err)
		}
	}
}

func TestKeyFromRanking(t *testing.T) {
	params := DefaultKeyEstimationParams()
	params.PreferRelativeMinor = true
	ke, err := NewKeyEstimatorWithParams(params)
	if err != nil {
		t.Fatalf("NewKeyEstimatorWithParams: %v", err)
	}

	ranked := mustRank(t, ke, referenceChroma)
	best, secondary, err := ke.KeyFromRanking(ranked)
	if err != nil {
		t.Fatalf("KeyFromRanking: %v", err)
	}

	wantBest, wantSecondary, err := ke.KeyWithContext(referenceChroma)
	if err != nil {
		t.Fatalf("KeyWithContext: %v", err)
	}
	if best != wantBest {
		t.Errorf("best = %s, want %s", best.Name(), wantBest.Name())
	}
	if secondary == nil || wantSecondary == nil || *secondary != *wantSecondary {
		t.Errorf("secondary = %v, want %v", secondary, wantSecondary)
	}

	if _, _, err := ke.KeyFromRanking(ranked[:3]); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for a partial ranking, got %v", err)
	}
}
