package chroma

import (
	"math"
	"testing"
)

func sine(freq float64, sampleRate int, seconds float64) []float64 {
	n := int(float64(sampleRate) * seconds)
	signal := make([]float64, n)
	for i := range signal {
		signal[i] = math.Sin(2 * math.Pi * freq * float64(i) / float64(sampleRate))
	}
	return signal
}

func TestChromaSTFTPureTones(t *testing.T) {
	const sampleRate = 22050

	cs, err := NewChromaSTFT(DefaultChromaSTFTParams(sampleRate))
	if err != nil {
		t.Fatalf("NewChromaSTFT: %v", err)
	}

	tests := []struct {
		name string
		freq float64
		want int
	}{
		{"A4", 440.0, 9},
		{"C4", 261.63, 0},
		{"E4", 329.63, 4},
		{"G3", 196.0, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chromagram, err := cs.ComputeChroma(sine(tt.freq, sampleRate, 1.0))
			if err != nil {
				t.Fatalf("ComputeChroma: %v", err)
			}
			if len(chromagram) == 0 {
				t.Fatal("expected at least one frame")
			}

			vector, err := SumChromagram(chromagram)
			if err != nil {
				t.Fatalf("SumChromagram: %v", err)
			}

			if pc, _ := vector.Dominant(); pc != tt.want {
				t.Errorf("dominant pitch class = %s, want %s", PitchClassName(pc), PitchClassName(tt.want))
			}
		})
	}
}

func TestChromaSTFTShortSignalIsPadded(t *testing.T) {
	cs, err := NewChromaSTFT(DefaultChromaSTFTParams(22050))
	if err != nil {
		t.Fatalf("NewChromaSTFT: %v", err)
	}

	chromagram, err := cs.ComputeChroma(sine(440, 22050, 0.05))
	if err != nil {
		t.Fatalf("ComputeChroma: %v", err)
	}
	if len(chromagram) != 1 {
		t.Errorf("expected 1 frame, got %d", len(chromagram))
	}
}

func TestNewChromaSTFTValidation(t *testing.T) {
	params := DefaultChromaSTFTParams(22050)
	params.MaxFreq = params.MinFreq

	if _, err := NewChromaSTFT(params); err == nil {
		t.Error("expected error for empty frequency range")
	}

	if _, err := NewChromaSTFT(DefaultChromaSTFTParams(0)); err == nil {
		t.Error("expected error for zero sample rate")
	}
}
