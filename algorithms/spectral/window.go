package spectral

import (
	"fmt"

	"github.com/mjibson/go-dsp/window"
)

// Window interface for windowing functions
type Window interface {
	ApplyInPlace(signal []float64) error
}

// HannWindow applies a precomputed Hann window. The coefficients are read-only
// after construction so one instance can be shared by concurrent STFT workers.
type HannWindow struct {
	coefficients []float64
}

// NewHannWindow creates a Hann window of the given size
func NewHannWindow(size int) *HannWindow {
	return &HannWindow{coefficients: window.Hann(size)}
}

// ApplyInPlace multiplies the signal by the window coefficients
func (h *HannWindow) ApplyInPlace(signal []float64) error {
	if len(signal) != len(h.coefficients) {
		return fmt.Errorf("window size %d does not match frame size %d", len(h.coefficients), len(signal))
	}

	for i, c := range h.coefficients {
		signal[i] *= c
	}

	return nil
}

// Size returns the window length
func (h *HannWindow) Size() int {
	return len(h.coefficients)
}
