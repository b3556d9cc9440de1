package chroma

import (
	"fmt"
	"math"

	"github.com/RyanBlaney/sonido-key/algorithms/common"
	"github.com/RyanBlaney/sonido-key/algorithms/spectral"
)

// ChromaSTFT computes a chromagram from a Short-Time Fourier Transform.
//
// Each magnitude bin within [minFreq, maxFreq] is mapped to the nearest equal
// tempered semitone relative to the tuning frequency and folded into one of the
// 12 pitch classes. Each frame is then scaled so its loudest pitch class is 1.0.
type ChromaSTFT struct {
	sampleRate int
	windowSize int
	hopSize    int
	stft       *spectral.STFT
	window     *spectral.HannWindow
	tuningFreq float64 // A4 frequency (default 440 Hz)
	minFreq    float64 // Minimum frequency to consider
	maxFreq    float64 // Maximum frequency to consider
}

// ChromaSTFTParams configures chromagram extraction
type ChromaSTFTParams struct {
	SampleRate int     `json:"sample_rate"`
	WindowSize int     `json:"window_size"`
	HopSize    int     `json:"hop_size"`
	TuningFreq float64 `json:"tuning_freq"`
	MinFreq    float64 `json:"min_freq"`
	MaxFreq    float64 `json:"max_freq"`
}

// DefaultChromaSTFTParams returns parameters suited to key estimation at the given sample rate
func DefaultChromaSTFTParams(sampleRate int) ChromaSTFTParams {
	return ChromaSTFTParams{
		SampleRate: sampleRate,
		WindowSize: 4096,
		HopSize:    2048,
		TuningFreq: 440.0,
		MinFreq:    65.0,   // Approximate C2
		MaxFreq:    2100.0, // Approximate C7, above which harmonics dominate
	}
}

// NewChromaSTFT creates a new STFT-based chromagram calculator
func NewChromaSTFT(params ChromaSTFTParams) (*ChromaSTFT, error) {
	if params.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", params.SampleRate)
	}
	if params.WindowSize <= 0 || params.HopSize <= 0 {
		return nil, fmt.Errorf("window size and hop size must be positive, got %d/%d", params.WindowSize, params.HopSize)
	}
	if params.TuningFreq <= 0 {
		return nil, fmt.Errorf("tuning frequency must be positive, got %.2f", params.TuningFreq)
	}
	if params.MinFreq < 0 || params.MaxFreq <= params.MinFreq {
		return nil, fmt.Errorf("invalid frequency range [%.1f, %.1f]", params.MinFreq, params.MaxFreq)
	}

	return &ChromaSTFT{
		sampleRate: params.SampleRate,
		windowSize: params.WindowSize,
		hopSize:    params.HopSize,
		stft:       spectral.NewSTFT(),
		window:     spectral.NewHannWindow(params.WindowSize),
		tuningFreq: params.TuningFreq,
		minFreq:    params.MinFreq,
		maxFreq:    params.MaxFreq,
	}, nil
}

// ComputeChroma computes the chromagram (frames x 12) of a mono signal
func (cs *ChromaSTFT) ComputeChroma(signal []float64) ([][]float64, error) {
	if len(signal) == 0 {
		return nil, fmt.Errorf("empty signal")
	}

	// Short excerpts still yield one frame by zero padding up to the window size
	if len(signal) < cs.windowSize {
		padded := make([]float64, cs.windowSize)
		copy(padded, signal)
		signal = padded
	}

	stftResult, err := cs.stft.ComputeWithWindow(signal, cs.windowSize, cs.hopSize, cs.sampleRate, cs.window)
	if err != nil {
		return nil, fmt.Errorf("stft failed: %w", err)
	}

	return cs.convertSTFTToChroma(stftResult), nil
}

// convertSTFTToChroma converts an STFT magnitude spectrogram to a chromagram
func (cs *ChromaSTFT) convertSTFTToChroma(stftResult *spectral.STFTResult) [][]float64 {
	chromagram := make([][]float64, stftResult.TimeFrames)

	chromaMapping := cs.calculateChromaMapping(stftResult.FreqBins, stftResult.FreqResolution)

	for t := 0; t < stftResult.TimeFrames; t++ {
		chromagram[t] = make([]float64, NumPitchClasses)

		for f := 0; f < stftResult.FreqBins; f++ {
			chromaBin := chromaMapping[f]
			if chromaBin < 0 {
				continue
			}

			// Use magnitude squared for energy
			magnitude := stftResult.Magnitude[t][f]
			chromagram[t][chromaBin] += magnitude * magnitude
		}

		chromagram[t] = common.MaxNormalize(chromagram[t])
	}

	return chromagram
}

// calculateChromaMapping maps FFT bins to chroma bins, -1 for bins outside the range
func (cs *ChromaSTFT) calculateChromaMapping(freqBins int, freqResolution float64) []int {
	mapping := make([]int, freqBins)

	for f := 0; f < freqBins; f++ {
		frequency := float64(f) * freqResolution

		if frequency <= 0 || frequency < cs.minFreq || frequency > cs.maxFreq {
			mapping[f] = -1
			continue
		}

		midiNote := cs.frequencyToMIDI(frequency)
		mapping[f] = common.Mod(int(math.Round(midiNote)), NumPitchClasses)
	}

	return mapping
}

// frequencyToMIDI converts frequency to MIDI note number: 69 + 12 * log2(f/A4)
func (cs *ChromaSTFT) frequencyToMIDI(frequency float64) float64 {
	return 69.0 + 12.0*math.Log2(frequency/cs.tuningFreq)
}

// FrameDuration returns the hop between successive chroma frames in seconds
func (cs *ChromaSTFT) FrameDuration() float64 {
	return float64(cs.hopSize) / float64(cs.sampleRate)
}
