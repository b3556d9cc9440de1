package temporal

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// DefaultSilenceThresholdDB is the frame RMS level, in dBFS, below which a frame is silent
const DefaultSilenceThresholdDB = -60.0

// silenceFrameSeconds is the analysis frame length; frames overlap by half
const silenceFrameSeconds = 0.025

// FrameRMS computes the RMS level of each frame
func FrameRMS(signal []float64, frameSize, hopSize int) []float64 {
	if len(signal) < frameSize || frameSize <= 0 || hopSize <= 0 {
		return []float64{}
	}

	numFrames := (len(signal)-frameSize)/hopSize + 1
	rms := make([]float64, numFrames)

	for i := 0; i < numFrames; i++ {
		frame := signal[i*hopSize : i*hopSize+frameSize]
		rms[i] = math.Sqrt(floats.Dot(frame, frame) / float64(frameSize))
	}

	return rms
}

// LevelDB converts a linear amplitude to dBFS. Zero maps to -Inf.
func LevelDB(amplitude float64) float64 {
	return 20 * math.Log10(amplitude)
}

// TrimSilence finds the span between the first and last non-silent frames.
// ok is false when the whole signal is below thresholdDB.
func TrimSilence(signal []float64, sampleRate int, thresholdDB float64) (start, end int, ok bool) {
	if len(signal) == 0 || sampleRate <= 0 {
		return 0, 0, false
	}

	frameSize := max(1, int(silenceFrameSeconds*float64(sampleRate)))
	frameSize = min(frameSize, len(signal))
	hopSize := max(1, frameSize/2)

	levels := FrameRMS(signal, frameSize, hopSize)

	first, last := -1, -1
	for i, rms := range levels {
		if LevelDB(rms) >= thresholdDB {
			if first < 0 {
				first = i
			}
			last = i
		}
	}

	if first < 0 {
		return 0, 0, false
	}

	start = first * hopSize
	end = last*hopSize + frameSize
	// The final partial hop is not covered by a frame; keep it when the last frame is audible
	if last == len(levels)-1 {
		end = len(signal)
	}

	return start, end, true
}
