package transcode

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// errNotPCM marks WAV files the native reader does not handle (float, A-law, ...)
var errNotPCM = errors.New("wav file is not integer PCM")

const wavFormatPCM = 1

// decodeWAVFile reads an integer PCM WAV file with go-audio/wav and downmixes it
// to mono at the file's own sample rate
func (d *Decoder) decodeWAVFile(filename string, segment Segment) (*AudioData, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", filename, err)
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("invalid wav file: %s", filename)
	}

	if decoder.WavAudioFormat != wavFormatPCM {
		return nil, fmt.Errorf("%w: audio format %d", errNotPCM, decoder.WavAudioFormat)
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to read wav samples: %w", err)
	}

	return pcmBufferToAudioData(buf, int(decoder.BitDepth), segment)
}

// pcmBufferToAudioData downmixes an interleaved integer buffer and cuts the segment
func pcmBufferToAudioData(buf *audio.IntBuffer, bitDepth int, segment Segment) (*AudioData, error) {
	if buf == nil || buf.Format == nil {
		return nil, fmt.Errorf("wav buffer has no format")
	}

	channels := buf.Format.NumChannels
	sampleRate := buf.Format.SampleRate
	if channels <= 0 || sampleRate <= 0 {
		return nil, fmt.Errorf("invalid wav format: %d channels at %d Hz", channels, sampleRate)
	}

	mono := downmix(buf.Data, channels, bitDepth)
	if len(mono) == 0 {
		return nil, fmt.Errorf("wav file contains no samples")
	}

	start, end, err := segment.sampleRange(sampleRate, len(mono))
	if err != nil {
		return nil, err
	}
	mono = mono[start:end]

	return &AudioData{
		PCM:        mono,
		SampleRate: sampleRate,
		Channels:   channels,
		Duration:   time.Duration(float64(len(mono)) / float64(sampleRate) * float64(time.Second)),
		Segment:    segment,
		Metadata: &AudioMetadata{
			SampleRate: sampleRate,
			Channels:   channels,
			Codec:      fmt.Sprintf("pcm_s%dle", bitDepth),
			Format:     "wav",
		},
	}, nil
}

// downmix averages interleaved channels and scales integer samples to [-1, 1]
func downmix(data []int, channels, bitDepth int) []float64 {
	frames := len(data) / channels
	mono := make([]float64, frames)

	scale := 1.0
	offset := 0.0
	switch {
	case bitDepth == 8:
		// 8-bit WAV is unsigned
		scale, offset = 128.0, 128.0
	case bitDepth > 8:
		scale = float64(int64(1) << (bitDepth - 1))
	}

	for i := 0; i < frames; i++ {
		sum := 0.0
		for ch := 0; ch < channels; ch++ {
			sum += (float64(data[i*channels+ch]) - offset) / scale
		}
		mono[i] = sum / float64(channels)
	}

	return mono
}
