package transcode

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/RyanBlaney/sonido-key/logging"
)

// AudioData represents decoded mono audio
type AudioData struct {
	PCM        []float64      `json:"-"` // Mono samples in [-1, 1]
	SampleRate int            `json:"sample_rate"`
	Channels   int            `json:"channels"` // Channels in the source before downmixing
	Duration   time.Duration  `json:"duration"`
	Segment    Segment        `json:"segment"`
	Metadata   *AudioMetadata `json:"metadata,omitempty"`
}

// AudioMetadata holds detected audio properties of the source
type AudioMetadata struct {
	SampleRate int     `json:"sample_rate"`
	Channels   int     `json:"channels"`
	Codec      string  `json:"codec"`
	Duration   float64 `json:"duration"`
	Bitrate    int     `json:"bitrate"`
	Format     string  `json:"format"`
}

// Segment bounds the excerpt to decode. A zero End means "until the end of the file".
type Segment struct {
	Start time.Duration `json:"start"`
	End   time.Duration `json:"end"`
}

// Validate checks that the segment bounds are ordered and non-negative
func (s Segment) Validate() error {
	if s.Start < 0 || s.End < 0 {
		return fmt.Errorf("segment bounds must be non-negative: start=%v end=%v", s.Start, s.End)
	}
	if s.End > 0 && s.End <= s.Start {
		return fmt.Errorf("segment end %v must be after start %v", s.End, s.Start)
	}
	return nil
}

// IsFull reports whether the segment covers the whole file
func (s Segment) IsFull() bool {
	return s.Start == 0 && s.End == 0
}

// Length returns the requested duration, or 0 when open ended
func (s Segment) Length() time.Duration {
	if s.End == 0 {
		return 0
	}
	return s.End - s.Start
}

// sampleRange converts the segment to sample indices for a signal of n samples
func (s Segment) sampleRange(sampleRate, n int) (int, int, error) {
	start := int(s.Start.Seconds() * float64(sampleRate))
	end := n
	if s.End > 0 {
		end = min(n, int(s.End.Seconds()*float64(sampleRate)))
	}

	if start >= n {
		return 0, 0, fmt.Errorf("segment starts at %v, after the end of the audio", s.Start)
	}

	return start, end, nil
}

// DecoderConfig holds decoder configuration
type DecoderConfig struct {
	TargetSampleRate int           `json:"target_sample_rate"` // Sample rate requested from ffmpeg
	FFmpegPath       string        `json:"ffmpeg_path"`        // Path to ffmpeg binary
	FFprobePath      string        `json:"ffprobe_path"`       // Path to ffprobe binary
	Timeout          time.Duration `json:"timeout"`            // Timeout for ffmpeg operations
	NativeWAV        bool          `json:"native_wav"`         // Decode PCM WAV in-process instead of via ffmpeg
}

// DefaultDecoderConfig returns default decoder configuration
func DefaultDecoderConfig() *DecoderConfig {
	return &DecoderConfig{
		TargetSampleRate: 22050,
		FFmpegPath:       "ffmpeg",  // Assume in PATH
		FFprobePath:      "ffprobe", // Assume in PATH
		Timeout:          60 * time.Second,
		NativeWAV:        true,
	}
}

// Decoder turns audio files into mono PCM for chroma analysis
type Decoder struct {
	config *DecoderConfig
}

// NewDecoder creates a new audio decoder
func NewDecoder(config *DecoderConfig) *Decoder {
	if config == nil {
		config = DefaultDecoderConfig()
	}
	return &Decoder{config: config}
}

// DecodeFile decodes the given segment of an audio file to mono PCM.
//
// PCM WAV files are read in-process; everything else goes through ffmpeg, which
// also resamples to the configured target sample rate.
func (d *Decoder) DecodeFile(ctx context.Context, filename string, segment Segment) (*AudioData, error) {
	logger := logging.WithContext(ctx).WithFields(logging.Fields{
		"component": "audio_decoder",
		"function":  "DecodeFile",
		"filename":  filename,
	})

	if err := segment.Validate(); err != nil {
		return nil, err
	}

	logger.Debug("Starting audio file decode", logging.Fields{
		"start": segment.Start.Seconds(),
		"end":   segment.End.Seconds(),
	})

	if d.config.NativeWAV && strings.EqualFold(filepath.Ext(filename), ".wav") {
		audioData, err := d.decodeWAVFile(filename, segment)
		if err == nil {
			return audioData, nil
		}
		if !errors.Is(err, errNotPCM) {
			logger.Error(err, "Failed to decode WAV file")
			return nil, err
		}
		logger.Debug("WAV is not integer PCM, falling back to ffmpeg")
	}

	if d.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.config.Timeout)
		defer cancel()
	}

	metadata, err := d.probeAudioFile(ctx, filename)
	if err != nil {
		logger.Error(err, "Failed to probe audio file")
		return nil, err
	}

	logger.Debug("Audio metadata detected", logging.Fields{
		"input_sample_rate": metadata.SampleRate,
		"input_channels":    metadata.Channels,
		"input_codec":       metadata.Codec,
		"input_duration":    metadata.Duration,
	})

	return d.decodeFileWithFFmpeg(ctx, filename, segment, metadata)
}

// GetConfig returns the decoder configuration
func (d *Decoder) GetConfig() DecoderConfig {
	return *d.config
}
