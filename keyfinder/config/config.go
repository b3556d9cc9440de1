package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/RyanBlaney/sonido-key/algorithms/chroma"
	"github.com/RyanBlaney/sonido-key/algorithms/temporal"
	"github.com/RyanBlaney/sonido-key/algorithms/tonal"
	"github.com/RyanBlaney/sonido-key/logging"
	"github.com/RyanBlaney/sonido-key/transcode"
)

// EnvPrefix prefixes every environment variable read by LoadFromEnv
const EnvPrefix = "KEYFINDER_"

// AnalysisConfig configures the decode -> chroma -> key pipeline
type AnalysisConfig struct {
	// Decoding
	SampleRate    int           `json:"sample_rate"`
	FFmpegPath    string        `json:"ffmpeg_path"`
	FFprobePath   string        `json:"ffprobe_path"`
	DecodeTimeout time.Duration `json:"decode_timeout"`
	NativeWAV     bool          `json:"native_wav"`

	// Silence trimming
	TrimSilence        bool    `json:"trim_silence"`
	SilenceThresholdDB float64 `json:"silence_threshold_db"` // Frame RMS below this is silent

	// Chroma extraction
	WindowSize int        `json:"window_size"`
	HopSize    int        `json:"hop_size"`
	TuningFreq float64    `json:"tuning_freq"` // A4 in Hz
	FreqRange  [2]float64 `json:"freq_range"`  // [min, max] Hz

	// Key estimation
	NearTieMargin       float64 `json:"near_tie_margin"`
	PreferRelativeMinor bool    `json:"prefer_relative_minor"`
	RelativeMinorRatio  float64 `json:"relative_minor_ratio"`

	// Runtime
	Workers  int    `json:"workers"` // 0 = one per CPU
	LogLevel string `json:"log_level"`
}

// DefaultAnalysisConfig returns the defaults used by the CLI
func DefaultAnalysisConfig() *AnalysisConfig {
	keyParams := tonal.DefaultKeyEstimationParams()
	chromaParams := chroma.DefaultChromaSTFTParams(22050)
	decoder := transcode.DefaultDecoderConfig()

	return &AnalysisConfig{
		SampleRate:          decoder.TargetSampleRate,
		FFmpegPath:          decoder.FFmpegPath,
		FFprobePath:         decoder.FFprobePath,
		DecodeTimeout:       decoder.Timeout,
		NativeWAV:           decoder.NativeWAV,
		TrimSilence:         true,
		SilenceThresholdDB:  temporal.DefaultSilenceThresholdDB,
		WindowSize:          chromaParams.WindowSize,
		HopSize:             chromaParams.HopSize,
		TuningFreq:          chromaParams.TuningFreq,
		FreqRange:           [2]float64{chromaParams.MinFreq, chromaParams.MaxFreq},
		NearTieMargin:       keyParams.NearTieMargin,
		PreferRelativeMinor: true, // Reports "E minor" rather than "G major" for near-equal relatives
		RelativeMinorRatio:  keyParams.RelativeMinorRatio,
		Workers:             0,
		LogLevel:            "warn",
	}
}

// Validate checks the configuration for values the pipeline cannot run with
func (c *AnalysisConfig) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive: %d", c.SampleRate)
	}
	if c.WindowSize <= 0 || c.HopSize <= 0 {
		return fmt.Errorf("window and hop size must be positive: %d/%d", c.WindowSize, c.HopSize)
	}
	if c.HopSize > c.WindowSize {
		return fmt.Errorf("hop size %d exceeds window size %d", c.HopSize, c.WindowSize)
	}
	if c.TuningFreq <= 0 {
		return fmt.Errorf("tuning frequency must be positive: %.2f", c.TuningFreq)
	}
	if c.FreqRange[0] < 0 || c.FreqRange[1] <= c.FreqRange[0] {
		return fmt.Errorf("invalid frequency range [%.1f, %.1f]", c.FreqRange[0], c.FreqRange[1])
	}
	if c.FreqRange[1] > float64(c.SampleRate)/2 {
		return fmt.Errorf("max frequency %.1f above Nyquist %.1f", c.FreqRange[1], float64(c.SampleRate)/2)
	}
	if c.TrimSilence && c.SilenceThresholdDB >= 0 {
		return fmt.Errorf("silence threshold must be below 0 dBFS: %.1f", c.SilenceThresholdDB)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative: %d", c.Workers)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return c.KeyParams().Validate()
}

// KeyParams returns the key estimator parameters
func (c *AnalysisConfig) KeyParams() tonal.KeyEstimationParams {
	return tonal.KeyEstimationParams{
		NearTieMargin:       c.NearTieMargin,
		PreferRelativeMinor: c.PreferRelativeMinor,
		RelativeMinorRatio:  c.RelativeMinorRatio,
	}
}

// ChromaParams returns chroma extraction parameters for audio at sampleRate
func (c *AnalysisConfig) ChromaParams(sampleRate int) chroma.ChromaSTFTParams {
	return chroma.ChromaSTFTParams{
		SampleRate: sampleRate,
		WindowSize: c.WindowSize,
		HopSize:    c.HopSize,
		TuningFreq: c.TuningFreq,
		MinFreq:    c.FreqRange[0],
		MaxFreq:    min(c.FreqRange[1], float64(sampleRate)/2),
	}
}

// DecoderConfig returns the audio decoder configuration
func (c *AnalysisConfig) DecoderConfig() *transcode.DecoderConfig {
	return &transcode.DecoderConfig{
		TargetSampleRate: c.SampleRate,
		FFmpegPath:       c.FFmpegPath,
		FFprobePath:      c.FFprobePath,
		Timeout:          c.DecodeTimeout,
		NativeWAV:        c.NativeWAV,
	}
}

// LoadFromEnv returns the defaults overridden by KEYFINDER_* variables. Variables are
// read from the given dotenv files (or ./.env when present and none are given) and
// from the process environment, which takes precedence.
func LoadFromEnv(files ...string) (*AnalysisConfig, error) {
	values := map[string]string{}

	if len(files) == 0 {
		if _, err := os.Stat(".env"); err == nil {
			files = []string{".env"}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat .env: %w", err)
		}
	}

	if len(files) > 0 {
		read, err := godotenv.Read(files...)
		if err != nil {
			return nil, fmt.Errorf("failed to read env files: %w", err)
		}
		values = read
	}

	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := values[key]
		return v, ok
	}

	cfg := DefaultAnalysisConfig()
	if err := cfg.apply(lookup); err != nil {
		return nil, err
	}

	return cfg, cfg.Validate()
}

// apply overrides fields from a variable lookup
func (c *AnalysisConfig) apply(lookup func(string) (string, bool)) error {
	var errs []error

	setInt := func(name string, dst *int) {
		if v, ok := lookup(EnvPrefix + name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	setFloat := func(name string, dst *float64) {
		if v, ok := lookup(EnvPrefix + name); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = f
		}
	}
	setBool := func(name string, dst *bool) {
		if v, ok := lookup(EnvPrefix + name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = b
		}
	}
	setString := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}

	setInt("SAMPLE_RATE", &c.SampleRate)
	setString("FFMPEG", &c.FFmpegPath)
	setString("FFPROBE", &c.FFprobePath)
	setBool("NATIVE_WAV", &c.NativeWAV)
	setBool("TRIM_SILENCE", &c.TrimSilence)
	setFloat("SILENCE_DB", &c.SilenceThresholdDB)
	setInt("WINDOW_SIZE", &c.WindowSize)
	setInt("HOP_SIZE", &c.HopSize)
	setFloat("TUNING_HZ", &c.TuningFreq)
	setFloat("MIN_FREQ", &c.FreqRange[0])
	setFloat("MAX_FREQ", &c.FreqRange[1])
	setFloat("NEAR_TIE_MARGIN", &c.NearTieMargin)
	setBool("PREFER_RELATIVE_MINOR", &c.PreferRelativeMinor)
	setFloat("RELATIVE_MINOR_RATIO", &c.RelativeMinorRatio)
	setInt("WORKERS", &c.Workers)
	setString("LOG_LEVEL", &c.LogLevel)

	if v, ok := lookup(EnvPrefix + "DECODE_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sDECODE_TIMEOUT: %w", EnvPrefix, err))
		} else {
			c.DecodeTimeout = d
		}
	}

	return errors.Join(errs...)
}
