package keyfinder

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/RyanBlaney/sonido-key/algorithms/chroma"
	"github.com/RyanBlaney/sonido-key/algorithms/temporal"
	"github.com/RyanBlaney/sonido-key/algorithms/tonal"
	"github.com/RyanBlaney/sonido-key/keyfinder/config"
	"github.com/RyanBlaney/sonido-key/logging"
	"github.com/RyanBlaney/sonido-key/transcode"
)

// Result is the key analysis of one audio fragment
type Result struct {
	Source      string                  `json:"source,omitempty"`
	Segment     transcode.Segment       `json:"segment"`
	Duration    time.Duration           `json:"duration"` // Length of the analyzed audio
	SampleRate  int                     `json:"sample_rate"`
	Frames      int                     `json:"frames"` // Chroma frames summed into Chroma
	Key         tonal.KeyCandidate      `json:"key"`
	Alternative *tonal.KeyCandidate     `json:"alternative,omitempty"`
	Table       tonal.KeyEstimate       `json:"table,omitempty"` // Ranked; nil for batch results
	Chroma      chroma.PitchClassVector `json:"chroma"`
}

// FileResult pairs a batch input path with its result or error
type FileResult struct {
	BatchID string  `json:"batch_id"`
	Path    string  `json:"path"`
	Result  *Result `json:"result,omitempty"`
	Err     error   `json:"-"`
}

// Analyzer runs the decode, chroma and key estimation pipeline
type Analyzer struct {
	config    *config.AnalysisConfig
	decoder   *transcode.Decoder
	estimator *tonal.KeyEstimator
	logger    logging.Logger
}

// NewAnalyzer creates an analyzer. A nil config uses DefaultAnalysisConfig.
func NewAnalyzer(cfg *config.AnalysisConfig) (*Analyzer, error) {
	if cfg == nil {
		cfg = config.DefaultAnalysisConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid analysis config: %w", err)
	}

	estimator, err := tonal.NewKeyEstimatorWithParams(cfg.KeyParams())
	if err != nil {
		return nil, err
	}

	return &Analyzer{
		config:    cfg,
		decoder:   transcode.NewDecoder(cfg.DecoderConfig()),
		estimator: estimator,
		logger: logging.WithFields(logging.Fields{
			"component": "key_analyzer",
		}),
	}, nil
}

// Estimator returns the key estimator used by the analyzer
func (a *Analyzer) Estimator() *tonal.KeyEstimator {
	return a.estimator
}

// AnalyzeFile decodes the segment of the file and estimates its key
func (a *Analyzer) AnalyzeFile(ctx context.Context, path string, segment transcode.Segment) (*Result, error) {
	audioData, err := a.decoder.DecodeFile(ctx, path, segment)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	result, err := a.AnalyzeAudio(audioData)
	if err != nil {
		return nil, fmt.Errorf("failed to analyze %s: %w", path, err)
	}
	result.Source = path

	return result, nil
}

// AnalyzeAudio estimates the key of already decoded audio
func (a *Analyzer) AnalyzeAudio(audioData *transcode.AudioData) (*Result, error) {
	result, err := a.extract(audioData)
	if err != nil {
		return nil, err
	}

	table, err := a.estimator.RankKeys(result.Chroma)
	if err != nil {
		return nil, err
	}

	best, alternative, err := a.estimator.KeyFromRanking(table)
	if err != nil {
		return nil, err
	}

	result.Table = table
	result.Key = best
	result.Alternative = alternative

	a.logger.Info("Key detected", logging.Fields{
		"source":      result.Source,
		"key":         best.Name(),
		"correlation": best.Correlation,
		"frames":      result.Frames,
	})

	return result, nil
}

// AnalyzeFiles analyzes many files concurrently. Results are in input order and a
// failing file only sets its own Err. Results and log lines of one call share a
// random batch ID. onDone, if non-nil, is called once per file as soon as its
// audio has been processed; it may be called from several goroutines.
func (a *Analyzer) AnalyzeFiles(ctx context.Context, paths []string, segment transcode.Segment, onDone func(path string, err error)) []FileResult {
	results := make([]FileResult, len(paths))
	if len(paths) == 0 {
		return results
	}

	batchID := uuid.NewString()
	ctx = logging.ContextWithFields(ctx, logging.Fields{"batch_id": batchID})
	logger := a.logger.WithContext(ctx)

	workers := a.config.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	workers = min(workers, len(paths))

	jobs := make(chan int, len(paths))
	for i := range paths {
		jobs <- i
	}
	close(jobs)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for idx := range jobs {
				path := paths[idx]
				results[idx].BatchID = batchID
				results[idx].Path = path

				result, err := a.extractFile(ctx, path, segment)
				results[idx].Result = result
				results[idx].Err = err

				if onDone != nil {
					onDone(path, err)
				}
			}
		}()
	}
	wg.Wait()

	// Estimation is cheap next to decoding, so it runs once all vectors are in
	vectors := make([]chroma.PitchClassVector, 0, len(paths))
	owners := make([]int, 0, len(paths))
	for i, r := range results {
		if r.Err == nil {
			vectors = append(vectors, r.Result.Chroma)
			owners = append(owners, i)
		}
	}

	for _, br := range a.estimator.EstimateBatch(ctx, vectors, workers) {
		idx := owners[br.Index]
		if br.Err != nil {
			results[idx].Err = fmt.Errorf("failed to analyze %s: %w", paths[idx], br.Err)
			results[idx].Result = nil
			continue
		}
		results[idx].Result.Key = br.Best
		results[idx].Result.Alternative = br.Secondary
	}

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			logger.Warn("File analysis failed", logging.Fields{"path": r.Path, "error": r.Err.Error()})
		}
	}

	logger.Info("Batch analysis completed", logging.Fields{
		"files":   len(paths),
		"failed":  failed,
		"workers": workers,
	})

	return results
}

// extractFile decodes a file and computes its pitch class vector
func (a *Analyzer) extractFile(ctx context.Context, path string, segment transcode.Segment) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	audioData, err := a.decoder.DecodeFile(ctx, path, segment)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	result, err := a.extract(audioData)
	if err != nil {
		return nil, fmt.Errorf("failed to extract chroma from %s: %w", path, err)
	}
	result.Source = path

	return result, nil
}

// extract computes the summed chromagram of decoded audio
func (a *Analyzer) extract(audioData *transcode.AudioData) (*Result, error) {
	if audioData == nil || len(audioData.PCM) == 0 {
		return nil, fmt.Errorf("no audio samples to analyze")
	}

	pcm := audioData.PCM
	if a.config.TrimSilence {
		start, end, ok := temporal.TrimSilence(pcm, audioData.SampleRate, a.config.SilenceThresholdDB)
		if !ok {
			return nil, fmt.Errorf("%w: excerpt is silent below %.0f dBFS", tonal.ErrDegenerateInput, a.config.SilenceThresholdDB)
		}
		pcm = pcm[start:end]
	}

	chromaSTFT, err := chroma.NewChromaSTFT(a.config.ChromaParams(audioData.SampleRate))
	if err != nil {
		return nil, err
	}

	chromagram, err := chromaSTFT.ComputeChroma(pcm)
	if err != nil {
		return nil, err
	}

	vector, err := chroma.SumChromagram(chromagram)
	if err != nil {
		return nil, err
	}

	a.logger.Debug("Chroma extracted", logging.Fields{
		"frames":      len(chromagram),
		"frame_hop":   chromaSTFT.FrameDuration(),
		"sample_rate": audioData.SampleRate,
		"samples":     len(pcm),
	})

	return &Result{
		Segment:    audioData.Segment,
		Duration:   audioData.Duration,
		SampleRate: audioData.SampleRate,
		Frames:     len(chromagram),
		Chroma:     vector,
	}, nil
}
