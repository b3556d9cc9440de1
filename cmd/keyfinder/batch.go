package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/RyanBlaney/sonido-key/keyfinder"
)

type batchLine struct {
	BatchID string            `json:"batch_id"`
	Path    string            `json:"path"`
	Result  *keyfinder.Result `json:"result,omitempty"`
	Error   string            `json:"error,omitempty"`
}

func runBatch(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	ctx, cancel := signalContext()
	defer cancel()

	analyzer, err := keyfinder.NewAnalyzer(cfg)
	if err != nil {
		return err
	}

	var (
		progress *mpb.Progress
		bar      *mpb.Bar
	)
	if !noProgress && !jsonOutput {
		progress = mpb.NewWithContext(ctx, mpb.WithWidth(64), mpb.WithOutput(cmd.ErrOrStderr()))
		bar = progress.AddBar(int64(len(args)),
			mpb.PrependDecorators(
				decor.Name("Analyzing: "),
				decor.CountersNoUnit("%d / %d"),
			),
			mpb.AppendDecorators(
				decor.Percentage(),
				decor.AverageETA(decor.ET_STYLE_GO),
			),
		)
	}

	results := analyzer.AnalyzeFiles(ctx, args, segment(), func(string, error) {
		if bar != nil {
			bar.Increment()
		}
	})

	if progress != nil {
		progress.Wait()
	}

	failed := 0
	lines := make([]batchLine, 0, len(results))
	for _, r := range results {
		line := batchLine{BatchID: r.BatchID, Path: r.Path, Result: r.Result}
		if r.Err != nil {
			failed++
			line.Error = r.Err.Error()
		}
		lines = append(lines, line)
	}

	if jsonOutput {
		if err := printJSON(out, lines); err != nil {
			return err
		}
	} else {
		for _, line := range lines {
			if line.Error != "" {
				fmt.Fprintf(out, "%s: error: %s\n", line.Path, line.Error)
				continue
			}
			fmt.Fprintln(out, keyfinder.FormatResult(line.Result))
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(results))
	}
	return nil
}
