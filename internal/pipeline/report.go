package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/hed1ad/fraudguard/internal/logging"
	pkgio "github.com/hed1ad/fraudguard/pkg/io"
	"github.com/hed1ad/fraudguard/pkg/io/csv"
	"github.com/hed1ad/fraudguard/pkg/report"
)

var reportPreviewColumns = []string{
	report.TimeLabel,
	report.AmountLabel,
	report.UserLabel,
	report.FlaggedLabel,
	report.ProbabilityLabel,
}

// ReportStage builds the risk dashboard from scored transactions.
type ReportStage struct {
	Deps
	// InputFile overrides the configured predictions path.
	InputFile string
	// Threshold, when set, flags rows by probability instead of by
	// prediction.
	Threshold *float64
	// Preview prints the highest-risk rows to Out.
	Preview bool
}

// Name implements Stage.
func (s *ReportStage) Name() string { return StageReport }

// Input implements Stage.
func (s *ReportStage) Input() string { return inputOr(s.InputFile, s.Config.PredictionsPath) }

// Run implements Stage.
func (s *ReportStage) Run(ctx context.Context) error {
	log := logging.FromContext(ctx)
	cfg := s.Config

	predictions, err := readTable(s.Name(), s.Input())
	if err != nil {
		return err
	}

	var opts []report.Option
	if s.Threshold != nil {
		opts = append(opts, report.WithThreshold(*s.Threshold))
		log.Info().Float64("threshold", *s.Threshold).Msg("Flagging by probability threshold")
	}
	rpt, err := report.Generate(predictions, opts...)
	if err != nil {
		return err
	}

	files := []pkgio.AtomicFile{{Path: cfg.ReportPath, Write: func(w io.Writer) error {
		return csv.Encode(w, rpt)
	}}}
	chartSaved := false
	if rpt.Len() > 0 && cfg.ChartPath != "" {
		var png bytes.Buffer
		if err := report.RenderChart(&png, rpt, cfg.ChartTopN); err != nil {
			return fmt.Errorf("render chart: %w", err)
		}
		files = append(files, pkgio.AtomicFile{Path: cfg.ChartPath, Write: func(w io.Writer) error {
			_, err := w.Write(png.Bytes())
			return err
		}})
		chartSaved = true
	}
	if err := pkgio.WriteFilesAtomic(files...); err != nil {
		return err
	}
	s.Metrics.SetFlagged(rpt.Len())
	s.Metrics.SetRows(s.Name(), rpt.Len())

	if rpt.Len() == 0 {
		log.Warn().Msg("No transactions were flagged as fraudulent. Report is empty")
	} else {
		log.Info().Int("flagged", rpt.Len()).Msg("Generated report of high-risk transactions")
	}
	log.Info().Str("path", cfg.ReportPath).Msg("Risk dashboard saved")

	if chartSaved {
		log.Info().Str("path", cfg.ChartPath).Msg("Risk chart saved")
	}

	if s.Preview {
		report.Preview(s.out(), rpt, reportPreviewColumns, previewRows)
	}
	return nil
}
