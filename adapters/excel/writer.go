package excel

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"gopower/domain/power"
	"gopower/domain/run"
	"gopower/domain/trial"
)

// Writer exports summaries as plain xlsx tables for the external reporting
// layer. Nothing in the engine depends on this rendering; it consumes the
// summary records as-is.
type Writer struct{}

// NewWriter creates an xlsx writer.
func NewWriter() *Writer {
	return &Writer{}
}

// WritePower writes a fixed-sample summary workbook to path.
func (w *Writer) WritePower(manifest run.Manifest, summary power.PowerSummary, path string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := w.writeManifestSheet(f, manifest); err != nil {
		return err
	}
	if err := w.writePowerSheet(f, "Power", summary); err != nil {
		return err
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("saving workbook: %w", err)
	}
	return nil
}

// WriteSequential writes a sequential summary workbook to path: manifest,
// overall power, the applied schedule, and the stop distribution.
func (w *Writer) WriteSequential(manifest run.Manifest, schedule trial.LookSchedule, summary power.SequentialSummary, path string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := w.writeManifestSheet(f, manifest); err != nil {
		return err
	}
	if err := w.writePowerSheet(f, "Power", summary.Power); err != nil {
		return err
	}
	if err := w.writeScheduleSheet(f, schedule); err != nil {
		return err
	}
	if err := w.writeStopsSheet(f, summary.Stops); err != nil {
		return err
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("saving workbook: %w", err)
	}
	return nil
}

func (w *Writer) writeManifestSheet(f *excelize.File, manifest run.Manifest) error {
	const sheet = "Run"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}
	rows := [][]interface{}{
		{"run_id", manifest.RunID.String()},
		{"arms", manifest.Design.Arms},
		{"props", fmt.Sprintf("%v", manifest.Design.Props)},
		{"sample_size", manifest.Design.SampleSize},
		{"repetitions", manifest.Repetitions},
		{"alpha", manifest.Alpha},
		{"conf_level", manifest.ConfLevel},
		{"base_seed", manifest.BaseSeed},
		{"code_version", manifest.CodeVersion},
		{"fingerprint", manifest.Fingerprint},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) writePowerSheet(f *excelize.File, sheet string, summary power.PowerSummary) error {
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}
	rows := [][]interface{}{
		{"power", "ci_lower", "ci_upper", "conf_level", "significant", "repetitions", "alpha", "fit_failures", "fit_failure_rate"},
		{summary.Power, summary.CI.Lower, summary.CI.Upper, summary.CI.Level, summary.Significant, summary.Repetitions, summary.Alpha, summary.FitFailures, summary.FitFailureRate},
	}
	return w.writeRows(f, sheet, rows)
}

func (w *Writer) writeScheduleSheet(f *excelize.File, schedule trial.LookSchedule) error {
	const sheet = "Schedule"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}
	rows := [][]interface{}{{"look", "cumulative_n", "threshold"}}
	for j, look := range schedule {
		rows = append(rows, []interface{}{j + 1, look.CumulativeN, look.Threshold})
	}
	return w.writeRows(f, sheet, rows)
}

func (w *Writer) writeStopsSheet(f *excelize.File, stops power.StopDistribution) error {
	const sheet = "Stops"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}
	rows := [][]interface{}{{"look", "state", "trials", "proportion", "ci_lower", "ci_upper", "mean_estimate", "sd_estimate"}}
	for _, g := range stops.Groups {
		rows = append(rows, []interface{}{g.Look, g.State.String(), g.Trials, g.Proportion, g.CI.Lower, g.CI.Upper, g.MeanEstimate, g.SDEstimate})
	}
	return w.writeRows(f, sheet, rows)
}

func (w *Writer) writeRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return nil
}
