package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"ble-bearing.klederson.com/internal/calibration"
	"ble-bearing.klederson.com/internal/scanner"
)

var (
	averagedHeader = []string{"timestamp", "distance", "angle", "North", "East", "South", "West"}
	rawHeader      = []string{"timestamp", "distance", "angle", "direction", "raw_line"}
)

// CSVSink writes a sweep as two CSV files: averaged RSSI per pose and the raw
// lines behind them.
type CSVSink struct {
	avgPath, rawPath string
	avgFile, rawFile *os.File
	avg, raw         *csv.Writer
}

// NewCSVSink creates <dir>/<key>_run_<stamp>.csv and its _raw.csv twin.
func NewCSVSink(dir string, run Run) (*CSVSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	base := filepath.Join(dir, fmt.Sprintf("%s_run_%s", run.Distance.Key, run.Stamp()))
	s := &CSVSink{avgPath: base + ".csv", rawPath: base + "_raw.csv"}

	var err error
	if s.avgFile, err = os.Create(s.avgPath); err != nil {
		return nil, fmt.Errorf("creating averaged file: %w", err)
	}
	if s.rawFile, err = os.Create(s.rawPath); err != nil {
		_ = s.avgFile.Close()
		return nil, fmt.Errorf("creating raw file: %w", err)
	}
	s.avg = csv.NewWriter(s.avgFile)
	s.raw = csv.NewWriter(s.rawFile)

	if err := s.avg.Write(averagedHeader); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("writing averaged header: %w", err)
	}
	if err := s.raw.Write(rawHeader); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("writing raw header: %w", err)
	}
	return s, nil
}

// Paths returns the averaged and raw file paths.
func (s *CSVSink) Paths() (averaged, raw string) {
	return s.avgPath, s.rawPath
}

// WritePose appends the pose's raw lines and averaged row, then flushes.
func (s *CSVSink) WritePose(_ context.Context, p calibration.Pose) error {
	angle := strconv.Itoa(p.Angle)

	for _, r := range p.Raw {
		row := []string{r.Time.Format(timestampLayout), p.Distance.Label, angle, r.Direction.String(), r.Line}
		if err := s.raw.Write(row); err != nil {
			return fmt.Errorf("writing raw row: %w", err)
		}
	}

	row := []string{p.Finished.Format(timestampLayout), p.Distance.Label, angle}
	for _, d := range scanner.Directions {
		row = append(row, strconv.FormatFloat(p.Mean[d], 'f', -1, 64))
	}
	if err := s.avg.Write(row); err != nil {
		return fmt.Errorf("writing averaged row: %w", err)
	}

	s.raw.Flush()
	s.avg.Flush()
	return errors.Join(s.raw.Error(), s.avg.Error())
}

// Close flushes and closes both files.
func (s *CSVSink) Close() error {
	var errs []error
	if s.avg != nil {
		s.avg.Flush()
		errs = append(errs, s.avg.Error())
	}
	if s.raw != nil {
		s.raw.Flush()
		errs = append(errs, s.raw.Error())
	}
	errs = append(errs, s.avgFile.Close(), s.rawFile.Close())
	return errors.Join(errs...)
}
