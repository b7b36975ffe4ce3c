// Package dataset persists calibration sweeps.
package dataset

import (
	"fmt"
	"io"
	"time"

	"ble-bearing.klederson.com/internal/calibration"
	"github.com/google/uuid"
)

// Run identifies one calibration sweep.
type Run struct {
	ID       uuid.UUID
	Distance calibration.Distance
	Started  time.Time
}

// NewRun starts a run at the given distance.
func NewRun(d calibration.Distance) Run {
	return Run{ID: uuid.New(), Distance: d, Started: time.Now()}
}

// Stamp is the run's start time in file-name form.
func (r Run) Stamp() string {
	return r.Started.Format("20060102_150405")
}

// Sink is a calibration sink that must be closed when the sweep ends.
type Sink interface {
	calibration.Sink
	io.Closer
}

const timestampLayout = "2006-01-02T15:04:05.000000"

// Open creates the sink for a format: "csv" writes into dir, "sqlite" into
// the database file at dbPath.
func Open(format, dir, dbPath string, run Run) (Sink, error) {
	switch format {
	case "csv":
		sink, err := NewCSVSink(dir, run)
		if err != nil {
			return nil, err
		}
		return sink, nil
	case "sqlite":
		sink, err := NewSqliteStore(dbPath).Begin(run)
		if err != nil {
			return nil, err
		}
		return sink, nil
	default:
		return nil, fmt.Errorf("unsupported dataset format %q", format)
	}
}
