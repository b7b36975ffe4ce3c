package dataset

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"ble-bearing.klederson.com/internal/calibration"
	"ble-bearing.klederson.com/internal/scanner"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// rawLineBatch bounds the rows per multi-row insert; 4 variables per row
// stays far below the SQLite variable limit.
const rawLineBatch = 500

// SqliteStore keeps calibration runs in a SQLite database.
type SqliteStore struct {
	dbPath string

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error
}

// NewSqliteStore creates a store backed by the database file at dbPath. The
// file and schema are created on first write.
func NewSqliteStore(dbPath string) *SqliteStore {
	return &SqliteStore{dbPath: dbPath}
}

func (s *SqliteStore) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on"))
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}
		db.SetMaxOpenConns(1)

		if _, err = db.Exec(initSchemaSQL); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.writeDB = db
	})

	return s.writeDB, s.writeDBErr
}

func (s *SqliteStore) getReadDB() (*sql.DB, error) {
	s.readDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "mode=ro"))
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		s.readDB = db
	})

	return s.readDB, s.readDBErr
}

// Close closes both connections.
func (s *SqliteStore) Close() error {
	s.closeOnce.Do(func() {
		if s.writeDB != nil {
			s.closeErr = s.writeDB.Close()
		}
		if s.readDB != nil {
			if err := s.readDB.Close(); err != nil && s.closeErr == nil {
				s.closeErr = err
			}
		}
	})
	return s.closeErr
}

// Begin registers a run and returns a sink that records poses under it.
func (s *SqliteStore) Begin(run Run) (*SqliteSink, error) {
	if err := s.CreateRun(context.Background(), run); err != nil {
		return nil, err
	}
	return &SqliteSink{store: s, run: run.ID}, nil
}

// CreateRun inserts a run row.
func (s *SqliteStore) CreateRun(ctx context.Context, run Run) (err error) {
	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	if _, err = db.ExecContext(ctx, insertRunSQL, run.ID.String(), run.Started.UTC(), run.Distance.Key, run.Distance.Label); err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}
	return nil
}

// RecordSync stores the reboot sync outcome of a run.
func (s *SqliteStore) RecordSync(ctx context.Context, runID uuid.UUID, r scanner.SyncResult) error {
	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	missing := make([]string, 0, len(r.Missing))
	for _, d := range r.Missing {
		missing = append(missing, d.String())
	}
	warnings, err := json.Marshal(r.Warnings)
	if err != nil {
		return fmt.Errorf("marshaling warnings: %w", err)
	}

	if _, err = db.ExecContext(ctx, updateRunSyncSQL, r.Skew.Milliseconds(), strings.Join(missing, ","), string(warnings), runID.String()); err != nil {
		return fmt.Errorf("updating run sync: %w", err)
	}
	return nil
}

// StorePose inserts a pose and its raw lines in one transaction.
func (s *SqliteStore) StorePose(ctx context.Context, runID uuid.UUID, p calibration.Pose) (err error) {
	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err != nil {
			rollbackWithError(tx, &err)
		}
	}()

	result, err := tx.ExecContext(ctx, insertPoseSQL,
		runID.String(),
		p.Started.UTC(),
		p.Finished.UTC(),
		p.Angle,
		p.Mean[scanner.North],
		p.Mean[scanner.East],
		p.Mean[scanner.South],
		p.Mean[scanner.West],
		p.Counts[scanner.North],
		p.Counts[scanner.East],
		p.Counts[scanner.South],
		p.Counts[scanner.West],
		p.Bearing,
	)
	if err != nil {
		return fmt.Errorf("inserting pose: %w", err)
	}
	poseID, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting pose ID: %w", err)
	}

	for batch := range slices.Chunk(p.Raw, rawLineBatch) {
		var sb strings.Builder
		sb.WriteString(insertRawLineSQL)
		values := make([]any, 0, len(batch)*4)
		for i, r := range batch {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString("(?, ?, ?, ?)")
			values = append(values, poseID, r.Time.UTC(), r.Direction.String(), r.Line)
		}
		if _, err = tx.ExecContext(ctx, sb.String(), values...); err != nil {
			return fmt.Errorf("inserting raw lines: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing pose: %w", err)
	}
	return nil
}

// RunInfo describes a stored run.
type RunInfo struct {
	ID       uuid.UUID
	Started  time.Time
	Distance calibration.Distance
}

// Runs lists stored runs, oldest first.
func (s *SqliteStore) Runs(ctx context.Context) (runs []RunInfo, err error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}

	rows, err := db.QueryContext(ctx, selectRunsSQL)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var info RunInfo
		var id string
		if err = rows.Scan(&id, &info.Started, &info.Distance.Key, &info.Distance.Label); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		if info.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parsing run id: %w", err)
		}
		runs = append(runs, info)
	}
	return runs, rows.Err()
}

// Poses loads every pose of a run with its raw lines, ordered by angle.
func (s *SqliteStore) Poses(ctx context.Context, runID uuid.UUID) (poses []calibration.Pose, err error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}

	rows, err := db.QueryContext(ctx, selectPosesSQL, runID.String())
	if err != nil {
		return nil, fmt.Errorf("querying poses: %w", err)
	}
	defer closeWithError(rows, &err)

	var ids []int64
	for rows.Next() {
		var (
			id             int64
			p              calibration.Pose
			n, e, so, w    float64
			nc, ec, sc, wc int
		)
		if err = rows.Scan(&id, &p.Started, &p.Finished, &p.Angle, &n, &e, &so, &w, &nc, &ec, &sc, &wc, &p.Bearing, &p.Distance.Key, &p.Distance.Label); err != nil {
			return nil, fmt.Errorf("scanning pose: %w", err)
		}
		p.Mean = map[scanner.Direction]float64{scanner.North: n, scanner.East: e, scanner.South: so, scanner.West: w}
		p.Counts = map[scanner.Direction]int{scanner.North: nc, scanner.East: ec, scanner.South: sc, scanner.West: wc}
		poses = append(poses, p)
		ids = append(ids, id)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating poses: %w", err)
	}

	for i, id := range ids {
		if poses[i].Raw, err = s.rawLines(ctx, db, id); err != nil {
			return nil, err
		}
	}
	return poses, nil
}

func (s *SqliteStore) rawLines(ctx context.Context, db *sql.DB, poseID int64) (lines []calibration.RawLine, err error) {
	rows, err := db.QueryContext(ctx, selectRawLinesSQL, poseID)
	if err != nil {
		return nil, fmt.Errorf("querying raw lines: %w", err)
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var r calibration.RawLine
		var dir string
		if err = rows.Scan(&r.Time, &dir, &r.Line); err != nil {
			return nil, fmt.Errorf("scanning raw line: %w", err)
		}
		r.Direction, _ = scanner.ParseDirection(dir)
		lines = append(lines, r)
	}
	return lines, rows.Err()
}

// SqliteSink records the poses of one run.
type SqliteSink struct {
	store *SqliteStore
	run   uuid.UUID
}

// RunID returns the run the sink writes to.
func (s *SqliteSink) RunID() uuid.UUID { return s.run }

// WritePose implements calibration.Sink.
func (s *SqliteSink) WritePose(ctx context.Context, p calibration.Pose) error {
	return s.store.StorePose(ctx, s.run, p)
}

// RecordSync implements calibration.SyncRecorder.
func (s *SqliteSink) RecordSync(ctx context.Context, r scanner.SyncResult) error {
	return s.store.RecordSync(ctx, s.run, r)
}

// Close closes the underlying store.
func (s *SqliteSink) Close() error {
	return s.store.Close()
}

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if cErr := rb.Rollback(); cErr != nil && *err == nil {
		*err = cErr
	}
}
