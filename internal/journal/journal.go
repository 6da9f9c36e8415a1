// Package journal persists published attitude results to SQLite so a run
// can be inspected after the fact.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/signalsfoundry/device-attitude/core"
	"github.com/signalsfoundry/device-attitude/internal/logging"
	"github.com/signalsfoundry/device-attitude/internal/sink"
)

const schema = `
	CREATE TABLE IF NOT EXISTS attitude_results (
		sequence          BIGINT,
		session_id        TEXT,
		frame             TEXT,
		kind              TEXT,
		qx                DOUBLE,
		qy                DOUBLE,
		qz                DOUBLE,
		qw                DOUBLE,
		north_angle_deg   DOUBLE,
		adjustment_deg    DOUBLE,
		declination_deg   DOUBLE,
		message           TEXT,
		computed_at_ns    BIGINT,
		timestamp         TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS attitude_results_session ON attitude_results (session_id, sequence);
`

// Entry is one journaled result. X, Y, Z, W hold the quaternion for a full
// attitude and the direction with W = 0 for a pointing result.
type Entry struct {
	Sequence       uint64
	SessionID      string
	Frame          string
	Kind           string
	X, Y, Z, W     float64
	NorthAngleDeg  float64
	AdjustmentDeg  float64
	DeclinationDeg float64
	Message        string
	ComputedAt     time.Time
}

// ErrorCounter is told about every failed write.
type ErrorCounter interface {
	IncJournalErrors()
}

// Journal is a SQLite-backed result log.
type Journal struct {
	db *sql.DB
}

// Open opens (creating if needed) the journal at path.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// one writer; sqlite serialises anyway and :memory: is per connection
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create journal schema: %w", err)
	}
	return &Journal{db: db}, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record writes one published result.
func (j *Journal) Record(ctx context.Context, rec sink.Record) error {
	q := rec.Result.LegacyQuaternion()
	kind := ""
	if rec.Result.Attitude != nil {
		kind = rec.Result.Attitude.Kind()
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO attitude_results (
			sequence, session_id, frame, kind, qx, qy, qz, qw,
			north_angle_deg, adjustment_deg, declination_deg, message, computed_at_ns
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		int64(rec.Sequence), rec.SessionID, rec.Result.Frame.String(), kind,
		q[0], q[1], q[2], q[3],
		rec.Result.NorthAngleDeg, rec.Result.AdjustmentDeg, rec.Result.DeclinationDeg,
		rec.Result.Message, rec.Result.ComputedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to record result %d: %w", rec.Sequence, err)
	}
	return nil
}

// Consume records everything received on records until the channel closes
// or ctx is done. Write failures are logged and counted, never fatal.
func (j *Journal) Consume(ctx context.Context, records <-chan sink.Record, log logging.Logger, errs ErrorCounter) {
	if log == nil {
		log = logging.Noop()
	}
	for {
		select {
		case <-ctx.Done():
			return
		case rec, ok := <-records:
			if !ok {
				return
			}
			if err := j.Record(ctx, rec); err != nil {
				log.Warn(ctx, "journal write failed",
					logging.Int("sequence", int(rec.Sequence)),
					logging.Err(err),
				)
				if errs != nil {
					errs.IncJournalErrors()
				}
			}
		}
	}
}

// Recent returns up to limit entries, newest first. An empty sessionID
// matches every session.
func (j *Journal) Recent(ctx context.Context, sessionID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT sequence, session_id, frame, kind, qx, qy, qz, qw,
		       north_angle_deg, adjustment_deg, declination_deg, message, computed_at_ns
		FROM attitude_results
		WHERE ? = '' OR session_id = ?
		ORDER BY sequence DESC
		LIMIT ?`, sessionID, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e        Entry
			sequence int64
			nanos    int64
		)
		if err := rows.Scan(&sequence, &e.SessionID, &e.Frame, &e.Kind,
			&e.X, &e.Y, &e.Z, &e.W,
			&e.NorthAngleDeg, &e.AdjustmentDeg, &e.DeclinationDeg, &e.Message, &nanos); err != nil {
			return nil, err
		}
		e.Sequence = uint64(sequence)
		e.ComputedAt = time.Unix(0, nanos).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// Count returns the number of journaled results.
func (j *Journal) Count(ctx context.Context) (int, error) {
	var n int
	err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM attitude_results`).Scan(&n)
	return n, err
}

// Attitude rebuilds the core attitude stored in e.
func (e Entry) Attitude() core.Attitude {
	if e.Kind == (core.PointingDirection{}).Kind() {
		return core.PointingDirection{Direction: core.Vec3{X: e.X, Y: e.Y, Z: e.Z}}
	}
	return core.FullAttitude{Q: core.Quaternion{X: e.X, Y: e.Y, Z: e.Z, W: e.W}}
}
