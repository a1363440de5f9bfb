// Package storage persists workflow runs, captured signals and audit
// events in a sqlite database. Writes go through a WAL connection,
// reads through a separate read-only connection; both are opened
// lazily and at most once.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/canstralian/rf-test-harness/internal/audit"
	"github.com/canstralian/rf-test-harness/internal/radio"
)

// Store handles database operations for the harness.
type Store struct {
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

// New creates a store for the database at dbPath. The schema is
// initialized on first write.
func New(dbPath string) *Store {
	return &Store{dbPath: dbPath}
}

func (s *Store) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL"))
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}

		if _, err = db.Exec(initSchemaSQL); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.writeDB = db
	})

	return s.writeDB, s.writeDBErr
}

func (s *Store) getReadDB() (*sql.DB, error) {
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

// CreateRun records a new workflow run and returns its row ID. Config
// may be a string, []byte, or any JSON-serializable value.
func (s *Store) CreateRun(ctx context.Context, band, deviceID string, config any) (runID int64, err error) {
	var configData sql.NullString
	if config != nil {
		switch v := config.(type) {
		case string:
			configData = sql.NullString{String: v, Valid: true}
		case []byte:
			configData = sql.NullString{String: string(v), Valid: true}
		default:
			var p []byte
			if p, err = json.Marshal(config); err != nil {
				return 0, fmt.Errorf("marshaling config: %w", err)
			}
			configData = sql.NullString{String: string(p), Valid: true}
		}
	}

	db, err := s.getWriteDB()
	if err != nil {
		return 0, fmt.Errorf("getting write connection: %w", err)
	}

	stmt, err := db.PrepareContext(ctx, insertRunSQL)
	if err != nil {
		return 0, fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	result, err := stmt.ExecContext(ctx, uuid.NewString(), band, deviceID, configData)
	if err != nil {
		return 0, fmt.Errorf("inserting run: %w", err)
	}

	if runID, err = result.LastInsertId(); err != nil {
		return 0, fmt.Errorf("getting run ID: %w", err)
	}
	return runID, nil
}

// Run retrieves a run by its ID.
func (s *Store) Run(ctx context.Context, id int64) (run *Run, err error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}

	var row runRow
	if err = db.QueryRowContext(ctx, selectRunSQL, id).
		Scan(&row.ID, &row.UUID, &row.StartedAt, &row.Band, &row.DeviceID, &row.Config); err != nil {
		return nil, fmt.Errorf("scanning run: %w", err)
	}
	return runFromRow(&row), nil
}

// Runs returns all recorded runs, oldest first.
func (s *Store) Runs(ctx context.Context) (runs []*Run, err error) {
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
		var row runRow
		if err = rows.Scan(&row.ID, &row.UUID, &row.StartedAt, &row.Band, &row.DeviceID, &row.Config); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		runs = append(runs, runFromRow(&row))
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("reading runs: %w", err)
	}
	return runs, nil
}

// BatchStoreSignals persists the captures in a single transaction.
func (s *Store) BatchStoreSignals(ctx context.Context, runID int64, signals []*radio.Signal) (err error) {
	if len(signals) == 0 {
		return nil
	}

	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	stmt, err := tx.PrepareContext(ctx, insertSignalSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	for _, sig := range signals {
		var pulses sql.NullString
		if len(sig.Pulses) > 0 {
			p, mErr := json.Marshal(sig.Pulses)
			if mErr != nil {
				return fmt.Errorf("marshaling pulses: %w", mErr)
			}
			pulses = sql.NullString{String: string(p), Valid: true}
		}

		var rssi sql.NullInt64
		if sig.RSSI != 0 {
			rssi = sql.NullInt64{Int64: int64(sig.RSSI), Valid: true}
		}

		if _, err = stmt.ExecContext(ctx,
			runID,
			int64(sig.CaptureTimeUs),
			sig.Band.String(),
			sig.FrequencyMHz,
			rssi,
			sig.Data[:sig.DataLen],
			int64(sig.DataLen),
			pulses,
			sql.NullString{String: sig.Protocol, Valid: sig.Protocol != ""},
			sql.NullString{String: sig.DeviceType, Valid: sig.DeviceType != ""},
			boolToInt(sig.Valid),
		); err != nil {
			return fmt.Errorf("inserting signal: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Signals returns the persisted captures of a run in capture order.
func (s *Store) Signals(ctx context.Context, runID int64) (signals []*StoredSignal, err error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}

	rows, err := db.QueryContext(ctx, selectSignalsSQL, runID)
	if err != nil {
		return nil, fmt.Errorf("querying signals: %w", err)
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var row signalRow
		if err = rows.Scan(&row.ID, &row.RunID, &row.CaptureUs, &row.Band, &row.FrequencyMHz,
			&row.RSSI, &row.Data, &row.DataLen, &row.Pulses, &row.Protocol, &row.DeviceType,
			&row.Valid); err != nil {
			return nil, fmt.Errorf("scanning signal: %w", err)
		}

		sig, cErr := signalFromRow(&row)
		if cErr != nil {
			return nil, cErr
		}
		signals = append(signals, sig)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("reading signals: %w", err)
	}
	return signals, nil
}

// StoreAuditEvent persists one audit event of a run.
func (s *Store) StoreAuditEvent(ctx context.Context, runID int64, e *audit.Event) (err error) {
	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	if _, err = db.ExecContext(ctx, insertAuditEventSQL,
		runID,
		int64(e.Seq),
		int64(e.TimestampMs),
		int64(e.TimestampUs),
		e.Type.String(),
		e.State,
		e.PrevState,
		e.Event,
		e.Reason,
		e.Data,
	); err != nil {
		return fmt.Errorf("inserting audit event: %w", err)
	}
	return nil
}

// AuditEvents returns the persisted audit stream of a run in sequence
// order.
func (s *Store) AuditEvents(ctx context.Context, runID int64) (events []audit.Event, err error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}

	rows, err := db.QueryContext(ctx, selectAuditEventsSQL, runID)
	if err != nil {
		return nil, fmt.Errorf("querying audit events: %w", err)
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var e audit.Event
		var typeName string
		if err = rows.Scan(&e.Seq, &e.TimestampMs, &e.TimestampUs, &typeName,
			&e.State, &e.PrevState, &e.Event, &e.Reason, &e.Data); err != nil {
			return nil, fmt.Errorf("scanning audit event: %w", err)
		}
		if e.Type, err = audit.ParseEventType(typeName); err != nil {
			return nil, fmt.Errorf("decoding event type: %w", err)
		}
		events = append(events, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("reading audit events: %w", err)
	}
	return events, nil
}

// Close closes both database connections. It is safe to call multiple
// times.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		var errs []error

		if s.writeDB != nil {
			if err := s.writeDB.Close(); err != nil {
				errs = append(errs, err)
			}
			s.writeDB = nil
		}

		if s.readDB != nil {
			if err := s.readDB.Close(); err != nil {
				errs = append(errs, err)
			}
			s.readDB = nil
		}

		s.closeErr = errors.Join(errs...)
	})

	return s.closeErr
}

func runFromRow(row *runRow) *Run {
	r := Run{
		ID:        row.ID,
		UUID:      row.UUID,
		StartedAt: row.StartedAt,
		Band:      row.Band,
		DeviceID:  row.DeviceID,
	}
	if row.Config.Valid {
		r.Config = &row.Config.String
	}
	return &r
}

func signalFromRow(row *signalRow) (*StoredSignal, error) {
	sig := StoredSignal{
		ID:            row.ID,
		RunID:         row.RunID,
		CaptureTimeUs: uint32(row.CaptureUs),
		Band:          row.Band,
		FrequencyMHz:  row.FrequencyMHz,
		Data:          row.Data,
		Protocol:      row.Protocol.String,
		DeviceType:    row.DeviceType.String,
		Valid:         row.Valid != 0,
	}
	if row.RSSI.Valid {
		sig.RSSI = int8(row.RSSI.Int64)
	}
	if row.Pulses.Valid {
		if err := json.Unmarshal([]byte(row.Pulses.String), &sig.Pulses); err != nil {
			return nil, fmt.Errorf("decoding pulses: %w", err)
		}
	}
	return &sig, nil
}

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if cErr := rb.Rollback(); cErr != nil && !errors.Is(cErr, sql.ErrTxDone) && *err == nil {
		*err = cErr
	}
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
