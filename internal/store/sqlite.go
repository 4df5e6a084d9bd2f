package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/Corps-Lab/CRMDIAMANTE-sub000/internal/model"
)

// sqliteTime is fixed-width so ORDER BY created_at sorts chronologically.
const sqliteTime = "2006-01-02T15:04:05.000000Z"

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS simulations (
	id          TEXT PRIMARY KEY,
	state_code  TEXT NOT NULL,
	system      TEXT NOT NULL,
	parameters  TEXT NOT NULL,
	local       TEXT NOT NULL,
	quote       TEXT NOT NULL,
	status      TEXT NOT NULL,
	delta       REAL NOT NULL,
	created_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_simulations_state_code ON simulations(state_code);
CREATE INDEX IF NOT EXISTS idx_simulations_created_at ON simulations(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Accept(ctx context.Context, params model.SimulationParameters, sim model.ReconciledSimulation) (*model.SimulationRecord, error) {
	rec, err := newRecord(params, sim)
	if err != nil {
		return nil, err
	}

	paramsJSON, localJSON, quoteJSON, err := marshalRecord(rec)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal simulation")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO simulations (id, state_code, system, parameters, local, quote, status, delta, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, strings.ToUpper(params.StateCode), string(params.System),
		string(paramsJSON), string(localJSON), string(quoteJSON),
		string(rec.Status), rec.Delta, rec.CreatedAt.Format(sqliteTime),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert simulation")
	}
	return rec, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*model.SimulationRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, parameters, local, quote, status, delta, created_at FROM simulations WHERE id = ?`,
		id,
	)
	rec, err := scanSQLiteRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get simulation %s", id)
	}
	return rec, nil
}

func (s *SQLiteStore) List(ctx context.Context, filter ListFilter) ([]model.SimulationRecord, error) {
	query := `SELECT id, parameters, local, quote, status, delta, created_at FROM simulations`
	var args []any
	if filter.StateCode != "" {
		query += ` WHERE state_code = ?`
		args = append(args, strings.ToUpper(filter.StateCode))
	}
	query += ` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`
	args = append(args, filter.limit(), filter.offset())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list simulations")
	}
	defer rows.Close()

	records := []model.SimulationRecord{}
	for rows.Next() {
		rec, err := scanSQLiteRecord(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan simulation")
		}
		records = append(records, *rec)
	}
	return records, eris.Wrap(rows.Err(), "sqlite: list simulations iterate")
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSQLiteRecord(row scannable) (*model.SimulationRecord, error) {
	var (
		rec                              model.SimulationRecord
		paramsJSON, localJSON, quoteJSON string
		status, createdAt                string
	)
	if err := row.Scan(&rec.ID, &paramsJSON, &localJSON, &quoteJSON, &status, &rec.Delta, &createdAt); err != nil {
		return nil, err
	}
	if err := unmarshalRecord(&rec, []byte(paramsJSON), []byte(localJSON), []byte(quoteJSON)); err != nil {
		return nil, err
	}
	rec.Status = model.ValidationStatus(status)

	ts, err := time.Parse(sqliteTime, createdAt)
	if err != nil {
		return nil, eris.Wrapf(err, "parse created_at %q", createdAt)
	}
	rec.CreatedAt = ts
	return &rec, nil
}

func marshalRecord(rec *model.SimulationRecord) (params, local, quote []byte, err error) {
	if params, err = json.Marshal(rec.Parameters); err != nil {
		return nil, nil, nil, err
	}
	if local, err = json.Marshal(rec.Local); err != nil {
		return nil, nil, nil, err
	}
	if quote, err = json.Marshal(rec.Quote); err != nil {
		return nil, nil, nil, err
	}
	return params, local, quote, nil
}

func unmarshalRecord(rec *model.SimulationRecord, params, local, quote []byte) error {
	if err := json.Unmarshal(params, &rec.Parameters); err != nil {
		return eris.Wrap(err, "unmarshal parameters")
	}
	if err := json.Unmarshal(local, &rec.Local); err != nil {
		return eris.Wrap(err, "unmarshal local result")
	}
	if err := json.Unmarshal(quote, &rec.Quote); err != nil {
		return eris.Wrap(err, "unmarshal quote")
	}
	return nil
}
