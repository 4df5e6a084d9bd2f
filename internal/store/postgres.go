package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/Corps-Lab/CRMDIAMANTE-sub000/internal/db"
	"github.com/Corps-Lab/CRMDIAMANTE-sub000/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

const (
	insertSimulationSQL = `INSERT INTO simulations (id, state_code, system, parameters, local, quote, status, delta, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	getSimulationSQL    = `SELECT id, parameters, local, quote, status, delta, created_at FROM simulations WHERE id = $1`
)

// preparedStatements lists queries to prepare on each new connection.
var preparedStatements = map[string]string{
	"insert_simulation": insertSimulationSQL,
	"get_simulation":    getSimulationSQL,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *db.PoolConfig) (*PostgresStore, error) {
	pool, err := db.Connect(ctx, connString, poolCfg, preparedStatements)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS simulations (
	id          TEXT PRIMARY KEY,
	state_code  TEXT NOT NULL,
	system      TEXT NOT NULL,
	parameters  JSONB NOT NULL,
	local       JSONB NOT NULL,
	quote       JSONB NOT NULL,
	status      TEXT NOT NULL CHECK (status = 'confirmed'),
	delta       NUMERIC(14, 2) NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_simulations_state_code ON simulations(state_code);
CREATE INDEX IF NOT EXISTS idx_simulations_created_at ON simulations(created_at DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) Accept(ctx context.Context, params model.SimulationParameters, sim model.ReconciledSimulation) (*model.SimulationRecord, error) {
	rec, err := newRecord(params, sim)
	if err != nil {
		return nil, err
	}

	paramsJSON, localJSON, quoteJSON, err := marshalRecord(rec)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal simulation")
	}

	_, err = s.pool.Exec(ctx, insertSimulationSQL,
		rec.ID, strings.ToUpper(params.StateCode), string(params.System),
		paramsJSON, localJSON, quoteJSON,
		string(rec.Status), rec.Delta, rec.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert simulation")
	}
	return rec, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*model.SimulationRecord, error) {
	rec, err := scanPostgresRecord(s.pool.QueryRow(ctx, getSimulationSQL, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get simulation %s", id)
	}
	return rec, nil
}

func (s *PostgresStore) List(ctx context.Context, filter ListFilter) ([]model.SimulationRecord, error) {
	query := `SELECT id, parameters, local, quote, status, delta, created_at FROM simulations`
	args := []any{}
	argIdx := 1

	if filter.StateCode != "" {
		query += fmt.Sprintf(` WHERE state_code = $%d`, argIdx)
		args = append(args, strings.ToUpper(filter.StateCode))
		argIdx++
	}

	query += fmt.Sprintf(` ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`, argIdx, argIdx+1)
	args = append(args, filter.limit(), filter.offset())

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list simulations")
	}
	defer rows.Close()

	records := []model.SimulationRecord{}
	for rows.Next() {
		rec, err := scanPostgresRecord(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan simulation")
		}
		records = append(records, *rec)
	}
	return records, eris.Wrap(rows.Err(), "postgres: list simulations iterate")
}

func scanPostgresRecord(row scannable) (*model.SimulationRecord, error) {
	var (
		rec                              model.SimulationRecord
		paramsJSON, localJSON, quoteJSON []byte
		status                           string
	)
	if err := row.Scan(&rec.ID, &paramsJSON, &localJSON, &quoteJSON, &status, &rec.Delta, &rec.CreatedAt); err != nil {
		return nil, err
	}
	if err := unmarshalRecord(&rec, paramsJSON, localJSON, quoteJSON); err != nil {
		return nil, err
	}
	rec.Status = model.ValidationStatus(status)
	rec.CreatedAt = rec.CreatedAt.UTC()
	return &rec, nil
}
