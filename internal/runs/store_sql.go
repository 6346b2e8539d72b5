package runs

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/mind-engage/mindengage-cohorts/internal/apperr"
)

type SQLStore struct {
	db     *sql.DB
	driver string // "sqlite" or "postgres"
}

func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, driver: driver}
}

func (s *SQLStore) Put(ctx context.Context, r Run) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO analysis_runs
		(id,source_name,fingerprint,k,seed,students,clustered,result_json,created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (id) DO UPDATE SET result_json=EXCLUDED.result_json, clustered=EXCLUDED.clustered`,
		r.ID, r.SourceName, r.Fingerprint, r.K, r.Seed, r.Students, r.Clustered, string(r.Result), r.CreatedAt.UnixMilli())
	return err
}

func (s *SQLStore) Get(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id,source_name,fingerprint,k,seed,students,clustered,result_json,created_at
		FROM analysis_runs WHERE id=$1`, id)
	var (
		r       Run
		result  string
		created int64
	)
	if err := row.Scan(&r.ID, &r.SourceName, &r.Fingerprint, &r.K, &r.Seed, &r.Students, &r.Clustered, &result, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, apperr.NotFound("runs.Get", id, err)
		}
		return Run{}, err
	}
	r.Result = []byte(result)
	r.CreatedAt = time.UnixMilli(created).UTC()
	return r, nil
}

func (s *SQLStore) List(ctx context.Context, opts ListOpts) ([]Run, error) {
	limit, offset := opts.window()
	rows, err := s.db.QueryContext(ctx, `SELECT id,source_name,fingerprint,k,seed,students,clustered,created_at
		FROM analysis_runs
		WHERE ($1 = '' OR fingerprint = $1)
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3`, opts.Fingerprint, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Run{}
	for rows.Next() {
		var (
			r       Run
			created int64
		)
		if err := rows.Scan(&r.ID, &r.SourceName, &r.Fingerprint, &r.K, &r.Seed, &r.Students, &r.Clustered, &created); err != nil {
			return nil, err
		}
		r.CreatedAt = time.UnixMilli(created).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}
