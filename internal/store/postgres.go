package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"jobsync-engine/internal/domain"
	"jobsync-engine/internal/logger"
)

var _ JobStore = (*Postgres)(nil)

// Postgres is the catalog backend for shared deployments.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to databaseURL, verifies the connection and ensures
// the schema exists.
func OpenPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "pgxpool.New")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "postgres ping failed")
	}

	p := &Postgres{pool: pool}
	if err := p.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func (p *Postgres) migrate(ctx context.Context) error {
	stmts := []string{`
CREATE TABLE IF NOT EXISTS jobs (
  id BIGSERIAL PRIMARY KEY,
  title TEXT NOT NULL,
  company TEXT NOT NULL,
  link TEXT NOT NULL,
  category TEXT NOT NULL DEFAULT '',
  identity_key TEXT NOT NULL,
  source_board TEXT NOT NULL,
  source_url TEXT NOT NULL DEFAULT '',
  source_external_id TEXT NOT NULL DEFAULT '',
  terminated BOOLEAN NOT NULL DEFAULT FALSE,
  terminated_at TIMESTAMPTZ,
  termination_reason TEXT,
  last_checked_at TIMESTAMPTZ NOT NULL,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_link ON jobs(link)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_identity_key ON jobs(identity_key)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_source_board ON jobs(source_board, terminated)`,
	}
	for _, stmt := range stmts {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return errors.Wrapf(err, "migrate: %s", firstLine(stmt))
		}
	}
	logger.ComponentLogger("store.postgres").Debugw("schema ensured")
	return nil
}

const pgColumns = `id, title, company, link, category, source_board, source_url,
  source_external_id, terminated, terminated_at, termination_reason,
  last_checked_at, created_at, updated_at`

func (p *Postgres) FindByLinks(ctx context.Context, links []string) ([]domain.JobRecord, error) {
	if len(links) == 0 {
		return nil, nil
	}
	rows, err := p.query(ctx, `SELECT `+pgColumns+` FROM jobs WHERE link = ANY($1) ORDER BY id`, links)
	return rows, errors.Wrap(err, "find jobs by link")
}

func (p *Postgres) FindByCompanyTitle(ctx context.Context, company, title string) ([]domain.JobRecord, error) {
	rows, err := p.query(ctx, `SELECT `+pgColumns+` FROM jobs WHERE identity_key = $1 ORDER BY id`,
		domain.IdentityKey(company, title))
	return rows, errors.Wrap(err, "find jobs by company/title")
}

func (p *Postgres) FindBySource(ctx context.Context, source string) ([]domain.JobRecord, error) {
	rows, err := p.query(ctx, `SELECT `+pgColumns+` FROM jobs WHERE source_board = $1 ORDER BY id`, source)
	return rows, errors.Wrap(err, "find jobs by source")
}

func (p *Postgres) Insert(ctx context.Context, rec domain.JobRecord) (domain.JobRecord, error) {
	if err := checkWritable(rec); err != nil {
		return domain.JobRecord{}, err
	}
	err := p.pool.QueryRow(ctx, `
INSERT INTO jobs (title, company, link, category, identity_key, source_board, source_url,
  source_external_id, terminated, terminated_at, termination_reason,
  last_checked_at, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
RETURNING id`,
		rec.Title, rec.Company, rec.Link, rec.Category, rec.IdentityKey(),
		rec.SourceBoard, rec.SourceURL, rec.SourceExternalID,
		rec.Terminated, rec.TerminatedAt, rec.TerminationReason,
		rec.LastCheckedAt, rec.CreatedAt, rec.UpdatedAt,
	).Scan(&rec.ID)
	if err != nil {
		return domain.JobRecord{}, errors.Wrapf(err, "insert job %s", rec.Link)
	}
	return rec, nil
}

func (p *Postgres) Update(ctx context.Context, rec domain.JobRecord) error {
	if err := checkWritable(rec); err != nil {
		return err
	}
	tag, err := p.pool.Exec(ctx, `
UPDATE jobs SET
  title = $1, company = $2, link = $3, category = $4, identity_key = $5,
  source_board = $6, source_url = $7, source_external_id = $8,
  terminated = $9, terminated_at = $10, termination_reason = $11,
  last_checked_at = $12, updated_at = $13
WHERE id = $14`,
		rec.Title, rec.Company, rec.Link, rec.Category, rec.IdentityKey(),
		rec.SourceBoard, rec.SourceURL, rec.SourceExternalID,
		rec.Terminated, rec.TerminatedAt, rec.TerminationReason,
		rec.LastCheckedAt, rec.UpdatedAt,
		rec.ID,
	)
	if err != nil {
		return errors.Wrapf(err, "update job %d", rec.ID)
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(ErrNotFound, "id %d", rec.ID)
	}
	return nil
}

// List returns catalog rows for the jobs listing.
func (p *Postgres) List(ctx context.Context, opts ListOptions) ([]domain.JobRecord, error) {
	opts = opts.normalized()

	var where []string
	var args []any
	if opts.Source != "" {
		args = append(args, opts.Source)
		where = append(where, fmt.Sprintf("source_board = $%d", len(args)))
	}
	switch opts.State {
	case StateActive:
		where = append(where, "NOT terminated")
	case StateTerminated:
		where = append(where, "terminated")
	}
	clause := ""
	if len(where) > 0 {
		clause = "WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, opts.Limit)

	q := fmt.Sprintf(`SELECT %s FROM jobs %s ORDER BY %s %s, id ASC LIMIT $%d`,
		pgColumns, clause, opts.sortColumn(), opts.Order, len(args))
	rows, err := p.query(ctx, q, args...)
	return rows, errors.Wrap(err, "list jobs")
}

func (p *Postgres) query(ctx context.Context, q string, args ...any) ([]domain.JobRecord, error) {
	rows, err := p.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanPostgres)
}

func scanPostgres(row pgx.CollectableRow) (domain.JobRecord, error) {
	var rec domain.JobRecord
	err := row.Scan(
		&rec.ID, &rec.Title, &rec.Company, &rec.Link, &rec.Category,
		&rec.SourceBoard, &rec.SourceURL, &rec.SourceExternalID,
		&rec.Terminated, &rec.TerminatedAt, &rec.TerminationReason,
		&rec.LastCheckedAt, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return rec, errors.Wrap(err, "scan job")
	}
	rec.LastCheckedAt = rec.LastCheckedAt.UTC()
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	if rec.TerminatedAt != nil {
		at := rec.TerminatedAt.UTC()
		rec.TerminatedAt = &at
	}
	return rec, nil
}
