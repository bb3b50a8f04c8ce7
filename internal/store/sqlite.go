package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	_ "modernc.org/sqlite"

	"jobsync-engine/internal/domain"
	"jobsync-engine/internal/logger"
)

// linkChunk bounds the IN list of FindByLinks below SQLite's variable limit.
const linkChunk = 500

var _ JobStore = (*SQLite)(nil)

// SQLite is the default catalog backend.
type SQLite struct {
	Pool *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and migrates it.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	// modernc sqlite uses DSN like: file:foo.db?_pragma=busy_timeout(5000)
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)

	pool, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}

	// sqlite wants a single writer
	pool.SetMaxOpenConns(1)
	pool.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := pool.PingContext(pingCtx); err != nil {
		_ = pool.Close()
		return nil, errors.Wrapf(err, "ping sqlite %s", path)
	}

	if err := MigrateSQLite(ctx, pool); err != nil {
		_ = pool.Close()
		return nil, err
	}
	return &SQLite{Pool: pool}, nil
}

func (s *SQLite) Close() error {
	if s == nil || s.Pool == nil {
		return nil
	}
	return s.Pool.Close()
}

// Checkpoint folds the WAL back into the main database file.
func (s *SQLite) Checkpoint(ctx context.Context) error {
	_, err := s.Pool.ExecContext(ctx, `PRAGMA wal_checkpoint(FULL);`)
	return errors.Wrap(err, "wal checkpoint")
}

// schemaVersion is the user_version MigrateSQLite leaves behind.
const schemaVersion = 2

// MigrateSQLite brings the schema up to date, tracked with PRAGMA user_version.
func MigrateSQLite(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin migration")
	}
	defer func() { _ = tx.Rollback() }()

	var v int
	if err := tx.QueryRowContext(ctx, `PRAGMA user_version;`).Scan(&v); err != nil {
		return errors.Wrap(err, "read user_version")
	}
	if v >= schemaVersion {
		return tx.Commit()
	}

	if v < 1 {
		if err := createJobsTable(ctx, tx); err != nil {
			return err
		}
	}
	if v < 2 {
		if err := rewriteTimestamps(ctx, tx); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`PRAGMA user_version = %d;`, schemaVersion)); err != nil {
		return errors.Wrap(err, "set user_version")
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit migration")
	}

	logger.ComponentLogger("store.sqlite").Infow("schema migrated", "from", v, "version", schemaVersion)
	return nil
}

func createJobsTable(ctx context.Context, tx *sql.Tx) error {
	stmts := []string{`
CREATE TABLE IF NOT EXISTS jobs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  title TEXT NOT NULL,
  company TEXT NOT NULL,
  link TEXT NOT NULL,
  category TEXT NOT NULL DEFAULT '',
  identity_key TEXT NOT NULL,
  source_board TEXT NOT NULL,
  source_url TEXT NOT NULL DEFAULT '',
  source_external_id TEXT NOT NULL DEFAULT '',
  terminated INTEGER NOT NULL DEFAULT 0,
  terminated_at TEXT,
  termination_reason TEXT,
  last_checked_at TEXT NOT NULL,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);`,
		// link is the matching key but is deliberately not UNIQUE: the
		// engine keeps it unique, the schema does not enforce it
		`CREATE INDEX IF NOT EXISTS idx_jobs_link ON jobs(link);`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_identity_key ON jobs(identity_key);`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_source_board ON jobs(source_board, terminated);`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "migrate: %s", firstLine(stmt))
		}
	}
	return nil
}

type storedTimes struct {
	id                            int64
	terminatedAt                  sql.NullString
	lastChecked, created, updated string
}

// rewriteTimestamps converts version 1 timestamps, written without trailing
// fractional zeros, to the fixed-width layout so they sort as text.
func rewriteTimestamps(ctx context.Context, tx *sql.Tx) error {
	rows, err := tx.QueryContext(ctx,
		`SELECT id, terminated_at, last_checked_at, created_at, updated_at FROM jobs;`)
	if err != nil {
		return errors.Wrap(err, "migrate: read timestamps")
	}
	var all []storedTimes
	for rows.Next() {
		var st storedTimes
		if err := rows.Scan(&st.id, &st.terminatedAt, &st.lastChecked, &st.created, &st.updated); err != nil {
			_ = rows.Close()
			return errors.Wrap(err, "migrate: scan timestamps")
		}
		all = append(all, st)
	}
	if err := rows.Close(); err != nil {
		return errors.Wrap(err, "migrate: read timestamps")
	}

	refmt := func(s string) (string, error) {
		t, err := parseTime(s)
		if err != nil {
			return "", err
		}
		return formatTime(t), nil
	}
	for _, st := range all {
		var vals [3]string
		for i, raw := range []string{st.lastChecked, st.created, st.updated} {
			if vals[i], err = refmt(raw); err != nil {
				return errors.Wrapf(err, "migrate job %d", st.id)
			}
		}
		var terminatedAt any
		if st.terminatedAt.Valid {
			if terminatedAt, err = refmt(st.terminatedAt.String); err != nil {
				return errors.Wrapf(err, "migrate job %d", st.id)
			}
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE jobs SET terminated_at = ?, last_checked_at = ?, created_at = ?, updated_at = ? WHERE id = ?;`,
			terminatedAt, vals[0], vals[1], vals[2], st.id); err != nil {
			return errors.Wrapf(err, "migrate job %d", st.id)
		}
	}
	return nil
}

const sqliteColumns = `id, title, company, link, category, source_board, source_url,
  source_external_id, terminated, terminated_at, termination_reason,
  last_checked_at, created_at, updated_at`

func (s *SQLite) FindByLinks(ctx context.Context, links []string) ([]domain.JobRecord, error) {
	var out []domain.JobRecord
	for start := 0; start < len(links); start += linkChunk {
		end := min(start+linkChunk, len(links))
		chunk := links[start:end]

		args := make([]any, len(chunk))
		for i, l := range chunk {
			args[i] = l
		}
		q := `SELECT ` + sqliteColumns + ` FROM jobs WHERE link IN (` + placeholders(len(chunk)) + `) ORDER BY id;`
		rows, err := s.query(ctx, q, args...)
		if err != nil {
			return nil, errors.Wrap(err, "find jobs by link")
		}
		out = append(out, rows...)
	}
	sortRows(out)
	return out, nil
}

func (s *SQLite) FindByCompanyTitle(ctx context.Context, company, title string) ([]domain.JobRecord, error) {
	rows, err := s.query(ctx,
		`SELECT `+sqliteColumns+` FROM jobs WHERE identity_key = ? ORDER BY id;`,
		domain.IdentityKey(company, title))
	return rows, errors.Wrap(err, "find jobs by company/title")
}

func (s *SQLite) FindBySource(ctx context.Context, source string) ([]domain.JobRecord, error) {
	rows, err := s.query(ctx,
		`SELECT `+sqliteColumns+` FROM jobs WHERE source_board = ? ORDER BY id;`,
		source)
	return rows, errors.Wrap(err, "find jobs by source")
}

func (s *SQLite) Insert(ctx context.Context, rec domain.JobRecord) (domain.JobRecord, error) {
	if err := checkWritable(rec); err != nil {
		return domain.JobRecord{}, err
	}
	res, err := s.Pool.ExecContext(ctx, `
INSERT INTO jobs(title, company, link, category, identity_key, source_board, source_url,
  source_external_id, terminated, terminated_at, termination_reason,
  last_checked_at, created_at, updated_at)
VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?);`,
		rec.Title, rec.Company, rec.Link, rec.Category, rec.IdentityKey(),
		rec.SourceBoard, rec.SourceURL, rec.SourceExternalID,
		boolInt(rec.Terminated), nullTime(rec.TerminatedAt), nullString(rec.TerminationReason),
		formatTime(rec.LastCheckedAt), formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt),
	)
	if err != nil {
		return domain.JobRecord{}, errors.Wrapf(err, "insert job %s", rec.Link)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.JobRecord{}, errors.Wrap(err, "insert job: last id")
	}
	rec.ID = id
	return rec, nil
}

func (s *SQLite) Update(ctx context.Context, rec domain.JobRecord) error {
	if err := checkWritable(rec); err != nil {
		return err
	}
	res, err := s.Pool.ExecContext(ctx, `
UPDATE jobs SET
  title = ?, company = ?, link = ?, category = ?, identity_key = ?,
  source_board = ?, source_url = ?, source_external_id = ?,
  terminated = ?, terminated_at = ?, termination_reason = ?,
  last_checked_at = ?, updated_at = ?
WHERE id = ?;`,
		rec.Title, rec.Company, rec.Link, rec.Category, rec.IdentityKey(),
		rec.SourceBoard, rec.SourceURL, rec.SourceExternalID,
		boolInt(rec.Terminated), nullTime(rec.TerminatedAt), nullString(rec.TerminationReason),
		formatTime(rec.LastCheckedAt), formatTime(rec.UpdatedAt),
		rec.ID,
	)
	if err != nil {
		return errors.Wrapf(err, "update job %d", rec.ID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrapf(err, "update job %d: rows affected", rec.ID)
	}
	if n == 0 {
		return errors.Wrapf(ErrNotFound, "id %d", rec.ID)
	}
	return nil
}

// List returns catalog rows for the jobs listing.
func (s *SQLite) List(ctx context.Context, opts ListOptions) ([]domain.JobRecord, error) {
	opts = opts.normalized()

	var where []string
	var args []any
	if opts.Source != "" {
		where = append(where, "source_board = ?")
		args = append(args, opts.Source)
	}
	switch opts.State {
	case StateActive:
		where = append(where, "terminated = 0")
	case StateTerminated:
		where = append(where, "terminated = 1")
	}
	clause := ""
	if len(where) > 0 {
		clause = "WHERE " + strings.Join(where, " AND ")
	}

	// sort column and order come from a closed set, never from user input
	q := fmt.Sprintf(`SELECT %s FROM jobs %s ORDER BY %s %s, id ASC LIMIT ?;`,
		sqliteColumns, clause, opts.sortColumn(), opts.Order)
	args = append(args, opts.Limit)

	rows, err := s.query(ctx, q, args...)
	return rows, errors.Wrap(err, "list jobs")
}

func (s *SQLite) query(ctx context.Context, q string, args ...any) ([]domain.JobRecord, error) {
	rows, err := s.Pool.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.JobRecord
	for rows.Next() {
		rec, err := scanSQLite(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanSQLite(rows *sql.Rows) (domain.JobRecord, error) {
	var (
		rec                           domain.JobRecord
		terminated                    int
		terminatedAt, reason          sql.NullString
		lastChecked, created, updated string
	)
	if err := rows.Scan(
		&rec.ID, &rec.Title, &rec.Company, &rec.Link, &rec.Category,
		&rec.SourceBoard, &rec.SourceURL, &rec.SourceExternalID,
		&terminated, &terminatedAt, &reason,
		&lastChecked, &created, &updated,
	); err != nil {
		return rec, errors.Wrap(err, "scan job")
	}

	rec.Terminated = terminated != 0
	if reason.Valid {
		r := reason.String
		rec.TerminationReason = &r
	}
	var err error
	if terminatedAt.Valid {
		at, perr := parseTime(terminatedAt.String)
		if perr != nil {
			return rec, perr
		}
		rec.TerminatedAt = &at
	}
	if rec.LastCheckedAt, err = parseTime(lastChecked); err != nil {
		return rec, err
	}
	if rec.CreatedAt, err = parseTime(created); err != nil {
		return rec, err
	}
	if rec.UpdatedAt, err = parseTime(updated); err != nil {
		return rec, err
	}
	return rec, nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// storedTimeLayout is fixed width so that text order is time order.
const storedTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(storedTimeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "parse stored time %q", s)
	}
	return t.UTC(), nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
