package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"CollectiveLedger/internal/domain"
	"CollectiveLedger/internal/ports"
)

// Dialect selects placeholder style and row-locking for a SQL backend.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

var contributionColumns = []string{
	"id", "researcher_address", "researcher_id", "title", "description", "post_url",
	"created_at", "attestation_id", "status", "tags", "impact_score",
}

var payoutColumns = []string{
	"id", "researcher_address", "researcher_id", "amount", "contribution_ids",
	"tx_hash", "status", "created_at", "chain",
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS contributions (
		id TEXT PRIMARY KEY,
		researcher_address TEXT NOT NULL,
		researcher_id BIGINT NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL,
		post_url TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		attestation_id TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		tags TEXT NOT NULL,
		impact_score INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS payouts (
		id TEXT PRIMARY KEY,
		researcher_address TEXT NOT NULL,
		researcher_id BIGINT NOT NULL,
		amount TEXT NOT NULL,
		contribution_ids TEXT NOT NULL,
		tx_hash TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		created_at TEXT NOT NULL,
		chain TEXT NOT NULL
	)`,
}

// SQLRepository persists contributions and payouts in Postgres or SQLite.
type SQLRepository struct {
	db      *sql.DB
	dialect Dialect
	builder sq.StatementBuilderType
}

var (
	_ ports.ContributionRepository = (*SQLRepository)(nil)
	_ ports.PayoutRepository       = (*SQLRepository)(nil)
)

// OpenSQL opens the database for dialect and applies the schema.
func OpenSQL(ctx context.Context, dialect Dialect, dsn string) (*SQLRepository, error) {
	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}
	repo, err := NewSQLRepository(db, dialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := repo.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// NewSQLRepository wires an existing sql.DB.
func NewSQLRepository(db *sql.DB, dialect Dialect) (*SQLRepository, error) {
	var placeholder sq.PlaceholderFormat
	switch dialect {
	case DialectPostgres:
		placeholder = sq.Dollar
	case DialectSQLite:
		placeholder = sq.Question
		// one connection serializes writers and keeps in-memory databases shared
		db.SetMaxOpenConns(1)
	default:
		return nil, fmt.Errorf("unsupported sql dialect %q", dialect)
	}
	return &SQLRepository{
		db:      db,
		dialect: dialect,
		builder: sq.StatementBuilder.PlaceholderFormat(placeholder),
	}, nil
}

// Migrate creates the tables when missing.
func (r *SQLRepository) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// Close closes the underlying pool.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *SQLRepository) ListContributions(ctx context.Context) ([]domain.Contribution, error) {
	query, args, err := r.builder.Select(contributionColumns...).From("contributions").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query contributions: %w", err)
	}
	defer rows.Close()

	var out []domain.Contribution
	for rows.Next() {
		c, err := scanContribution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

func (r *SQLRepository) GetContribution(ctx context.Context, id string) (domain.Contribution, error) {
	return r.getContribution(ctx, r.db, id, false)
}

func (r *SQLRepository) PutContribution(ctx context.Context, c domain.Contribution) error {
	values, err := contributionValues(c)
	if err != nil {
		return err
	}
	query, args, err := r.builder.Insert("contributions").
		Columns(contributionColumns...).
		Values(values...).
		Suffix(upsertSuffix(contributionColumns)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert contribution %s: %w", c.ID, err)
	}
	return nil
}

// UpdateContribution locks the row, applies fn and writes it back in one transaction.
func (r *SQLRepository) UpdateContribution(ctx context.Context, id string, fn func(*domain.Contribution) error) (domain.Contribution, error) {
	var updated domain.Contribution
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		c, err := r.getContribution(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if err := fn(&c); err != nil {
			return err
		}
		values, err := contributionValues(c)
		if err != nil {
			return err
		}
		if err := r.update(ctx, tx, "contributions", id, contributionColumns, values); err != nil {
			return err
		}
		updated = c
		return nil
	})
	return updated, err
}

func (r *SQLRepository) ListPayouts(ctx context.Context) ([]domain.Payout, error) {
	query, args, err := r.builder.Select(payoutColumns...).From("payouts").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query payouts: %w", err)
	}
	defer rows.Close()

	var out []domain.Payout
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

func (r *SQLRepository) GetPayout(ctx context.Context, id string) (domain.Payout, error) {
	return r.getPayout(ctx, r.db, id, false)
}

func (r *SQLRepository) PutPayout(ctx context.Context, p domain.Payout) error {
	values, err := payoutValues(p)
	if err != nil {
		return err
	}
	query, args, err := r.builder.Insert("payouts").
		Columns(payoutColumns...).
		Values(values...).
		Suffix(upsertSuffix(payoutColumns)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert payout %s: %w", p.ID, err)
	}
	return nil
}

// UpdatePayout locks the row, applies fn and writes it back in one transaction.
func (r *SQLRepository) UpdatePayout(ctx context.Context, id string, fn func(*domain.Payout) error) (domain.Payout, error) {
	var updated domain.Payout
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		p, err := r.getPayout(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if err := fn(&p); err != nil {
			return err
		}
		values, err := payoutValues(p)
		if err != nil {
			return err
		}
		if err := r.update(ctx, tx, "payouts", id, payoutColumns, values); err != nil {
			return err
		}
		updated = p
		return nil
	})
	return updated, err
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *SQLRepository) getContribution(ctx context.Context, q querier, id string, lock bool) (domain.Contribution, error) {
	sel := r.builder.Select(contributionColumns...).From("contributions").Where(sq.Eq{"id": id})
	if lock && r.dialect == DialectPostgres {
		sel = sel.Suffix("FOR UPDATE")
	}
	query, args, err := sel.ToSql()
	if err != nil {
		return domain.Contribution{}, fmt.Errorf("build query: %w", err)
	}
	c, err := scanContribution(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Contribution{}, fmt.Errorf("contribution %s: %w", id, domain.ErrNotFound)
	}
	return c, err
}

func (r *SQLRepository) getPayout(ctx context.Context, q querier, id string, lock bool) (domain.Payout, error) {
	sel := r.builder.Select(payoutColumns...).From("payouts").Where(sq.Eq{"id": id})
	if lock && r.dialect == DialectPostgres {
		sel = sel.Suffix("FOR UPDATE")
	}
	query, args, err := sel.ToSql()
	if err != nil {
		return domain.Payout{}, fmt.Errorf("build query: %w", err)
	}
	p, err := scanPayout(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Payout{}, fmt.Errorf("payout %s: %w", id, domain.ErrNotFound)
	}
	return p, err
}

func (r *SQLRepository) update(ctx context.Context, tx *sql.Tx, table, id string, columns []string, values []any) error {
	set := make(map[string]any, len(columns)-1)
	for i, col := range columns {
		if col == "id" {
			continue
		}
		set[col] = values[i]
	}
	query, args, err := r.builder.Update(table).SetMap(set).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update %s %s: %w", table, id, err)
	}
	return nil
}

func (r *SQLRepository) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func upsertSuffix(columns []string) string {
	suffix := "ON CONFLICT (id) DO UPDATE SET "
	first := true
	for _, col := range columns {
		if col == "id" {
			continue
		}
		if !first {
			suffix += ", "
		}
		suffix += col + " = EXCLUDED." + col
		first = false
	}
	return suffix
}

func contributionValues(c domain.Contribution) ([]any, error) {
	tags := c.Tags
	if tags == nil {
		tags = []string{}
	}
	rawTags, err := json.Marshal(tags)
	if err != nil {
		return nil, fmt.Errorf("encode tags: %w", err)
	}
	return []any{
		c.ID, c.ResearcherAddress, c.ResearcherID, c.Title, c.Description, c.PostURL,
		formatTime(c.Timestamp), c.AttestationID, string(c.Status), string(rawTags), c.ImpactScore,
	}, nil
}

func scanContribution(row rowScanner) (domain.Contribution, error) {
	var (
		c                domain.Contribution
		created, rawTags string
		status           string
	)
	err := row.Scan(&c.ID, &c.ResearcherAddress, &c.ResearcherID, &c.Title, &c.Description, &c.PostURL,
		&created, &c.AttestationID, &status, &rawTags, &c.ImpactScore)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Contribution{}, err
		}
		return domain.Contribution{}, fmt.Errorf("scan contribution: %w", err)
	}
	c.Status = domain.ContributionStatus(status)
	if c.Timestamp, err = parseTime(created); err != nil {
		return domain.Contribution{}, err
	}
	if err := json.Unmarshal([]byte(rawTags), &c.Tags); err != nil {
		return domain.Contribution{}, fmt.Errorf("decode tags: %w", err)
	}
	return c, nil
}

func payoutValues(p domain.Payout) ([]any, error) {
	ids := p.ContributionIDs
	if ids == nil {
		ids = []string{}
	}
	rawIDs, err := json.Marshal(ids)
	if err != nil {
		return nil, fmt.Errorf("encode contribution ids: %w", err)
	}
	return []any{
		p.ID, p.ResearcherAddress, p.ResearcherID, p.Amount, string(rawIDs),
		p.TxHash, string(p.Status), formatTime(p.Timestamp), string(p.Chain),
	}, nil
}

func scanPayout(row rowScanner) (domain.Payout, error) {
	var (
		p                     domain.Payout
		rawIDs, status, chain string
		created               string
	)
	err := row.Scan(&p.ID, &p.ResearcherAddress, &p.ResearcherID, &p.Amount, &rawIDs,
		&p.TxHash, &status, &created, &chain)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Payout{}, err
		}
		return domain.Payout{}, fmt.Errorf("scan payout: %w", err)
	}
	p.Status = domain.PayoutStatus(status)
	p.Chain = domain.Chain(chain)
	if p.Timestamp, err = parseTime(created); err != nil {
		return domain.Payout{}, err
	}
	if err := json.Unmarshal([]byte(rawIDs), &p.ContributionIDs); err != nil {
		return domain.Payout{}, fmt.Errorf("decode contribution ids: %w", err)
	}
	return p, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", raw, err)
	}
	return t, nil
}
