// Package postgres persists ranking data in PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/university-rankings/internal/ranking"
)

// Config controls the connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// DB is the subset of *pgxpool.Pool the store uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// Store implements ranking.Repository on Postgres.
type Store struct {
	db DB
}

var _ ranking.Repository = (*Store)(nil)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

const foreignKeyViolation = "23503"

// Open connects a pool using cfg.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, errors.New("db.dsn is required")
	}
	if cfg.MaxConns == 1 {
		return nil, ErrPoolTooSmall
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{db: pool}, nil
}

// ErrPoolTooSmall rejects a single-connection pool. A source lock pins one
// connection for the whole run while writes need another.
var ErrPoolTooSmall = errors.New("db.max_conns must be at least 2")

// NewWithDB wraps an existing pool, mainly for tests.
func NewWithDB(db DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	return &Store{db: db}, nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() {
	if s == nil || s.db == nil {
		return
	}
	s.db.Close()
}

const sourceColumns = `code, name, region, website_url, description, update_frequency_seconds, created_at`

// EnsureSource inserts src unless its code exists.
func (s *Store) EnsureSource(ctx context.Context, src ranking.Source) (ranking.Source, bool, error) {
	freq := src.UpdateFrequency
	if freq <= 0 {
		freq = ranking.DefaultUpdateFrequency
	}
	var createdAt time.Time
	err := s.db.QueryRow(ctx, `
INSERT INTO ranking_sources (code, name, region, website_url, description, update_frequency_seconds)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (code) DO NOTHING
RETURNING created_at`,
		src.Code, src.Name, string(src.Region), src.WebsiteURL, src.Description, int64(freq/time.Second),
	).Scan(&createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		existing, err := s.GetSource(ctx, src.Code)
		return existing, false, err
	}
	if err != nil {
		return ranking.Source{}, false, fmt.Errorf("insert source %s: %w", src.Code, err)
	}
	src.UpdateFrequency = freq
	src.CreatedAt = createdAt
	return src, true, nil
}

// GetSource returns ranking.ErrNotFound for unknown codes.
func (s *Store) GetSource(ctx context.Context, code string) (ranking.Source, error) {
	row := s.db.QueryRow(ctx, `SELECT `+sourceColumns+` FROM ranking_sources WHERE code = $1`, code)
	src, err := scanSource(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return ranking.Source{}, fmt.Errorf("source %s: %w", code, ranking.ErrNotFound)
	}
	if err != nil {
		return ranking.Source{}, fmt.Errorf("get source %s: %w", code, err)
	}
	return src, nil
}

// ListSources returns sources in registration order.
func (s *Store) ListSources(ctx context.Context) ([]ranking.Source, error) {
	rows, err := s.db.Query(ctx, `SELECT `+sourceColumns+` FROM ranking_sources ORDER BY created_at, code`)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()
	var out []ranking.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

func scanSource(row pgx.Row) (ranking.Source, error) {
	var (
		src     ranking.Source
		region  string
		seconds int64
	)
	if err := row.Scan(&src.Code, &src.Name, &region, &src.WebsiteURL, &src.Description, &seconds, &src.CreatedAt); err != nil {
		return ranking.Source{}, err
	}
	src.Region = ranking.Region(region)
	src.UpdateFrequency = time.Duration(seconds) * time.Second
	return src, nil
}

const institutionColumns = `id, name, country, city, website_url, created_at, updated_at`

// GetOrCreateInstitution inserts by unique name; defaults apply only when the
// row is new.
func (s *Store) GetOrCreateInstitution(ctx context.Context, inst ranking.Institution) (ranking.Institution, bool, error) {
	country := inst.Country
	if country == "" {
		country = ranking.UnknownCountry
	}
	row := s.db.QueryRow(ctx, `
INSERT INTO institutions (name, country, city, website_url)
VALUES ($1, $2, $3, $4)
ON CONFLICT (name) DO NOTHING
RETURNING `+institutionColumns,
		inst.Name, country, inst.City, inst.WebsiteURL,
	)
	created, err := scanInstitution(row)
	if errors.Is(err, pgx.ErrNoRows) {
		existing, err := s.FindInstitution(ctx, inst.Name)
		return existing, false, err
	}
	if err != nil {
		return ranking.Institution{}, false, fmt.Errorf("insert institution %q: %w", inst.Name, err)
	}
	return created, true, nil
}

func scanInstitution(row pgx.Row) (ranking.Institution, error) {
	var inst ranking.Institution
	err := row.Scan(&inst.ID, &inst.Name, &inst.Country, &inst.City, &inst.WebsiteURL, &inst.CreatedAt, &inst.UpdatedAt)
	return inst, err
}

// GetInstitution returns ranking.ErrNotFound for unknown ids.
func (s *Store) GetInstitution(ctx context.Context, id int64) (ranking.Institution, error) {
	inst, err := scanInstitution(s.db.QueryRow(ctx, `SELECT `+institutionColumns+` FROM institutions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return ranking.Institution{}, fmt.Errorf("institution %d: %w", id, ranking.ErrNotFound)
	}
	if err != nil {
		return ranking.Institution{}, fmt.Errorf("get institution %d: %w", id, err)
	}
	return inst, nil
}

// FindInstitution looks up by exact name.
func (s *Store) FindInstitution(ctx context.Context, name string) (ranking.Institution, error) {
	inst, err := scanInstitution(s.db.QueryRow(ctx, `SELECT `+institutionColumns+` FROM institutions WHERE name = $1`, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return ranking.Institution{}, fmt.Errorf("institution %q: %w", name, ranking.ErrNotFound)
	}
	if err != nil {
		return ranking.Institution{}, fmt.Errorf("find institution %q: %w", name, err)
	}
	return inst, nil
}

// ListInstitutions returns every institution ordered by id.
func (s *Store) ListInstitutions(ctx context.Context) ([]ranking.Institution, error) {
	rows, err := s.db.Query(ctx, `SELECT `+institutionColumns+` FROM institutions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list institutions: %w", err)
	}
	defer rows.Close()
	var out []ranking.Institution
	for rows.Next() {
		inst, err := scanInstitution(rows)
		if err != nil {
			return nil, fmt.Errorf("scan institution: %w", err)
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

func metricColumns(prefix string) []string {
	cols := make([]string, len(ranking.Metrics))
	for i, m := range ranking.Metrics {
		cols[i] = prefix + string(m)
	}
	return cols
}

var upsertEntrySQL = func() string {
	metrics := metricColumns("")
	placeholders := make([]string, len(metrics))
	merges := make([]string, len(metrics))
	for i, col := range metrics {
		placeholders[i] = fmt.Sprintf("$%d", i+6)
		merges[i] = fmt.Sprintf("%s = COALESCE(EXCLUDED.%s, ranking_entries.%s)", col, col, col)
	}
	urlArg := len(metrics) + 6
	return fmt.Sprintf(`
INSERT INTO ranking_entries (institution_id, source_code, ranking_year, rank, score, %s, data_source_url)
VALUES ($1, $2, $3, $4, $5, %s, $%d)
ON CONFLICT (institution_id, source_code, ranking_year) DO UPDATE SET
	rank = EXCLUDED.rank,
	score = EXCLUDED.score,
	data_source_url = EXCLUDED.data_source_url,
	%s,
	updated_at = now()
RETURNING (SELECT region FROM ranking_sources WHERE code = ranking_entries.source_code),
	%s, created_at, updated_at, (xmax = 0) AS inserted`,
		strings.Join(metrics, ", "),
		strings.Join(placeholders, ", "),
		urlArg,
		strings.Join(merges, ",\n\t"),
		strings.Join(metrics, ", "),
	)
}()

// UpsertEntry writes by natural key. Metrics absent from in keep their
// stored values.
func (s *Store) UpsertEntry(ctx context.Context, in ranking.EntryUpsert) (ranking.Entry, bool, error) {
	args := []any{in.Key.InstitutionID, in.Key.SourceCode, in.Key.Year, in.Rank, in.Score}
	for _, m := range ranking.Metrics {
		var v *float64
		if f, ok := in.Metrics[m]; ok {
			v = ranking.Float(f)
		}
		args = append(args, v)
	}
	args = append(args, in.DataSourceURL)

	entry := ranking.Entry{
		EntryKey:      in.Key,
		Rank:          in.Rank,
		Score:         in.Score,
		DataSourceURL: in.DataSourceURL,
	}
	var (
		region   string
		inserted bool
	)
	metrics := make([]*float64, len(ranking.Metrics))
	dest := []any{&region}
	for i := range metrics {
		dest = append(dest, &metrics[i])
	}
	dest = append(dest, &entry.CreatedAt, &entry.UpdatedAt, &inserted)

	if err := s.db.QueryRow(ctx, upsertEntrySQL, args...).Scan(dest...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return ranking.Entry{}, false, fmt.Errorf("upsert entry %+v: %w", in.Key, ranking.ErrNotFound)
		}
		return ranking.Entry{}, false, fmt.Errorf("upsert entry %+v: %w", in.Key, err)
	}
	entry.Region = ranking.Region(region)
	entry.Metrics = metricMap(metrics)
	return entry, inserted, nil
}

func metricMap(values []*float64) map[ranking.Metric]float64 {
	var out map[ranking.Metric]float64
	for i, v := range values {
		if v == nil {
			continue
		}
		if out == nil {
			out = make(map[ranking.Metric]float64)
		}
		out[ranking.Metrics[i]] = *v
	}
	return out
}

// ListEntries filters entries joined with their source's region.
func (s *Store) ListEntries(ctx context.Context, f ranking.EntryFilter) ([]ranking.Entry, error) {
	query, args, err := listEntriesQuery(f).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build entries query: %w", err)
	}
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var out []ranking.Entry
	for rows.Next() {
		var (
			e       ranking.Entry
			region  string
			metrics = make([]*float64, len(ranking.Metrics))
		)
		dest := []any{&e.InstitutionID, &e.SourceCode, &e.Year, &region, &e.Rank, &e.Score}
		for i := range metrics {
			dest = append(dest, &metrics[i])
		}
		dest = append(dest, &e.DataSourceURL, &e.CreatedAt, &e.UpdatedAt)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.Region = ranking.Region(region)
		e.Metrics = metricMap(metrics)
		out = append(out, e)
	}
	return out, rows.Err()
}

func listEntriesQuery(f ranking.EntryFilter) sq.SelectBuilder {
	cols := []string{"e.institution_id", "e.source_code", "e.ranking_year", "s.region", "e.rank", "e.score"}
	cols = append(cols, metricColumns("e.")...)
	cols = append(cols, "e.data_source_url", "e.created_at", "e.updated_at")

	q := psql.Select(cols...).
		From("ranking_entries e").
		Join("ranking_sources s ON s.code = e.source_code")
	if f.SourceCode != "" {
		q = q.Where(sq.Eq{"e.source_code": f.SourceCode})
	}
	if f.Region != "" {
		q = q.Where(sq.Eq{"s.region": string(f.Region)})
	}
	if f.Year != 0 {
		q = q.Where(sq.Eq{"e.ranking_year": f.Year})
	}
	if f.InstitutionID != 0 {
		q = q.Where(sq.Eq{"e.institution_id": f.InstitutionID})
	}
	if f.ScoredOnly {
		q = q.Where(sq.NotEq{"e.score": nil})
	}
	return q.OrderBy("e.source_code", "e.rank", "e.institution_id")
}

const cacheColumns = `source_code, last_fetch_time, last_successful_fetch, status, error_message, records_fetched`

// GetOrCreateCacheState returns the row for code, inserting a PENDING one.
func (s *Store) GetOrCreateCacheState(ctx context.Context, code string) (ranking.CacheState, error) {
	_, err := s.db.Exec(ctx, `INSERT INTO cache_states (source_code) VALUES ($1) ON CONFLICT (source_code) DO NOTHING`, code)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return ranking.CacheState{}, fmt.Errorf("source %s: %w", code, ranking.ErrNotFound)
		}
		return ranking.CacheState{}, fmt.Errorf("insert cache state %s: %w", code, err)
	}
	return s.GetCacheState(ctx, code)
}

// GetCacheState returns ranking.ErrNotFound when no row exists.
func (s *Store) GetCacheState(ctx context.Context, code string) (ranking.CacheState, error) {
	var (
		state  ranking.CacheState
		status string
	)
	err := s.db.QueryRow(ctx, `SELECT `+cacheColumns+` FROM cache_states WHERE source_code = $1`, code).Scan(
		&state.SourceCode, &state.LastFetchTime, &state.LastSuccessfulFetch, &status, &state.ErrorMessage, &state.RecordsFetched,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return ranking.CacheState{}, fmt.Errorf("cache state %s: %w", code, ranking.ErrNotFound)
	}
	if err != nil {
		return ranking.CacheState{}, fmt.Errorf("get cache state %s: %w", code, err)
	}
	state.Status = ranking.FetchStatus(status)
	return state, nil
}

// SaveCacheState writes every field of state.
func (s *Store) SaveCacheState(ctx context.Context, state ranking.CacheState) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO cache_states (`+cacheColumns+`)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (source_code) DO UPDATE SET
	last_fetch_time = EXCLUDED.last_fetch_time,
	last_successful_fetch = EXCLUDED.last_successful_fetch,
	status = EXCLUDED.status,
	error_message = EXCLUDED.error_message,
	records_fetched = EXCLUDED.records_fetched`,
		state.SourceCode, state.LastFetchTime, state.LastSuccessfulFetch,
		string(state.Status), state.ErrorMessage, state.RecordsFetched,
	)
	if err != nil {
		return fmt.Errorf("save cache state %s: %w", state.SourceCode, err)
	}
	return nil
}

// AcquireSourceLock takes a transaction-scoped advisory lock keyed by the
// source code. The transaction, and with it the lock, ends on release.
func (s *Store) AcquireSourceLock(ctx context.Context, code string) (func(), error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin lock transaction: %w", err)
	}
	var locked bool
	if err := tx.QueryRow(ctx, `SELECT pg_try_advisory_xact_lock($1)`, lockKey(code)).Scan(&locked); err != nil {
		_ = tx.Rollback(ctx)
		return nil, fmt.Errorf("try advisory lock %s: %w", code, err)
	}
	if !locked {
		_ = tx.Rollback(ctx)
		return nil, ranking.ErrSourceBusy
	}
	var released bool
	return func() {
		if released {
			return
		}
		released = true
		_ = tx.Rollback(context.Background())
	}, nil
}

func lockKey(code string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte("rankings:source:" + code))
	return int64(h.Sum64()) //nolint:gosec // wraparound is fine for a lock key
}
