// Package postgres implements the table sink on Postgres. Each record type
// gets a range-partitioned table keyed on the time field; partition buckets
// are created on demand at write time and dropped once they fall out of the
// retention window. Column types are the sink's choice: the time field is
// timestamptz, everything else is stored as jsonb.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xentelar/kflow/pkg/logger"
	"github.com/xentelar/kflow/pkg/models"
	"github.com/xentelar/kflow/pkg/sink"
	"github.com/xentelar/kflow/pkg/transform"
)

var (
	ErrMissingDSN      = errors.New("database dsn is required")
	ErrNoTimeField     = errors.New("sink config has no partition index field")
	ErrBadTimeValue    = errors.New("time field is not a 3-component timestamp")
	errMissingField    = errors.New("decoded record is missing a schema field")
	errRecordTableSkew = errors.New("record type does not match sink table")
)

const secondsPerDay = 24 * 60 * 60

// Store writes decoded records to partitioned Postgres tables.
type Store struct {
	pool *pgxpool.Pool
	log  logger.Logger

	mu         sync.Mutex
	partitions map[string]struct{}
}

// New connects a pgx pool using the configured DSN.
func New(ctx context.Context, cfg models.DatabaseConfig, log logger.Logger) (*Store, error) {
	if cfg.DSN == "" {
		return nil, ErrMissingDSN
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database dsn: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool:       pool,
		log:        log,
		partitions: make(map[string]struct{}),
	}, nil
}

// EnsureTable creates the partitioned parent table and its time index if
// they do not exist yet.
func (s *Store) EnsureTable(ctx context.Context, cfg models.SinkConfig) error {
	timeCol, err := timeField(cfg)
	if err != nil {
		return err
	}

	cols := make([]string, 0, len(cfg.Fields)+1)
	cols = append(cols, `id uuid NOT NULL`)

	for _, f := range cfg.Fields {
		if f == timeCol {
			cols = append(cols, fmt.Sprintf("%s timestamptz NOT NULL", quoteIdent(f)))
		} else {
			cols = append(cols, fmt.Sprintf("%s jsonb", quoteIdent(f)))
		}
	}

	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s) PARTITION BY RANGE (%s)",
		quoteIdent(cfg.Table), strings.Join(cols, ", "), quoteIdent(timeCol))

	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create table %s: %w", cfg.Table, err)
	}

	for _, idx := range cfg.Partitioning.IndexFields {
		stmt := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
			quoteIdent(cfg.Table+"_"+idx+"_idx"), quoteIdent(cfg.Table), quoteIdent(idx))

		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create index on %s: %w", cfg.Table, err)
		}
	}

	s.log.Info().
		Str("table", cfg.Table).
		Int("bucket_days", cfg.Partitioning.BucketDays).
		Int("retention_days", cfg.Partitioning.RetentionDays).
		Msg("table ensured")

	return nil
}

// WriteRows inserts one row per decoded record, creating partition buckets
// as needed. All rows go out in a single pgx batch.
func (s *Store) WriteRows(ctx context.Context, cfg models.SinkConfig, records []*models.DecodedRecord) error {
	if len(records) == 0 {
		return nil
	}

	timeCol, err := timeField(cfg)
	if err != nil {
		return err
	}

	cols := make([]string, 0, len(cfg.Fields)+1)
	cols = append(cols, "id")

	placeholders := make([]string, 0, len(cfg.Fields)+1)
	placeholders = append(placeholders, "$1")

	for i, f := range cfg.Fields {
		cols = append(cols, quoteIdent(f))
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+2))
	}

	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(cfg.Table), strings.Join(cols, ", "), strings.Join(placeholders, ", "))

	batch := &pgx.Batch{}

	for _, rec := range records {
		if len(rec.Fields) != len(cfg.Fields) {
			return fmt.Errorf("%w: %s has %d fields, table %s has %d columns",
				errRecordTableSkew, rec.Type, len(rec.Fields), cfg.Table, len(cfg.Fields))
		}

		args, ts, err := rowArgs(cfg, rec, timeCol)
		if err != nil {
			return err
		}

		if err := s.ensurePartition(ctx, cfg, ts); err != nil {
			return err
		}

		batch.Queue(stmt, args...)
	}

	return s.sendBatch(ctx, batch, cfg.Table)
}

// PruneExpired drops partitions whose upper bound is older than the
// retention window and returns how many were dropped.
func (s *Store) PruneExpired(ctx context.Context, cfg models.SinkConfig) (int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT c.relname
		   FROM pg_inherits i
		   JOIN pg_class c ON c.oid = i.inhrelid
		   JOIN pg_class p ON p.oid = i.inhparent
		  WHERE p.relname = $1`, cfg.Table)
	if err != nil {
		return 0, fmt.Errorf("failed to list partitions of %s: %w", cfg.Table, err)
	}

	var children []string

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return 0, err
		}

		children = append(children, name)
	}

	rows.Close()

	if err := rows.Err(); err != nil {
		return 0, err
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -cfg.Partitioning.RetentionDays)
	dropped := 0

	for _, child := range children {
		start, ok := parsePartitionStart(cfg.Table, child)
		if !ok {
			continue
		}

		end := start.AddDate(0, 0, cfg.Partitioning.BucketDays)
		if !end.After(cutoff) {
			if _, err := s.pool.Exec(ctx, "DROP TABLE IF EXISTS "+quoteIdent(child)); err != nil {
				return dropped, fmt.Errorf("failed to drop partition %s: %w", child, err)
			}

			s.forgetPartition(child)
			dropped++

			s.log.Info().Str("table", cfg.Table).Str("partition", child).Msg("dropped expired partition")
		}
	}

	return dropped, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) ensurePartition(ctx context.Context, cfg models.SinkConfig, ts time.Time) error {
	start := bucketStart(ts, cfg.Partitioning.BucketDays)
	name := partitionName(cfg.Table, start)

	s.mu.Lock()
	_, known := s.partitions[name]
	s.mu.Unlock()

	if known {
		return nil
	}

	end := start.AddDate(0, 0, cfg.Partitioning.BucketDays)

	stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s PARTITION OF %s FOR VALUES FROM ('%s') TO ('%s')",
		quoteIdent(name), quoteIdent(cfg.Table),
		start.Format(time.RFC3339), end.Format(time.RFC3339))

	if _, err := s.pool.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("failed to create partition %s: %w", name, err)
	}

	s.mu.Lock()
	s.partitions[name] = struct{}{}
	s.mu.Unlock()

	return nil
}

func (s *Store) forgetPartition(name string) {
	s.mu.Lock()
	delete(s.partitions, name)
	s.mu.Unlock()
}

func (s *Store) sendBatch(ctx context.Context, batch *pgx.Batch, table string) (err error) {
	if batch.Len() == 0 {
		return nil
	}

	br := s.pool.SendBatch(ctx, batch)

	defer func() {
		if closeErr := br.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("%s batch close: %w", table, closeErr)
		}
	}()

	for i := 0; i < batch.Len(); i++ {
		if _, err = br.Exec(); err != nil {
			return fmt.Errorf("%s batch exec (command %d): %w", table, i, err)
		}
	}

	return nil
}

// rowArgs builds the positional insert arguments for one record and returns
// the row's event time for partition placement.
func rowArgs(cfg models.SinkConfig, rec *models.DecodedRecord, timeCol string) ([]any, time.Time, error) {
	args := make([]any, 0, len(cfg.Fields)+1)
	args = append(args, uuid.New())

	var ts time.Time

	for _, f := range cfg.Fields {
		v, ok := rec.Get(f)
		if !ok {
			return nil, time.Time{}, fmt.Errorf("%w: %s", errMissingField, f)
		}

		if f == timeCol {
			t, err := tupleToTime(v)
			if err != nil {
				return nil, time.Time{}, err
			}

			ts = t
			args = append(args, t)

			continue
		}

		args = append(args, encodeJSONValue(v))
	}

	return args, ts, nil
}

// tupleToTime converts the validated (seconds, microseconds, sequence) time
// value to a wall-clock timestamp. The sequence component only breaks ties
// between records and does not contribute to the instant.
func tupleToTime(v any) (time.Time, error) {
	t, ok := v.([]any)
	if !ok || len(t) != 3 {
		return time.Time{}, fmt.Errorf("%w: %v", ErrBadTimeValue, v)
	}

	sec, ok1 := transform.AsInt64(t[0])
	micro, ok2 := transform.AsInt64(t[1])

	if !ok1 || !ok2 {
		return time.Time{}, fmt.Errorf("%w: %v", ErrBadTimeValue, v)
	}

	return time.Unix(sec, micro*int64(time.Microsecond)).UTC(), nil
}

// encodeJSONValue renders any decoded value as jsonb input. Values the
// encoder cannot handle fall back to their textual rendering, so a write
// never fails on an odd value shape.
func encodeJSONValue(v any) string {
	b, err := json.Marshal(normalizeJSON(v))
	if err != nil {
		b, _ = json.Marshal(fmt.Sprintf("%v", v))
	}

	return string(b)
}

// normalizeJSON rewrites map[any]any keys (as produced by the CBOR codec)
// into string keys so encoding/json accepts them.
func normalizeJSON(v any) any {
	switch m := v.(type) {
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[fmt.Sprintf("%v", k)] = normalizeJSON(val)
		}

		return out
	case []any:
		out := make([]any, len(m))
		for i, val := range m {
			out[i] = normalizeJSON(val)
		}

		return out
	default:
		return v
	}
}

func bucketStart(ts time.Time, bucketDays int) time.Time {
	if bucketDays <= 0 {
		bucketDays = 1
	}

	epochDays := ts.UTC().Unix() / secondsPerDay
	startDays := epochDays - (epochDays % int64(bucketDays))

	return time.Unix(startDays*secondsPerDay, 0).UTC()
}

func partitionName(table string, start time.Time) string {
	return fmt.Sprintf("%s_p%s", table, start.Format("20060102"))
}

// parsePartitionStart recovers the bucket start from a partition name
// produced by partitionName. ok is false for unrelated child tables.
func parsePartitionStart(table, child string) (time.Time, bool) {
	prefix := table + "_p"
	if !strings.HasPrefix(child, prefix) {
		return time.Time{}, false
	}

	start, err := time.Parse("20060102", strings.TrimPrefix(child, prefix))
	if err != nil {
		return time.Time{}, false
	}

	return start.UTC(), true
}

func timeField(cfg models.SinkConfig) (string, error) {
	if len(cfg.Partitioning.IndexFields) == 0 {
		return "", ErrNoTimeField
	}

	return cfg.Partitioning.IndexFields[0], nil
}

func quoteIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

var _ sink.Sink = (*Store)(nil)
