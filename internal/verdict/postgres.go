package verdict

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/voxgate/pkg/provider/vad"
)

// Schema is the SQL DDL for the vad_verdicts table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS vad_verdicts (
    id           TEXT PRIMARY KEY,
    recorded_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    source       TEXT NOT NULL,
    decision     TEXT NOT NULL,
    has_speech   BOOLEAN,
    speech_ratio DOUBLE PRECISION,
    verdict      JSONB,
    detect_error TEXT NOT NULL DEFAULT '',
    transcript   TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_vad_verdicts_recorded_at ON vad_verdicts(recorded_at DESC);
CREATE INDEX IF NOT EXISTS idx_vad_verdicts_decision ON vad_verdicts(decision);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by PostgreSQL. The full verdict is kept
// as JSONB; has_speech and speech_ratio are split out for querying.
type PostgresStore struct {
	db    DB
	close func()
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore wraps an existing connection or pool. The caller owns db
// and must call [PostgresStore.Migrate] before recording.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// OpenPostgres connects to dsn, verifies the connection and runs
// [PostgresStore.Migrate]. Close releases the pool.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("verdict: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("verdict: ping: %w", err)
	}
	s := &PostgresStore{db: pool, close: pool.Close}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Migrate executes the [Schema] DDL.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("verdict: migrate: %w", err)
	}
	return nil
}

// Record implements [Store]. Re-recording an ID is a no-op.
func (s *PostgresStore) Record(ctx context.Context, r Record) error {
	var (
		verdictJSON []byte
		hasSpeech   *bool
		ratio       *float64
	)
	if r.Verdict != nil {
		b, err := sonic.Marshal(r.Verdict)
		if err != nil {
			return fmt.Errorf("verdict: marshal verdict: %w", err)
		}
		verdictJSON = b
		hasSpeech = &r.Verdict.HasSpeech
		ratio = &r.Verdict.SpeechRatio
	}

	const query = `
		INSERT INTO vad_verdicts (
			id, recorded_at, source, decision,
			has_speech, speech_ratio, verdict, detect_error, transcript
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (id) DO NOTHING`

	_, err := s.db.Exec(ctx, query,
		r.ID, r.Time, r.Source, r.Decision,
		hasSpeech, ratio, verdictJSON, r.DetectError, r.Text,
	)
	if err != nil {
		return fmt.Errorf("verdict: record %q: %w", r.ID, err)
	}
	return nil
}

// Recent implements [Store].
func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		return nil, nil
	}
	const query = `
		SELECT id, recorded_at, source, decision, verdict, detect_error, transcript
		FROM vad_verdicts
		ORDER BY recorded_at DESC
		LIMIT $1`

	rows, err := s.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("verdict: recent: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r           Record
			verdictJSON []byte
		)
		if err := rows.Scan(&r.ID, &r.Time, &r.Source, &r.Decision, &verdictJSON, &r.DetectError, &r.Text); err != nil {
			return nil, fmt.Errorf("verdict: scan: %w", err)
		}
		if len(verdictJSON) > 0 {
			r.Verdict = new(vad.Result)
			if err := sonic.Unmarshal(verdictJSON, r.Verdict); err != nil {
				return nil, fmt.Errorf("verdict: unmarshal verdict %q: %w", r.ID, err)
			}
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("verdict: recent: %w", err)
	}
	return out, nil
}

// Close implements [Store]. It closes the pool opened by [OpenPostgres] and
// is a no-op for stores built with [NewPostgresStore].
func (s *PostgresStore) Close() error {
	if s.close != nil {
		s.close()
	}
	return nil
}

// Ping checks that the database answers. It backs the /readyz probe.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, "SELECT 1"); err != nil {
		return fmt.Errorf("verdict: ping: %w", err)
	}
	return nil
}
