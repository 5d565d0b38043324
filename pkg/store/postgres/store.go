// Package postgres provides a pgx-backed implementation of store.Store for
// deployments that want durable, query-able state instead of the flat-file
// layout the filesystem backend uses. Every method has the same semantics
// as its filesystem counterpart (missing-identity-is-hard-error, monthly
// budget reset on read, mood validated against the closed set).
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/anp-network/node/pkg/store"
)

// Config holds PostgreSQL connection configuration.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// Store implements store.Store backed by a PostgreSQL connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to PostgreSQL, verifies the connection, and ensures the
// schema this store depends on exists.
func NewStore(ctx context.Context, cfg *Config) (*Store, error) {
	connString := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	return s, nil
}

// NewStoreFromDSN connects using a pre-built libpq/URL connection string
// instead of discrete fields, for callers that already hold one (e.g. a
// config file's single postgres_dsn setting).
func NewStoreFromDSN(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS identity (
			id SERIAL PRIMARY KEY CHECK (id = 1),
			did TEXT NOT NULL,
			display_name TEXT NOT NULL DEFAULT '',
			domain TEXT NOT NULL DEFAULT '',
			languages TEXT[] NOT NULL DEFAULT '{}',
			values TEXT[] NOT NULL DEFAULT '{}'
		)`,
		`CREATE TABLE IF NOT EXISTS patterns (
			description TEXT PRIMARY KEY,
			examples TEXT[] NOT NULL DEFAULT '{}',
			confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
			extracted_at TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS owner_context (
			id SERIAL PRIMARY KEY CHECK (id = 1),
			content TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS corrections (
			id SERIAL PRIMARY KEY,
			original TEXT NOT NULL,
			edited TEXT NOT NULL,
			thread_id TEXT NOT NULL DEFAULT '',
			from_did TEXT NOT NULL DEFAULT '',
			timestamp TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS peers (
			did TEXT PRIMARY KEY,
			trust DOUBLE PRECISION NOT NULL DEFAULT 0,
			first_seen TEXT NOT NULL DEFAULT '',
			last_updated TEXT NOT NULL DEFAULT '',
			last_seen TEXT NOT NULL DEFAULT '',
			alias TEXT NOT NULL DEFAULT '',
			blocked BOOLEAN NOT NULL DEFAULT false,
			message_count INTEGER NOT NULL DEFAULT 0,
			source TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS budget (
			id SERIAL PRIMARY KEY CHECK (id = 1),
			monthly_limit_tokens BIGINT NOT NULL DEFAULT 500000,
			used_tokens BIGINT NOT NULL DEFAULT 0,
			donation_pct DOUBLE PRECISION NOT NULL DEFAULT 0,
			calls_total BIGINT NOT NULL DEFAULT 0,
			autonomy_threshold DOUBLE PRECISION NOT NULL DEFAULT 0.5,
			last_reset TEXT NOT NULL DEFAULT '',
			mood TEXT NOT NULL DEFAULT 'moderate',
			auto_approve BOOLEAN NOT NULL DEFAULT false
		)`,
		`CREATE TABLE IF NOT EXISTS threads (
			thread_id TEXT PRIMARY KEY,
			messages JSONB NOT NULL DEFAULT '[]'
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) ReadIdentity(ctx context.Context) (store.IdentityRecord, error) {
	var r store.IdentityRecord
	err := s.pool.QueryRow(ctx,
		`SELECT did, display_name, domain, languages, values FROM identity WHERE id = 1`,
	).Scan(&r.ID, &r.DisplayName, &r.Domain, &r.Languages, &r.Values)
	if err == pgx.ErrNoRows {
		return store.IdentityRecord{}, fmt.Errorf("no identity row found")
	}
	if err != nil {
		return store.IdentityRecord{}, fmt.Errorf("failed to read identity: %w", err)
	}
	return r, nil
}

func (s *Store) WriteIdentity(ctx context.Context, record store.IdentityRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO identity (id, did, display_name, domain, languages, values)
		VALUES (1, $1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			did = EXCLUDED.did, display_name = EXCLUDED.display_name,
			domain = EXCLUDED.domain, languages = EXCLUDED.languages, values = EXCLUDED.values
	`, record.ID, record.DisplayName, record.Domain, record.Languages, record.Values)
	if err != nil {
		return fmt.Errorf("failed to write identity: %w", err)
	}
	return nil
}

func (s *Store) ReadPatterns(ctx context.Context) ([]store.Pattern, error) {
	rows, err := s.pool.Query(ctx, `SELECT description, examples, confidence, extracted_at FROM patterns ORDER BY description`)
	if err != nil {
		return nil, fmt.Errorf("failed to read patterns: %w", err)
	}
	defer rows.Close()

	patterns := []store.Pattern{}
	for rows.Next() {
		var p store.Pattern
		if err := rows.Scan(&p.Description, &p.Examples, &p.Confidence, &p.ExtractedAt); err != nil {
			return nil, fmt.Errorf("failed to scan pattern: %w", err)
		}
		patterns = append(patterns, p)
	}
	return patterns, rows.Err()
}

func (s *Store) WritePatterns(ctx context.Context, patterns []store.Pattern) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM patterns`); err != nil {
		return fmt.Errorf("failed to clear patterns: %w", err)
	}
	for _, p := range patterns {
		if _, err := tx.Exec(ctx, `
			INSERT INTO patterns (description, examples, confidence, extracted_at) VALUES ($1, $2, $3, $4)
		`, p.Description, p.Examples, p.Confidence, p.ExtractedAt); err != nil {
			return fmt.Errorf("failed to insert pattern: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func (s *Store) AddPattern(ctx context.Context, p store.Pattern) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM patterns WHERE lower(description) = lower($1)`, p.Description); err != nil {
		return fmt.Errorf("failed to add pattern: %w", err)
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO patterns (description, examples, confidence, extracted_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (description) DO UPDATE SET
			examples = EXCLUDED.examples, confidence = EXCLUDED.confidence, extracted_at = EXCLUDED.extracted_at
	`, p.Description, p.Examples, p.Confidence, p.ExtractedAt)
	if err != nil {
		return fmt.Errorf("failed to add pattern: %w", err)
	}
	return nil
}

func (s *Store) ReadContext(ctx context.Context) (string, error) {
	var content string
	err := s.pool.QueryRow(ctx, `SELECT content FROM owner_context WHERE id = 1`).Scan(&content)
	if err == pgx.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read context: %w", err)
	}
	return content, nil
}

func (s *Store) WriteContext(ctx context.Context, content string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO owner_context (id, content) VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET content = EXCLUDED.content
	`, content)
	if err != nil {
		return fmt.Errorf("failed to write context: %w", err)
	}
	return nil
}

func (s *Store) AppendContext(ctx context.Context, section, content string) error {
	existing, err := s.ReadContext(ctx)
	if err != nil {
		return err
	}
	return s.WriteContext(ctx, existing+"\n## "+section+"\n\n"+content+"\n")
}

func (s *Store) AppendCorrection(ctx context.Context, c store.Correction) error {
	if c.Timestamp == "" {
		c.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO corrections (original, edited, thread_id, from_did, timestamp) VALUES ($1, $2, $3, $4, $5)
	`, c.Original, c.Edited, c.ThreadID, c.FromDID, c.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to append correction: %w", err)
	}
	return nil
}

func (s *Store) ReadCorrections(ctx context.Context) ([]store.Correction, error) {
	rows, err := s.pool.Query(ctx, `SELECT original, edited, thread_id, from_did, timestamp FROM corrections ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to read corrections: %w", err)
	}
	defer rows.Close()

	corrections := []store.Correction{}
	for rows.Next() {
		var c store.Correction
		if err := rows.Scan(&c.Original, &c.Edited, &c.ThreadID, &c.FromDID, &c.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan correction: %w", err)
		}
		corrections = append(corrections, c)
	}
	return corrections, rows.Err()
}

func (s *Store) ReadPeers(ctx context.Context) ([]store.Peer, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT did, trust, first_seen, last_updated, last_seen, alias, blocked, message_count, source
		FROM peers ORDER BY did
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to read peers: %w", err)
	}
	defer rows.Close()

	peers := []store.Peer{}
	for rows.Next() {
		var p store.Peer
		if err := rows.Scan(&p.DID, &p.Trust, &p.FirstSeen, &p.LastUpdated, &p.LastSeen, &p.Alias, &p.Blocked, &p.MessageCount, &p.Source); err != nil {
			return nil, fmt.Errorf("failed to scan peer: %w", err)
		}
		peers = append(peers, p)
	}
	return peers, rows.Err()
}

func (s *Store) WritePeers(ctx context.Context, peers []store.Peer) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM peers`); err != nil {
		return fmt.Errorf("failed to clear peers: %w", err)
	}
	for _, p := range peers {
		if err := upsertPeerTx(ctx, tx, p); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func upsertPeerTx(ctx context.Context, tx pgx.Tx, p store.Peer) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO peers (did, trust, first_seen, last_updated, last_seen, alias, blocked, message_count, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (did) DO UPDATE SET
			trust = EXCLUDED.trust, first_seen = EXCLUDED.first_seen, last_updated = EXCLUDED.last_updated,
			last_seen = EXCLUDED.last_seen, alias = EXCLUDED.alias, blocked = EXCLUDED.blocked,
			message_count = EXCLUDED.message_count, source = EXCLUDED.source
	`, p.DID, p.Trust, p.FirstSeen, p.LastUpdated, p.LastSeen, p.Alias, p.Blocked, p.MessageCount, p.Source)
	if err != nil {
		return fmt.Errorf("failed to upsert peer: %w", err)
	}
	return nil
}

func (s *Store) UpsertPeer(ctx context.Context, p store.Peer) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO peers (did, trust, first_seen, last_updated, last_seen, alias, blocked, message_count, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (did) DO UPDATE SET
			trust = EXCLUDED.trust, first_seen = EXCLUDED.first_seen, last_updated = EXCLUDED.last_updated,
			last_seen = EXCLUDED.last_seen, alias = EXCLUDED.alias, blocked = EXCLUDED.blocked,
			message_count = EXCLUDED.message_count, source = EXCLUDED.source
	`, p.DID, p.Trust, p.FirstSeen, p.LastUpdated, p.LastSeen, p.Alias, p.Blocked, p.MessageCount, p.Source)
	if err != nil {
		return fmt.Errorf("failed to upsert peer: %w", err)
	}
	return nil
}

func (s *Store) DeletePeer(ctx context.Context, did string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM peers WHERE did = $1`, did)
	if err != nil {
		return fmt.Errorf("failed to delete peer: %w", err)
	}
	return nil
}

func (s *Store) readBudgetRow(ctx context.Context) (store.Budget, bool, error) {
	var b store.Budget
	err := s.pool.QueryRow(ctx, `
		SELECT monthly_limit_tokens, used_tokens, donation_pct, calls_total, autonomy_threshold, last_reset, mood, auto_approve
		FROM budget WHERE id = 1
	`).Scan(&b.MonthlyLimitTokens, &b.UsedTokens, &b.DonationPct, &b.CallsTotal, &b.AutonomyThreshold, &b.LastReset, &b.Mood, &b.AutoApprove)
	if err == pgx.ErrNoRows {
		return store.Budget{}, false, nil
	}
	if err != nil {
		return store.Budget{}, false, fmt.Errorf("failed to read budget: %w", err)
	}
	return b, true, nil
}

func (s *Store) ReadBudget(ctx context.Context) (store.Budget, error) {
	budget, found, err := s.readBudgetRow(ctx)
	if err != nil {
		return store.Budget{}, err
	}
	if !found {
		budget = store.Budget{
			MonthlyLimitTokens: 500_000,
			AutonomyThreshold:  store.DefaultAutonomyThreshold,
			LastReset:          time.Now().UTC().Format(time.RFC3339),
			Mood:               store.MoodModerate,
		}
		if err := s.WriteBudget(ctx, budget); err != nil {
			return store.Budget{}, err
		}
		return budget, nil
	}

	if needsMonthlyReset(budget.LastReset, time.Now().UTC()) {
		budget.UsedTokens = 0
		budget.CallsTotal = 0
		budget.LastReset = time.Now().UTC().Format(time.RFC3339)
		if err := s.WriteBudget(ctx, budget); err != nil {
			return store.Budget{}, err
		}
	}
	return budget, nil
}

func needsMonthlyReset(lastReset string, now time.Time) bool {
	t, err := time.Parse(time.RFC3339, lastReset)
	if err != nil {
		return false
	}
	t = t.UTC()
	return t.Year() < now.Year() || (t.Year() == now.Year() && t.Month() < now.Month())
}

func (s *Store) WriteBudget(ctx context.Context, b store.Budget) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO budget (id, monthly_limit_tokens, used_tokens, donation_pct, calls_total, autonomy_threshold, last_reset, mood, auto_approve)
		VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			monthly_limit_tokens = EXCLUDED.monthly_limit_tokens, used_tokens = EXCLUDED.used_tokens,
			donation_pct = EXCLUDED.donation_pct, calls_total = EXCLUDED.calls_total,
			autonomy_threshold = EXCLUDED.autonomy_threshold, last_reset = EXCLUDED.last_reset,
			mood = EXCLUDED.mood, auto_approve = EXCLUDED.auto_approve
	`, b.MonthlyLimitTokens, b.UsedTokens, b.DonationPct, b.CallsTotal, b.AutonomyThreshold, b.LastReset, b.Mood, b.AutoApprove)
	if err != nil {
		return fmt.Errorf("failed to write budget: %w", err)
	}
	return nil
}

func (s *Store) RecordUsage(ctx context.Context, tokens int64) error {
	budget, err := s.ReadBudget(ctx)
	if err != nil {
		return err
	}
	budget.UsedTokens += tokens
	budget.CallsTotal++
	return s.WriteBudget(ctx, budget)
}

func (s *Store) IsOverBudget(ctx context.Context) (bool, error) {
	budget, err := s.ReadBudget(ctx)
	if err != nil {
		return false, err
	}
	return budget.UsedTokens >= budget.MonthlyLimitTokens, nil
}

func (s *Store) GetMood(ctx context.Context) (string, error) {
	budget, err := s.ReadBudget(ctx)
	if err != nil {
		return "", err
	}
	if budget.Mood == "" {
		return store.MoodModerate, nil
	}
	return budget.Mood, nil
}

func (s *Store) SetMood(ctx context.Context, mood string) error {
	if mood != store.MoodAvailable && mood != store.MoodModerate && mood != store.MoodAbsent && mood != store.MoodDND {
		return &store.ErrInvalidMood{Value: mood}
	}
	budget, err := s.ReadBudget(ctx)
	if err != nil {
		return err
	}
	budget.Mood = mood
	return s.WriteBudget(ctx, budget)
}

func (s *Store) GetAutoApprove(ctx context.Context) (bool, error) {
	budget, err := s.ReadBudget(ctx)
	if err != nil {
		return false, err
	}
	return budget.AutoApprove, nil
}

func (s *Store) SetAutoApprove(ctx context.Context, enabled bool) error {
	budget, err := s.ReadBudget(ctx)
	if err != nil {
		return err
	}
	budget.AutoApprove = enabled
	return s.WriteBudget(ctx, budget)
}

func (s *Store) ReadThread(ctx context.Context, threadID string) ([]map[string]interface{}, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT messages FROM threads WHERE thread_id = $1`, threadID).Scan(&raw)
	if err == pgx.ErrNoRows {
		return []map[string]interface{}{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read thread: %w", err)
	}
	messages := []map[string]interface{}{}
	if err := json.Unmarshal(raw, &messages); err != nil {
		return nil, fmt.Errorf("failed to decode thread: %w", err)
	}
	return messages, nil
}

func (s *Store) WriteThread(ctx context.Context, threadID string, messages []map[string]interface{}) error {
	if messages == nil {
		messages = []map[string]interface{}{}
	}
	raw, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("failed to encode thread: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO threads (thread_id, messages) VALUES ($1, $2)
		ON CONFLICT (thread_id) DO UPDATE SET messages = EXCLUDED.messages
	`, threadID, raw)
	if err != nil {
		return fmt.Errorf("failed to write thread: %w", err)
	}
	return nil
}

func (s *Store) AppendToThread(ctx context.Context, threadID string, message map[string]interface{}) error {
	messages, err := s.ReadThread(ctx, threadID)
	if err != nil {
		return err
	}
	messages = append(messages, message)
	return s.WriteThread(ctx, threadID, messages)
}

func (s *Store) DeleteThread(ctx context.Context, threadID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM threads WHERE thread_id = $1`, threadID)
	if err != nil {
		return fmt.Errorf("failed to delete thread: %w", err)
	}
	return nil
}

func (s *Store) ListThreads(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT thread_id FROM threads ORDER BY thread_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan thread id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) CorrectionCount(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM corrections`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count corrections: %w", err)
	}
	return count, nil
}

func (s *Store) PatternCount(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM patterns`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count patterns: %w", err)
	}
	return count, nil
}

func (s *Store) ContextWordCount(ctx context.Context) (int, error) {
	content, err := s.ReadContext(ctx)
	if err != nil {
		return 0, err
	}
	return len(strings.Fields(content)), nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the database connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

var _ store.Store = (*Store)(nil)
