package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"vidstyle/internal/fingerprint"
	"vidstyle/internal/logging"
)

// Status represents the lifecycle of a cache entry.
type Status string

const (
	StatusPending Status = "pending"
	StatusReady   Status = "ready"
	StatusFailed  Status = "failed"
)

// Entry is the stored state for one fingerprint.
type Entry struct {
	Fingerprint  fingerprint.Fingerprint
	Status       Status
	OwnerToken   string
	ClaimedAt    time.Time
	AttemptCount int
	PayloadPath  string
	PayloadBytes int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ClaimResult reports the outcome of a claim attempt. When Granted is
// false, Existing describes who holds the entry (a live claim, a ready
// result, or a failed marker from another in-progress run).
type ClaimResult struct {
	Granted  bool
	Existing *Entry
}

// Stats summarizes cache contents for operator review.
type Stats struct {
	Ready        int   `json:"ready"`
	Pending      int   `json:"pending"`
	Failed       int   `json:"failed"`
	PayloadBytes int64 `json:"payload_bytes"`
}

// ErrNotOwner is returned when Put or Fail is called without holding the
// entry's current claim.
var ErrNotOwner = errors.New("cache: claim not held by caller")

// timeFormat pads the fractional second to nine digits so stored
// timestamps compare correctly as strings; the claim query relies on
// that for its staleness cutoff. RFC3339Nano trims trailing zeros and
// would order "…05Z" after "…05.5Z".
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Store is the durable frame cache shared by workers and runs.
type Store struct {
	db         *sql.DB
	dir        string
	staleAfter time.Duration
	logger     *slog.Logger

	now func() time.Time
}

// Open initializes or connects to the cache database in dir. staleAfter
// bounds how long a pending claim blocks other workers before it becomes
// eligible for takeover.
func Open(dir string, staleAfter time.Duration, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	dbPath := filepath.Join(dir, "cache.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply cache schema: %w", err)
	}

	return &Store{
		db:         db,
		dir:        dir,
		staleAfter: staleAfter,
		logger:     logging.NewComponentLogger(logger, "cache"),
		now:        time.Now,
	}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Dir returns the cache directory.
func (s *Store) Dir() string { return s.dir }

// Get fetches the entry for a fingerprint, or nil when absent. A Ready
// entry whose payload file has gone missing or unreadable is dropped and
// reported as absent so the next dispatch recomputes it.
func (s *Store) Get(ctx context.Context, fp fingerprint.Fingerprint) (*Entry, error) {
	entry, err := s.get(ctx, fp)
	if err != nil || entry == nil {
		return entry, err
	}

	if entry.Status == StatusReady {
		if info, statErr := os.Stat(entry.PayloadPath); statErr != nil || info.IsDir() {
			s.logger.WarnContext(ctx, "ready entry payload unreadable, invalidating",
				logging.String(logging.FieldFingerprint, entry.Fingerprint.Short()),
				logging.String("payload_path", entry.PayloadPath),
				logging.String(logging.FieldImpact, "frame will be recomputed"))
			if err := s.Invalidate(ctx, fp); err != nil {
				return nil, err
			}
			return nil, nil
		}
	}
	return entry, nil
}

// Payload reads the stored result bytes for a Ready fingerprint.
func (s *Store) Payload(ctx context.Context, fp fingerprint.Fingerprint) ([]byte, error) {
	entry, err := s.Get(ctx, fp)
	if err != nil {
		return nil, err
	}
	if entry == nil || entry.Status != StatusReady {
		return nil, fmt.Errorf("cache: no ready payload for %s", fp.Short())
	}
	data, err := os.ReadFile(entry.PayloadPath)
	if err != nil {
		return nil, fmt.Errorf("cache: read payload for %s: %w", fp.Short(), err)
	}
	return data, nil
}

// Claim attempts to take ownership of a fingerprint for computation.
// Granted when the entry is absent, marked failed, or holds a claim older
// than the stale timeout. A Ready entry is never granted. The operation
// is a single conditional write, so exactly one of any number of
// concurrent claimants wins.
func (s *Store) Claim(ctx context.Context, fp fingerprint.Fingerprint, owner string) (ClaimResult, error) {
	if owner == "" {
		return ClaimResult{}, errors.New("cache: claim owner required")
	}
	now := s.now().UTC()
	timestamp := now.Format(timeFormat)
	staleCutoff := now.Add(-s.staleAfter).Format(timeFormat)

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO frame_entries (fingerprint, status, owner_token, claimed_at, attempt_count, created_at, updated_at)
         VALUES (?, ?, ?, ?, 0, ?, ?)
         ON CONFLICT(fingerprint) DO UPDATE SET
             status = excluded.status,
             owner_token = excluded.owner_token,
             claimed_at = excluded.claimed_at,
             attempt_count = 0,
             updated_at = excluded.updated_at
         WHERE frame_entries.status = ?
            OR (frame_entries.status = ? AND frame_entries.claimed_at < ?)`,
		string(fp), StatusPending, owner, timestamp, timestamp, timestamp,
		StatusFailed, StatusPending, staleCutoff,
	)
	if err != nil {
		return ClaimResult{}, fmt.Errorf("cache: claim %s: %w", fp.Short(), err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return ClaimResult{}, fmt.Errorf("cache: claim rows affected: %w", err)
	}
	if affected > 0 {
		return ClaimResult{Granted: true}, nil
	}

	existing, err := s.get(ctx, fp)
	if err != nil {
		return ClaimResult{}, err
	}
	return ClaimResult{Granted: false, Existing: existing}, nil
}

// IncrementAttempt bumps the attempt counter on a claim the caller holds.
func (s *Store) IncrementAttempt(ctx context.Context, fp fingerprint.Fingerprint, owner string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE frame_entries SET attempt_count = attempt_count + 1, updated_at = ?
         WHERE fingerprint = ? AND status = ? AND owner_token = ?`,
		s.now().UTC().Format(timeFormat), string(fp), StatusPending, owner,
	)
	if err != nil {
		return fmt.Errorf("cache: increment attempt: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotOwner
	}
	return nil
}

// Put transitions a claim the caller holds to Ready with the given payload.
// A no-op if the entry is already Ready: payloads are content-derived, so
// a concurrent writer stored identical bytes.
func (s *Store) Put(ctx context.Context, fp fingerprint.Fingerprint, owner string, payload []byte) error {
	entry, err := s.get(ctx, fp)
	if err != nil {
		return err
	}
	if entry != nil && entry.Status == StatusReady {
		return nil
	}
	if entry == nil || entry.Status != StatusPending || entry.OwnerToken != owner {
		return ErrNotOwner
	}

	payloadPath := s.payloadPath(fp)
	if err := writeFileAtomic(payloadPath, payload); err != nil {
		return fmt.Errorf("cache: write payload for %s: %w", fp.Short(), err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE frame_entries
         SET status = ?, owner_token = NULL, payload_path = ?, payload_bytes = ?, updated_at = ?
         WHERE fingerprint = ? AND status = ? AND owner_token = ?`,
		StatusReady, payloadPath, int64(len(payload)), s.now().UTC().Format(timeFormat),
		string(fp), StatusPending, owner,
	)
	if err != nil {
		return fmt.Errorf("cache: put %s: %w", fp.Short(), err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		// Lost the claim between the check and the write; if someone else
		// published the same content-derived result, that is still success.
		current, getErr := s.get(ctx, fp)
		if getErr == nil && current != nil && current.Status == StatusReady {
			return nil
		}
		return ErrNotOwner
	}
	return nil
}

// Fail releases a claim the caller holds as a failed marker after
// exhausted retries. A later run may re-claim it from scratch.
func (s *Store) Fail(ctx context.Context, fp fingerprint.Fingerprint, owner string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE frame_entries SET status = ?, owner_token = NULL, updated_at = ?
         WHERE fingerprint = ? AND status = ? AND owner_token = ?`,
		StatusFailed, s.now().UTC().Format(timeFormat),
		string(fp), StatusPending, owner,
	)
	if err != nil {
		return fmt.Errorf("cache: fail %s: %w", fp.Short(), err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotOwner
	}
	return nil
}

// Invalidate deletes an entry and its payload regardless of status,
// forcing the next run to recompute the fingerprint.
func (s *Store) Invalidate(ctx context.Context, fp fingerprint.Fingerprint) error {
	entry, err := s.get(ctx, fp)
	if err != nil {
		return err
	}
	if entry == nil {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM frame_entries WHERE fingerprint = ?`, string(fp)); err != nil {
		return fmt.Errorf("cache: invalidate %s: %w", fp.Short(), err)
	}
	if entry.PayloadPath != "" {
		if err := os.Remove(entry.PayloadPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("cache: remove payload for %s: %w", fp.Short(), err)
		}
	}
	s.logger.DebugContext(ctx, "invalidated cache entry",
		logging.String(logging.FieldFingerprint, fp.Short()))
	return nil
}

// Stats returns entry counts by status and total payload size.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(1), COALESCE(SUM(payload_bytes), 0) FROM frame_entries GROUP BY status`)
	if err != nil {
		return Stats{}, fmt.Errorf("cache: stats: %w", err)
	}
	defer rows.Close()

	var stats Stats
	for rows.Next() {
		var status Status
		var count int
		var bytes int64
		if err := rows.Scan(&status, &count, &bytes); err != nil {
			return Stats{}, err
		}
		switch status {
		case StatusReady:
			stats.Ready = count
		case StatusPending:
			stats.Pending = count
		case StatusFailed:
			stats.Failed = count
		}
		stats.PayloadBytes += bytes
	}
	return stats, rows.Err()
}

// Clear removes every entry and payload file.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload_path FROM frame_entries WHERE payload_path IS NOT NULL`)
	if err != nil {
		return 0, fmt.Errorf("cache: clear: %w", err)
	}
	var paths []string
	for rows.Next() {
		var path sql.NullString
		if err := rows.Scan(&path); err != nil {
			rows.Close()
			return 0, err
		}
		if path.Valid && path.String != "" {
			paths = append(paths, path.String)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM frame_entries`)
	if err != nil {
		return 0, fmt.Errorf("cache: clear: %w", err)
	}
	for _, path := range paths {
		_ = os.Remove(path)
	}
	return res.RowsAffected()
}

func (s *Store) payloadPath(fp fingerprint.Fingerprint) string {
	return filepath.Join(s.dir, string(fp)+".png")
}

func (s *Store) get(ctx context.Context, fp fingerprint.Fingerprint) (*Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT fingerprint, status, owner_token, claimed_at, attempt_count, payload_path, payload_bytes, created_at, updated_at
         FROM frame_entries WHERE fingerprint = ?`, string(fp))

	var (
		fpStr      string
		statusStr  string
		owner      sql.NullString
		claimedRaw sql.NullString
		attempts   int
		path       sql.NullString
		bytes      int64
		createdRaw string
		updatedRaw string
	)
	err := row.Scan(&fpStr, &statusStr, &owner, &claimedRaw, &attempts, &path, &bytes, &createdRaw, &updatedRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache: get %s: %w", fp.Short(), err)
	}

	entry := &Entry{
		Fingerprint:  fingerprint.Fingerprint(fpStr),
		Status:       Status(statusStr),
		OwnerToken:   owner.String,
		AttemptCount: attempts,
		PayloadPath:  path.String,
		PayloadBytes: bytes,
	}
	if claimedRaw.Valid {
		if t, err := time.Parse(time.RFC3339Nano, claimedRaw.String); err == nil {
			entry.ClaimedAt = t
		}
	}
	if t, err := time.Parse(time.RFC3339Nano, createdRaw); err == nil {
		entry.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, updatedRaw); err == nil {
		entry.UpdatedAt = t
	}
	return entry, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
