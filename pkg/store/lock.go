package store

import (
	"context"
	"time"

	"github.com/nordicgov/citizenship-review/pkg/apperr"
)

// AcquireLock attempts to take the exclusive per-case processing lock for
// holder. Acquisition is non-blocking: it returns (false, nil) immediately
// if the lock is currently held by someone else and not yet expired. It
// succeeds either when no lock row exists yet, or when the existing lock
// has expired (stale-lock takeover without a separate reclamation step).
func (s *Store) AcquireLock(ctx context.Context, caseID, holder string, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(ttl)

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO case_locks (case_id, holder, acquired_at, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (case_id) DO UPDATE SET holder=$2, acquired_at=$3, expires_at=$4
		WHERE case_locks.expires_at < $3
	`, caseID, holder, now, expiresAt)
	if err != nil {
		return false, apperr.Storage(err, "acquire case lock")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperr.Storage(err, "read rows affected for case lock")
	}
	return n > 0, nil
}

// ReleaseLock drops holder's lock on caseID. Releasing a lock you do not
// hold is a no-op, not an error.
func (s *Store) ReleaseLock(ctx context.Context, caseID, holder string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM case_locks WHERE case_id=$1 AND holder=$2`, caseID, holder)
	if err != nil {
		return apperr.Storage(err, "release case lock")
	}
	return nil
}

// LockHeld reports whether caseID currently has an unexpired lock, without
// acquiring it.
func (s *Store) LockHeld(ctx context.Context, caseID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM case_locks WHERE case_id=$1 AND expires_at >= $2`, caseID, time.Now().UTC()).Scan(&n)
	if err != nil {
		return false, apperr.Storage(err, "check case lock")
	}
	return n > 0, nil
}

// ReclaimStale returns the case IDs whose lock has expired and removes
// those lock rows. The caller (the orchestrator) is responsible for
// transitioning each reclaimed case back to Queued and auditing
// processing_recovered.
func (s *Store) ReclaimStale(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT case_id FROM case_locks WHERE expires_at < $1`, time.Now().UTC())
	if err != nil {
		return nil, apperr.Storage(err, "list stale case locks")
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, apperr.Storage(err, "scan stale case lock")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage(err, "iterate stale case locks")
	}
	rows.Close()

	for _, id := range ids {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM case_locks WHERE case_id=$1 AND expires_at < $2`, id, time.Now().UTC()); err != nil {
			return nil, apperr.Storage(err, "delete stale case lock")
		}
	}
	return ids, nil
}
