package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/MrEthical07/goRotate/session"
)

// GetByHash returns the record, reporting it revoked when its family is tombstoned.
func (s *Store) GetByHash(ctx context.Context, hash string) (*session.Record, error) {
	const op = "session.postgres.GetByHash"

	const query = `
		SELECT t.token_hash, t.user_id, t.family_id, t.version,
		       t.revoked OR f.family_id IS NOT NULL,
		       t.issued_at, t.expires_at
		FROM refresh_tokens t
		LEFT JOIN revoked_token_families f ON f.family_id = t.family_id
		WHERE t.token_hash = $1
	`

	var (
		rec     session.Record
		version int64
	)
	err := s.db.QueryRow(ctx, query, hash).Scan(
		&rec.TokenHash,
		&rec.UserID,
		&rec.FamilyID,
		&version,
		&rec.Revoked,
		&rec.IssuedAt,
		&rec.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, session.ErrNotFound
		}
		return nil, fmt.Errorf("%s: %w: %v", op, session.ErrUnavailable, err)
	}
	if version < 0 || version > int64(^uint32(0)) {
		return nil, fmt.Errorf("%s: %w: version %d out of range", op, session.ErrCorrupt, version)
	}
	rec.Version = uint32(version)

	return &rec, nil
}

// Insert stores rec. A record joining a tombstoned family is stored revoked.
func (s *Store) Insert(ctx context.Context, rec *session.Record) error {
	const op = "session.postgres.Insert"

	if err := rec.Validate(); err != nil {
		return err
	}

	const query = `
		INSERT INTO refresh_tokens (token_hash, user_id, family_id, version, revoked, issued_at, expires_at)
		VALUES ($1, $2, $3, $4,
		        $5 OR EXISTS (SELECT 1 FROM revoked_token_families WHERE family_id = $3),
		        $6, $7)
	`

	_, err := s.db.Exec(ctx, query,
		rec.TokenHash,
		rec.UserID,
		rec.FamilyID,
		int64(rec.Version),
		rec.Revoked,
		rec.IssuedAt,
		rec.ExpiresAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return session.ErrDuplicate
		}
		return fmt.Errorf("%s: %w: %v", op, session.ErrUnavailable, err)
	}

	return nil
}

// MarkRevokedIfActive is one guarded UPDATE; concurrent callers serialize on the row lock
// and only the first sees revoked = FALSE.
func (s *Store) MarkRevokedIfActive(ctx context.Context, hash string) (bool, error) {
	const op = "session.postgres.MarkRevokedIfActive"

	const query = `
		UPDATE refresh_tokens t
		SET revoked = TRUE
		WHERE t.token_hash = $1
		  AND t.revoked = FALSE
		  AND NOT EXISTS (SELECT 1 FROM revoked_token_families f WHERE f.family_id = t.family_id)
		RETURNING t.token_hash
	`

	var got string
	err := s.db.QueryRow(ctx, query, hash).Scan(&got)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("%s: %w: %v", op, session.ErrUnavailable, err)
}

// RevokeFamily tombstones familyID and revokes its records in one transaction.
func (s *Store) RevokeFamily(ctx context.Context, familyID string) (int, error) {
	const op = "session.postgres.RevokeFamily"

	var affected int64
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO revoked_token_families (family_id)
			VALUES ($1)
			ON CONFLICT (family_id) DO NOTHING
		`, familyID); err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, `
			UPDATE refresh_tokens
			SET revoked = TRUE
			WHERE family_id = $1 AND revoked = FALSE
		`, familyID)
		if err != nil {
			return err
		}
		affected = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%s: %w: %v", op, session.ErrUnavailable, err)
	}

	return int(affected), nil
}

// RevokeAllForUser tombstones every family of userID and revokes their records.
func (s *Store) RevokeAllForUser(ctx context.Context, userID string) (int, error) {
	const op = "session.postgres.RevokeAllForUser"

	var affected int64
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO revoked_token_families (family_id)
			SELECT DISTINCT family_id FROM refresh_tokens WHERE user_id = $1
			ON CONFLICT (family_id) DO NOTHING
		`, userID); err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, `
			UPDATE refresh_tokens
			SET revoked = TRUE
			WHERE user_id = $1 AND revoked = FALSE
		`, userID)
		if err != nil {
			return err
		}
		affected = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%s: %w: %v", op, session.ErrUnavailable, err)
	}

	return int(affected), nil
}

// DeleteByHash removes one record; a missing record is not an error.
func (s *Store) DeleteByHash(ctx context.Context, hash string) error {
	const op = "session.postgres.DeleteByHash"

	if _, err := s.db.Exec(ctx, `DELETE FROM refresh_tokens WHERE token_hash = $1`, hash); err != nil {
		return fmt.Errorf("%s: %w: %v", op, session.ErrUnavailable, err)
	}
	return nil
}

// PurgeExpired deletes records that expired at or before cutoff and drops
// tombstones whose families have no records left. It is a retention helper
// for a scheduled job; the engine never calls it.
func (s *Store) PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	const op = "session.postgres.PurgeExpired"

	var deleted int64
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at <= $1`, cutoff)
		if err != nil {
			return err
		}
		deleted = tag.RowsAffected()

		_, err = tx.Exec(ctx, `
			DELETE FROM revoked_token_families f
			WHERE NOT EXISTS (SELECT 1 FROM refresh_tokens t WHERE t.family_id = f.family_id)
		`)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("%s: %w: %v", op, session.ErrUnavailable, err)
	}

	return deleted, nil
}
