package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by GetByHash when no record matches.
	ErrNotFound = errors.New("refresh record not found")
	// ErrDuplicate is returned by Insert when the token hash already exists.
	ErrDuplicate = errors.New("refresh record already exists")
	// ErrUnavailable wraps every backend failure (connectivity, timeouts, driver errors).
	ErrUnavailable = errors.New("token store unavailable")
	// ErrCorrupt is returned when a stored record cannot be decoded.
	ErrCorrupt = errors.New("refresh record corrupt")
	// ErrInvalidRecord is returned by Insert for records missing identity fields.
	ErrInvalidRecord = errors.New("invalid refresh record")
)

// Record defines a public type used by goRotate APIs.
//
// Record mirrors one issued refresh token. Only Revoked changes after insert.
type Record struct {
	TokenHash string
	UserID    string
	FamilyID  string
	Version   uint32
	Revoked   bool
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Store is the persistence contract consumed by the rotation engine.
//
// MarkRevokedIfActive must be a single conditional write: it returns true only
// for the one caller that moved the record from active to revoked. GetByHash
// reports a record as revoked when either the record or its family is revoked.
// DeleteByHash treats a missing record as success.
type Store interface {
	GetByHash(ctx context.Context, hash string) (*Record, error)
	Insert(ctx context.Context, rec *Record) error
	MarkRevokedIfActive(ctx context.Context, hash string) (bool, error)
	RevokeFamily(ctx context.Context, familyID string) (int, error)
	RevokeAllForUser(ctx context.Context, userID string) (int, error)
	DeleteByHash(ctx context.Context, hash string) error
}

// Pinger is implemented by stores that can report backend availability.
type Pinger interface {
	Ping(ctx context.Context) (time.Duration, error)
}

// HashToken returns the hex SHA-256 digest used as a record key.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Validate checks the identity fields every backend requires.
func (r *Record) Validate() error {
	if r == nil {
		return ErrInvalidRecord
	}
	if r.TokenHash == "" || r.UserID == "" || r.FamilyID == "" {
		return ErrInvalidRecord
	}
	if len(r.UserID) > 255 || len(r.FamilyID) > 255 {
		return ErrInvalidRecord
	}
	if !r.ExpiresAt.After(r.IssuedAt) {
		return ErrInvalidRecord
	}
	return nil
}

func (r *Record) clone() *Record {
	cp := *r
	return &cp
}
