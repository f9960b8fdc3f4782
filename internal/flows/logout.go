package flows

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/goRotate/jwt"
	"github.com/MrEthical07/goRotate/session"
)

type LogoutStore interface {
	GetByHash(ctx context.Context, hash string) (*session.Record, error)
	MarkRevokedIfActive(ctx context.Context, hash string) (bool, error)
	RevokeFamily(ctx context.Context, familyID string) (int, error)
	DeleteByHash(ctx context.Context, hash string) error
}

// LogoutDeps captures logout flow dependencies.
type LogoutDeps struct {
	VerifyRefresh func(string) (*jwt.RefreshClaims, error)
	HashToken     func(string) string
	Store         LogoutStore
}

// LogoutResult reports what logout did to the store. Reused is set when the
// token had already been consumed and its family was revoked instead.
type LogoutResult struct {
	Skipped  bool
	Deleted  bool
	Reused   bool
	UserID   string
	FamilyID string
	Revoked  int
	Err      error
}

// RunLogout ends the session behind raw. Empty and unverifiable tokens are
// skipped without touching the store; authentic tokens past exp are still
// processed.
//
// The record is claimed with the same conditional revoke refresh uses and is
// deleted only by the caller that won it. A record that is already revoked is
// never deleted: its family is revoked, exactly as a replayed refresh would.
func RunLogout(ctx context.Context, raw string, deps LogoutDeps) LogoutResult {
	if strings.TrimSpace(raw) == "" {
		return LogoutResult{Skipped: true}
	}
	if _, err := deps.VerifyRefresh(raw); err != nil && !errors.Is(err, jwt.ErrTokenExpired) {
		return LogoutResult{Skipped: true}
	}

	hash := deps.HashToken(raw)
	won, err := deps.Store.MarkRevokedIfActive(ctx, hash)
	if err != nil {
		return LogoutResult{Err: err}
	}
	if won {
		if err := deps.Store.DeleteByHash(ctx, hash); err != nil {
			return LogoutResult{Err: err}
		}
		return LogoutResult{Deleted: true}
	}

	rec, err := deps.Store.GetByHash(ctx, hash)
	if errors.Is(err, session.ErrNotFound) {
		return LogoutResult{}
	}
	if err != nil {
		return LogoutResult{Err: err}
	}

	res := LogoutResult{Reused: true, UserID: rec.UserID, FamilyID: rec.FamilyID}
	res.Revoked, res.Err = deps.Store.RevokeFamily(ctx, rec.FamilyID)
	return res
}
