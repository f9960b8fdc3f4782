package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/goRotate/issuer"
	"github.com/MrEthical07/goRotate/session"
)

type LoginStore interface {
	Insert(ctx context.Context, rec *session.Record) error
}

// LoginDeps captures login flow dependencies.
type LoginDeps struct {
	IssuePair func(issuer.Identity, string, uint32) (issuer.Pair, error)
	HashToken func(string) string
	Store     LoginStore
}

// LoginResult carries the new pair or the failing step's error.
type LoginResult struct {
	Failure  FailureKind
	Err      error
	FamilyID string
	Pair     issuer.Pair
}

// RunLogin starts a new family at version 0 and persists its first record.
func RunLogin(ctx context.Context, user issuer.Identity, deps LoginDeps) LoginResult {
	if user.UserID == "" {
		return LoginResult{Failure: FailureInternal, Err: errors.New("user id is required")}
	}

	pair, err := deps.IssuePair(user, "", 0)
	if err != nil {
		return LoginResult{Failure: FailureInternal, Err: err}
	}

	rec := recordFor(deps.HashToken(pair.RefreshToken), pair)
	if err := deps.Store.Insert(ctx, rec); err != nil {
		return LoginResult{Failure: FailureStoreFailure, Err: err, FamilyID: rec.FamilyID}
	}

	return LoginResult{FamilyID: rec.FamilyID, Pair: pair}
}

func recordFor(hash string, pair issuer.Pair) *session.Record {
	return &session.Record{
		TokenHash: hash,
		UserID:    pair.Refresh.UserID,
		FamilyID:  pair.Refresh.FamilyID,
		Version:   pair.Refresh.Version,
		IssuedAt:  pair.RefreshIssuedAt,
		ExpiresAt: pair.RefreshExpiresAt,
	}
}
