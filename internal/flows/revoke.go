package flows

import (
	"context"
	"errors"
	"strings"
)

// ErrEmptyUserID is returned when a bulk revoke names no user.
var ErrEmptyUserID = errors.New("user id is required")

type RevokeAllStore interface {
	RevokeAllForUser(ctx context.Context, userID string) (int, error)
}

// RevokeAllDeps captures bulk revoke dependencies.
type RevokeAllDeps struct {
	Store RevokeAllStore
}

// RunRevokeAll revokes every family of userID and returns the number of
// records that changed state.
func RunRevokeAll(ctx context.Context, userID string, deps RevokeAllDeps) (int, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, ErrEmptyUserID
	}
	return deps.Store.RevokeAllForUser(ctx, userID)
}
