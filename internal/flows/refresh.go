package flows

import (
	"context"
	"errors"
	"math"

	"github.com/MrEthical07/goRotate/issuer"
	"github.com/MrEthical07/goRotate/jwt"
	"github.com/MrEthical07/goRotate/session"
)

// FailureKind classifies flow failures for root-level mapping. The first five
// kinds share one external error.
type FailureKind int

const (
	FailureNone FailureKind = iota
	FailureMalformedToken
	FailureAlgorithmRejected
	FailureSignatureInvalid
	FailureExpired
	FailureNotFound
	FailureReuseDetected
	FailureStoreFailure
	FailureInternal
)

func (k FailureKind) String() string {
	switch k {
	case FailureNone:
		return "none"
	case FailureMalformedToken:
		return "malformed_token"
	case FailureAlgorithmRejected:
		return "algorithm_rejected"
	case FailureSignatureInvalid:
		return "signature_invalid"
	case FailureExpired:
		return "expired"
	case FailureNotFound:
		return "not_found"
	case FailureReuseDetected:
		return "reuse_detected"
	case FailureStoreFailure:
		return "store_failure"
	case FailureInternal:
		return "internal"
	default:
		return "unknown"
	}
}

var (
	// ErrTokenConsumed is the cause recorded when a revoked token is presented again.
	ErrTokenConsumed = errors.New("refresh token already consumed")
	// ErrRecordMismatch is the cause recorded when claims disagree with the stored record.
	ErrRecordMismatch = errors.New("refresh claims do not match stored record")
	// ErrVersionExhausted is the cause recorded when a family cannot rotate further.
	ErrVersionExhausted = errors.New("refresh version exhausted")
)

type RefreshStore interface {
	GetByHash(ctx context.Context, hash string) (*session.Record, error)
	MarkRevokedIfActive(ctx context.Context, hash string) (bool, error)
	RevokeFamily(ctx context.Context, familyID string) (int, error)
	Insert(ctx context.Context, rec *session.Record) error
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	VerifyRefresh func(string) (*jwt.RefreshClaims, error)
	HashToken     func(string) string
	// LoadUser returns fresh identity data for the record's user. Nil keeps
	// the user id only.
	LoadUser     func(context.Context, string) (issuer.Identity, error)
	IssuePair    func(issuer.Identity, string, uint32) (issuer.Pair, error)
	Store        RefreshStore
	UserNotFound error
}

// RefreshResult carries either the issued pair or failure metadata.
type RefreshResult struct {
	Failure  FailureKind
	Err      error
	UserID   string
	FamilyID string
	Version  uint32
	// Revoked and CascadeErr report the family revoke on the reuse path.
	Revoked    int
	CascadeErr error
	Pair       issuer.Pair
}

// RunRefresh verifies, consumes and rotates one refresh token.
//
// Order matters: nothing touches the store until the token verifies, and the
// only write before issuance is the conditional revoke. A token that is
// already revoked, or loses the conditional revoke, revokes its whole family.
func RunRefresh(ctx context.Context, raw string, deps RefreshDeps) RefreshResult {
	claims, err := deps.VerifyRefresh(raw)
	if err != nil {
		return RefreshResult{Failure: verifyFailure(err), Err: err}
	}

	hash := deps.HashToken(raw)
	rec, err := deps.Store.GetByHash(ctx, hash)
	if err != nil {
		res := RefreshResult{Err: err, UserID: claims.UserID, FamilyID: claims.FamilyID, Version: claims.Version}
		if errors.Is(err, session.ErrNotFound) {
			res.Failure = FailureNotFound
		} else {
			res.Failure = FailureStoreFailure
		}
		return res
	}

	res := RefreshResult{UserID: rec.UserID, FamilyID: rec.FamilyID, Version: rec.Version}
	if rec.UserID != claims.UserID || rec.FamilyID != claims.FamilyID || rec.Version != claims.Version {
		res.Failure = FailureNotFound
		res.Err = ErrRecordMismatch
		return res
	}

	if rec.Revoked {
		return revokeOnReuse(ctx, res, deps)
	}
	if rec.Version == math.MaxUint32 {
		res.Failure = FailureMalformedToken
		res.Err = ErrVersionExhausted
		return res
	}

	won, err := deps.Store.MarkRevokedIfActive(ctx, hash)
	if err != nil {
		res.Failure = FailureStoreFailure
		res.Err = err
		return res
	}
	if !won {
		return revokeOnReuse(ctx, res, deps)
	}

	user := issuer.Identity{UserID: rec.UserID}
	if deps.LoadUser != nil {
		user, err = deps.LoadUser(ctx, rec.UserID)
		if err != nil {
			res.Err = err
			if deps.UserNotFound != nil && errors.Is(err, deps.UserNotFound) {
				res.Failure = FailureNotFound
			} else {
				res.Failure = FailureStoreFailure
			}
			return res
		}
		user.UserID = rec.UserID
	}

	pair, err := deps.IssuePair(user, rec.FamilyID, rec.Version+1)
	if err != nil {
		res.Failure = FailureInternal
		res.Err = err
		return res
	}

	if err := deps.Store.Insert(ctx, recordFor(deps.HashToken(pair.RefreshToken), pair)); err != nil {
		res.Failure = FailureStoreFailure
		res.Err = err
		return res
	}

	res.Version = pair.Refresh.Version
	res.Pair = pair
	return res
}

func revokeOnReuse(ctx context.Context, res RefreshResult, deps RefreshDeps) RefreshResult {
	res.Failure = FailureReuseDetected
	res.Err = ErrTokenConsumed
	res.Revoked, res.CascadeErr = deps.Store.RevokeFamily(ctx, res.FamilyID)
	return res
}

func verifyFailure(err error) FailureKind {
	switch {
	case errors.Is(err, jwt.ErrAlgorithmRejected):
		return FailureAlgorithmRejected
	case errors.Is(err, jwt.ErrSignatureInvalid):
		return FailureSignatureInvalid
	case errors.Is(err, jwt.ErrTokenExpired):
		return FailureExpired
	default:
		return FailureMalformedToken
	}
}
