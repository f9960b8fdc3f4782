package goRotate

import (
	"errors"

	"github.com/MrEthical07/goRotate/internal/flows"
)

var (
	// ErrRefreshInvalid is returned for every refresh token that cannot be
	// used: malformed, wrong algorithm, bad signature, expired or unknown.
	ErrRefreshInvalid = errors.New("invalid refresh token")
	// ErrRefreshReuse is returned when a consumed refresh token is presented
	// again. The token's whole family has been revoked.
	ErrRefreshReuse = errors.New("refresh token reuse detected, session invalidated")
	// ErrSessionInvalidated is an alias of ErrRefreshReuse.
	ErrSessionInvalidated = ErrRefreshReuse
	// ErrStoreUnavailable reports that the token store could not be reached.
	// No retry is attempted.
	ErrStoreUnavailable = errors.New("token store unavailable")
	// ErrInternal reports a signing failure or another unexpected condition.
	ErrInternal = errors.New("internal error")
	// ErrTokenInvalid is returned by ValidateAccess for any unusable access token.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrUserNotFound is returned by a UserProvider for unknown users.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidUser is returned by Login when the user has no id.
	ErrInvalidUser = errors.New("invalid user")
	// ErrEngineNotReady is returned by methods called on a nil or unbuilt Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// FailureKind is the internal classification of a failed operation. Several
// kinds map to the same public error; the kind is only logged and audited.
type FailureKind = flows.FailureKind

const (
	FailureNone              = flows.FailureNone
	FailureMalformedToken    = flows.FailureMalformedToken
	FailureAlgorithmRejected = flows.FailureAlgorithmRejected
	FailureSignatureInvalid  = flows.FailureSignatureInvalid
	FailureExpired           = flows.FailureExpired
	FailureNotFound          = flows.FailureNotFound
	FailureReuseDetected     = flows.FailureReuseDetected
	FailureStoreFailure      = flows.FailureStoreFailure
	FailureInternal          = flows.FailureInternal
)

// RefreshError carries the failure kind and internal cause behind a public
// error. Error returns only the public message, so it is safe to send to
// clients; errors.Is matches both the public sentinel and the cause.
type RefreshError struct {
	Kind FailureKind
	Err  error
}

func (e *RefreshError) Error() string {
	return publicError(e.Kind).Error()
}

func (e *RefreshError) Unwrap() []error {
	if e.Err == nil {
		return []error{publicError(e.Kind)}
	}
	return []error{publicError(e.Kind), e.Err}
}

// FailureKindOf returns the kind carried by err, or FailureNone when err is
// not a *RefreshError.
func FailureKindOf(err error) FailureKind {
	var re *RefreshError
	if errors.As(err, &re) {
		return re.Kind
	}
	return FailureNone
}

func publicError(kind FailureKind) error {
	switch kind {
	case FailureMalformedToken,
		FailureAlgorithmRejected,
		FailureSignatureInvalid,
		FailureExpired,
		FailureNotFound:
		return ErrRefreshInvalid
	case FailureReuseDetected:
		return ErrRefreshReuse
	case FailureStoreFailure:
		return ErrStoreUnavailable
	default:
		return ErrInternal
	}
}

func newRefreshError(kind FailureKind, cause error) error {
	if kind == FailureNone {
		return nil
	}
	return &RefreshError{Kind: kind, Err: cause}
}
