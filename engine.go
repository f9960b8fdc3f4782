package goRotate

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	internalaudit "github.com/MrEthical07/goRotate/internal/audit"
	"github.com/MrEthical07/goRotate/internal/flows"
	"github.com/MrEthical07/goRotate/issuer"
	"github.com/MrEthical07/goRotate/session"
)

// Engine rotates refresh tokens and detects their reuse.
//
// An Engine holds no mutable state of its own beyond metrics and the audit
// queue; all token state lives in the store, so several Engines (or several
// processes) may share one store.
type Engine struct {
	config       Config
	store        session.Store
	issuer       *issuer.Issuer
	userProvider UserProvider
	audit        *internalaudit.Dispatcher
	metrics      *Metrics
	logger       *slog.Logger
	clock        func() time.Time
	deps         flows.Deps
}

// Close flushes and stops the audit dispatcher. The store is not closed.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns the number of audit events dropped under backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) ready() bool {
	return e != nil && e.store != nil && e.issuer != nil
}

// Login starts a new token family for user at version 0 and persists its
// first refresh record. Credential checks happen before Login is called.
func (e *Engine) Login(ctx context.Context, user User) (TokenPair, error) {
	if !e.ready() {
		return TokenPair{}, ErrEngineNotReady
	}
	if strings.TrimSpace(user.ID) == "" {
		return TokenPair{}, ErrInvalidUser
	}

	res := flows.RunLogin(ctx, identityOf(user), e.deps.Login)
	if res.Failure != flows.FailureNone {
		e.metricInc(MetricLoginFailure)
		err := newRefreshError(res.Failure, res.Err)
		e.logger.ErrorContext(ctx, "goRotate: login failed",
			slog.String("kind", res.Failure.String()),
			slog.String("user_id", user.ID),
			slog.Any("error", res.Err),
		)
		e.emitAudit(ctx, internalaudit.EventLoginFailure, false, auditFields{userID: user.ID, familyID: res.FamilyID}, err, nil)
		return TokenPair{}, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, internalaudit.EventLoginSuccess, true, auditFields{userID: user.ID, familyID: res.FamilyID}, nil, nil)
	return pairOf(res.Pair), nil
}

// Refresh consumes raw and returns a new pair in the same family at the next
// version.
//
// Every unusable token yields an error matching [ErrRefreshInvalid]. A token
// that was already consumed yields [ErrRefreshReuse] after its whole family is
// revoked. Store outages yield [ErrStoreUnavailable]. Use [FailureKindOf] to
// get the internal classification for logging.
func (e *Engine) Refresh(ctx context.Context, raw string) (TokenPair, error) {
	if !e.ready() {
		return TokenPair{}, ErrEngineNotReady
	}
	if e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() { e.metrics.Observe(MetricRefreshLatency, time.Since(start)) }()
	}

	res := flows.RunRefresh(ctx, raw, e.deps.Refresh)

	fields := auditFields{userID: res.UserID, familyID: res.FamilyID}
	if res.FamilyID != "" {
		fields.tokenHash = session.HashToken(raw)
	}

	if res.Failure == flows.FailureNone {
		e.metricInc(MetricRefreshSuccess)
		e.emitAudit(ctx, internalaudit.EventRefreshSuccess, true, fields, nil, func() map[string]string {
			return map[string]string{"version": uintString(res.Version)}
		})
		return pairOf(res.Pair), nil
	}

	err := newRefreshError(res.Failure, res.Err)
	attrs := []any{
		slog.String("kind", res.Failure.String()),
		slog.String("user_id", res.UserID),
		slog.String("family_id", res.FamilyID),
		slog.String("token", shortHash(fields.tokenHash)),
	}

	switch res.Failure {
	case flows.FailureReuseDetected:
		e.metricInc(MetricRefreshReuseDetected)
		if e.metrics != nil {
			e.metrics.Add(MetricFamilyRevoked, uint64(res.Revoked))
		}
		e.logger.WarnContext(ctx, "goRotate: refresh token reuse detected, family revoked",
			append(attrs, slog.Int("revoked", res.Revoked))...)
		if res.CascadeErr != nil {
			e.logger.ErrorContext(ctx, "goRotate: family revoke failed",
				append(attrs, slog.Any("error", res.CascadeErr))...)
		}
		e.emitAudit(ctx, internalaudit.EventRefreshReuseDetected, false, fields, err, func() map[string]string {
			m := map[string]string{"revoked": uintString(uint32(res.Revoked))}
			if res.CascadeErr != nil {
				m["cascade"] = "failed"
			}
			return m
		})

	case flows.FailureStoreFailure:
		e.metricInc(MetricRefreshStoreFailure)
		e.logger.ErrorContext(ctx, "goRotate: refresh store failure",
			append(attrs, slog.Any("error", res.Err))...)
		e.emitAudit(ctx, internalaudit.EventRefreshStoreFailure, false, fields, err, nil)

	case flows.FailureInternal:
		e.metricInc(MetricRefreshFailure)
		e.logger.ErrorContext(ctx, "goRotate: refresh failed",
			append(attrs, slog.Any("error", res.Err))...)
		e.emitAudit(ctx, internalaudit.EventRefreshInvalid, false, fields, err, nil)

	default:
		e.metricInc(MetricRefreshFailure)
		e.logger.DebugContext(ctx, "goRotate: refresh rejected",
			append(attrs, slog.Any("error", res.Err))...)
		e.emitAudit(ctx, internalaudit.EventRefreshInvalid, false, fields, err, func() map[string]string {
			return map[string]string{"kind": res.Failure.String()}
		})
	}

	return TokenPair{}, err
}

// Logout ends the session behind raw and deletes its record. An empty or
// unverifiable token is a no-op returning nil, and so is a token whose record
// is already gone. An authentic token past its expiry is still deleted.
//
// A token that was already rotated is treated as a replay: its record is kept
// and its whole family is revoked, so the successor issued from it stops
// working too. Logout still returns nil in that case.
func (e *Engine) Logout(ctx context.Context, raw string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	res := flows.RunLogout(ctx, raw, e.deps.Logout)
	if res.Skipped {
		return nil
	}

	fields := auditFields{userID: res.UserID, familyID: res.FamilyID, tokenHash: session.HashToken(raw)}
	if res.Reused {
		e.metricInc(MetricRefreshReuseDetected)
		if e.metrics != nil {
			e.metrics.Add(MetricFamilyRevoked, uint64(res.Revoked))
		}
		e.logger.WarnContext(ctx, "goRotate: logout with consumed refresh token, family revoked",
			slog.String("user_id", res.UserID),
			slog.String("family_id", res.FamilyID),
			slog.String("token", shortHash(fields.tokenHash)),
			slog.Int("revoked", res.Revoked),
		)
		if res.Err != nil {
			err := newRefreshError(flows.FailureStoreFailure, res.Err)
			e.logger.ErrorContext(ctx, "goRotate: family revoke failed",
				slog.String("family_id", res.FamilyID),
				slog.Any("error", res.Err),
			)
			e.emitAudit(ctx, internalaudit.EventRefreshReuseDetected, false, fields, err, func() map[string]string {
				return map[string]string{"via": "logout", "cascade": "failed"}
			})
			return err
		}
		e.emitAudit(ctx, internalaudit.EventRefreshReuseDetected, false, fields, ErrRefreshReuse, func() map[string]string {
			return map[string]string{"via": "logout", "revoked": uintString(uint32(res.Revoked))}
		})
		return nil
	}

	if res.Err != nil {
		err := newRefreshError(flows.FailureStoreFailure, res.Err)
		e.logger.ErrorContext(ctx, "goRotate: logout store failure",
			slog.String("token", shortHash(fields.tokenHash)),
			slog.Any("error", res.Err),
		)
		e.emitAudit(ctx, internalaudit.EventLogout, false, fields, err, nil)
		return err
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, internalaudit.EventLogout, true, fields, nil, nil)
	return nil
}

// RevokeAllForUser revokes every family of userID. Tokens issued afterwards
// through Login are unaffected.
func (e *Engine) RevokeAllForUser(ctx context.Context, userID string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	n, cause := flows.RunRevokeAll(ctx, userID, e.deps.RevokeAll)
	if cause != nil {
		if errors.Is(cause, flows.ErrEmptyUserID) {
			return ErrInvalidUser
		}
		err := newRefreshError(flows.FailureStoreFailure, cause)
		e.logger.ErrorContext(ctx, "goRotate: revoke all failed",
			slog.String("user_id", userID),
			slog.Any("error", cause),
		)
		e.emitAudit(ctx, internalaudit.EventRevokeAll, false, auditFields{userID: userID}, err, nil)
		return err
	}

	e.metricInc(MetricRevokeAll)
	e.logger.InfoContext(ctx, "goRotate: revoked all sessions",
		slog.String("user_id", userID),
		slog.Int("revoked", n),
	)
	e.emitAudit(ctx, internalaudit.EventRevokeAll, true, auditFields{userID: userID}, nil, func() map[string]string {
		return map[string]string{"revoked": uintString(uint32(n))}
	})
	return nil
}

// ValidateAccess verifies an access token locally. It never consults the
// store, so revoking a family does not invalidate access tokens already
// issued to it; they expire on their own.
func (e *Engine) ValidateAccess(ctx context.Context, token string) (*AuthResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	res := flows.RunValidate(token, e.deps.Validate)
	if res.Failure != flows.FailureNone {
		e.metricInc(MetricValidateFailure)
		e.logger.DebugContext(ctx, "goRotate: access token rejected",
			slog.String("kind", res.Failure.String()),
		)
		return nil, ErrTokenInvalid
	}

	out := &AuthResult{
		UserID: res.Claims.UserID,
		Email:  res.Claims.Email,
		Role:   res.Claims.Role,
	}
	if res.Claims.ExpiresAt != nil {
		out.ExpiresAt = res.Claims.ExpiresAt.Time
	}
	return out, nil
}

func (e *Engine) buildFlowDeps() flows.Deps {
	refresh := flows.RefreshDeps{
		VerifyRefresh: e.issuer.VerifyRefresh,
		HashToken:     session.HashToken,
		IssuePair:     e.issuer.IssuePair,
		Store:         e.store,
		UserNotFound:  ErrUserNotFound,
	}
	if e.userProvider != nil {
		up := e.userProvider
		refresh.LoadUser = func(ctx context.Context, userID string) (issuer.Identity, error) {
			user, err := up.GetUserByID(ctx, userID)
			if err != nil {
				return issuer.Identity{}, err
			}
			return identityOf(user), nil
		}
	}

	return flows.Deps{
		Login: flows.LoginDeps{
			IssuePair: e.issuer.IssuePair,
			HashToken: session.HashToken,
			Store:     e.store,
		},
		Refresh: refresh,
		Logout: flows.LogoutDeps{
			VerifyRefresh: e.issuer.VerifyRefresh,
			HashToken:     session.HashToken,
			Store:         e.store,
		},
		RevokeAll: flows.RevokeAllDeps{
			Store: e.store,
		},
		Validate: flows.ValidateDeps{
			VerifyAccess: e.issuer.VerifyAccess,
		},
	}
}

func identityOf(u User) issuer.Identity {
	return issuer.Identity{UserID: u.ID, Email: u.Email, Role: u.Role}
}

func pairOf(p issuer.Pair) TokenPair {
	return TokenPair{
		AccessToken:      p.AccessToken,
		RefreshToken:     p.RefreshToken,
		AccessExpiresAt:  p.AccessExpiresAt,
		RefreshExpiresAt: p.RefreshExpiresAt,
	}
}
