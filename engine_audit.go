package goRotate

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/MrEthical07/goRotate/session"
)

// AuditErrorCode is the stable error label written into audit events.
type AuditErrorCode string

const (
	auditErrInvalidToken  AuditErrorCode = "invalid_token"
	auditErrRefreshReuse  AuditErrorCode = "refresh_reuse"
	auditErrUserNotFound  AuditErrorCode = "user_not_found"
	auditErrInvalidUser   AuditErrorCode = "invalid_user"
	auditErrUnavailable   AuditErrorCode = "backend_unavailable"
	auditErrInternal      AuditErrorCode = "internal_error"
	auditErrEngineMissing AuditErrorCode = "engine_not_ready"
)

// auditFields carries the identifiers shared by all rotation events.
type auditFields struct {
	userID    string
	familyID  string
	tokenHash string
}

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	fields auditFields,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		UserID:    fields.userID,
		FamilyID:  fields.familyID,
		TokenHash: shortHash(fields.tokenHash),
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrRefreshReuse):
		return auditErrRefreshReuse
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrRefreshInvalid),
		errors.Is(err, ErrTokenInvalid):
		return auditErrInvalidToken
	case errors.Is(err, ErrStoreUnavailable),
		errors.Is(err, session.ErrUnavailable):
		return auditErrUnavailable
	case errors.Is(err, ErrInvalidUser):
		return auditErrInvalidUser
	case errors.Is(err, ErrEngineNotReady):
		return auditErrEngineMissing
	default:
		return auditErrInternal
	}
}

// shortHash keeps log and audit output correlatable without exposing the
// full token hash.
func shortHash(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}

func (e *Engine) now() time.Time {
	if e != nil && e.clock != nil {
		return e.clock()
	}
	return time.Now()
}

func uintString(v uint32) string {
	return strconv.FormatUint(uint64(v), 10)
}
