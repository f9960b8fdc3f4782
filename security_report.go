package goRotate

import (
	"time"

	"github.com/MrEthical07/goRotate/session"
)

// SecurityReport summarizes the security-relevant posture of a built Engine.
// It never contains secret material.
type SecurityReport struct {
	SigningAlgorithm   string
	AccessTTL          time.Duration
	RefreshTTL         time.Duration
	Leeway             time.Duration
	IssuerPinned       bool
	AudiencePinned     bool
	AccessSecretBytes  int
	RefreshSecretBytes int
	StoreBackend       string
	ReuseCascade       bool
	AuditEnabled       bool
	MetricsEnabled     bool
}

func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	return SecurityReport{
		SigningAlgorithm:   "HS256",
		AccessTTL:          e.config.JWT.AccessTTL,
		RefreshTTL:         e.config.JWT.RefreshTTL,
		Leeway:             e.config.JWT.Leeway,
		IssuerPinned:       e.config.JWT.Issuer != "",
		AudiencePinned:     e.config.JWT.Audience != "",
		AccessSecretBytes:  len(e.config.JWT.AccessSecret),
		RefreshSecretBytes: len(e.config.JWT.RefreshSecret),
		StoreBackend:       storeBackend(e.store),
		ReuseCascade:       true,
		AuditEnabled:       e.config.Audit.Enabled,
		MetricsEnabled:     e.config.Metrics.Enabled,
	}
}

func storeBackend(s session.Store) string {
	switch s.(type) {
	case nil:
		return ""
	case *session.MemoryStore:
		return "memory"
	case *session.RedisStore:
		return "redis"
	default:
		return "custom"
	}
}
