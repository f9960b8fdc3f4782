package goRotate

import (
	"context"
	"io"
	"time"

	internalaudit "github.com/MrEthical07/goRotate/internal/audit"
	internalmetrics "github.com/MrEthical07/goRotate/internal/metrics"
)

// User is the identity a session is issued for. Email and Role are copied
// into access tokens; only ID is persisted with the refresh record.
type User struct {
	ID    string
	Email string
	Role  string
}

// TokenPair is returned by Login and Refresh.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// AuthResult is returned by [Engine.ValidateAccess].
type AuthResult struct {
	UserID    string
	Email     string
	Role      string
	ExpiresAt time.Time
}

// UserProvider supplies fresh user data during refresh so that rotated
// access tokens reflect the current email and role. Implementations return
// [ErrUserNotFound] (or an error wrapping it) for unknown users.
type UserProvider interface {
	GetUserByID(ctx context.Context, userID string) (User, error)
}

// UserProviderFunc adapts a function to [UserProvider].
type UserProviderFunc func(ctx context.Context, userID string) (User, error)

func (f UserProviderFunc) GetUserByID(ctx context.Context, userID string) (User, error) {
	return f(ctx, userID)
}

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an
// [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// MetricID identifies a specific counter or histogram in the in-process
// metrics system.
type MetricID = internalmetrics.MetricID

const (
	// MetricLoginSuccess counts sessions started by Login.
	MetricLoginSuccess = MetricID(internalmetrics.MetricLoginSuccess)
	// MetricLoginFailure counts Login calls that failed to persist or sign.
	MetricLoginFailure = MetricID(internalmetrics.MetricLoginFailure)
	// MetricRefreshSuccess counts successful rotations.
	MetricRefreshSuccess = MetricID(internalmetrics.MetricRefreshSuccess)
	// MetricRefreshFailure counts refreshes rejected as invalid.
	MetricRefreshFailure = MetricID(internalmetrics.MetricRefreshFailure)
	// MetricRefreshReuseDetected counts refreshes that took the reuse path.
	MetricRefreshReuseDetected = MetricID(internalmetrics.MetricRefreshReuseDetected)
	// MetricRefreshStoreFailure counts refreshes that failed on the store.
	MetricRefreshStoreFailure = MetricID(internalmetrics.MetricRefreshStoreFailure)
	// MetricFamilyRevoked counts records revoked by family cascades.
	MetricFamilyRevoked = MetricID(internalmetrics.MetricFamilyRevoked)
	// MetricLogout counts Logout calls that reached the store.
	MetricLogout = MetricID(internalmetrics.MetricLogout)
	// MetricRevokeAll counts RevokeAllForUser calls.
	MetricRevokeAll = MetricID(internalmetrics.MetricRevokeAll)
	// MetricValidateFailure counts rejected access tokens.
	MetricValidateFailure = MetricID(internalmetrics.MetricValidateFailure)
	// MetricRefreshLatency is the refresh latency histogram.
	MetricRefreshLatency = MetricID(internalmetrics.MetricRefreshLatency)
)

// Metrics holds atomic counters and optional latency histograms.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time copy of all metrics.
type MetricsSnapshot = internalmetrics.Snapshot

// NewMetrics creates a new [Metrics] instance configured by the given
// [MetricsConfig]. When Enabled is false, all operations are no-ops.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return internalmetrics.New(internalmetrics.Config{
		Enabled:       cfg.Enabled,
		EnableLatency: cfg.EnableLatencyHistograms,
	})
}
