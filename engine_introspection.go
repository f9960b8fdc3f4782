package goRotate

import (
	"context"
	"time"

	"github.com/MrEthical07/goRotate/session"
)

// HealthStatus is an on-demand store health result.
type HealthStatus struct {
	StoreAvailable bool
	StoreLatency   time.Duration
}

// Health pings the store when it supports [session.Pinger]. Stores without a
// ping (the in-memory store) report available with zero latency.
func (e *Engine) Health(ctx context.Context) HealthStatus {
	if !e.ready() {
		return HealthStatus{}
	}

	pinger, ok := e.store.(session.Pinger)
	if !ok {
		return HealthStatus{StoreAvailable: true}
	}

	latency, err := pinger.Ping(ctx)
	if err != nil {
		e.logger.WarnContext(ctx, "goRotate: store health check failed", "error", err)
	}
	return HealthStatus{
		StoreAvailable: err == nil,
		StoreLatency:   latency,
	}
}
