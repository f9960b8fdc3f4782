package goRotate

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/goRotate/session"
)

var (
	testAccessSecret  = []byte("access-secret-0123456789abcdef-0123456789")
	testRefreshSecret = []byte("refresh-secret-0123456789abcdef-012345678")
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.AccessSecret = testAccessSecret
	cfg.JWT.RefreshSecret = testRefreshSecret
	cfg.JWT.Issuer = "goRotate-test"
	return cfg
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0).UTC()}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// countingStore wraps a store and counts calls per operation.
type countingStore struct {
	session.Store
	get, insert, mark, revokeFamily, revokeUser, del atomic.Int64
}

func (s *countingStore) GetByHash(ctx context.Context, hash string) (*session.Record, error) {
	s.get.Add(1)
	return s.Store.GetByHash(ctx, hash)
}

func (s *countingStore) Insert(ctx context.Context, rec *session.Record) error {
	s.insert.Add(1)
	return s.Store.Insert(ctx, rec)
}

func (s *countingStore) MarkRevokedIfActive(ctx context.Context, hash string) (bool, error) {
	s.mark.Add(1)
	return s.Store.MarkRevokedIfActive(ctx, hash)
}

func (s *countingStore) RevokeFamily(ctx context.Context, familyID string) (int, error) {
	s.revokeFamily.Add(1)
	return s.Store.RevokeFamily(ctx, familyID)
}

func (s *countingStore) RevokeAllForUser(ctx context.Context, userID string) (int, error) {
	s.revokeUser.Add(1)
	return s.Store.RevokeAllForUser(ctx, userID)
}

func (s *countingStore) DeleteByHash(ctx context.Context, hash string) error {
	s.del.Add(1)
	return s.Store.DeleteByHash(ctx, hash)
}

func (s *countingStore) total() int64 {
	return s.get.Load() + s.insert.Load() + s.mark.Load() +
		s.revokeFamily.Load() + s.revokeUser.Load() + s.del.Load()
}

type engineOptions struct {
	cfg   Config
	store session.Store
	users UserProvider
	sink  AuditSink
	clock *fakeClock
	log   io.Writer
}

func newTestEngine(t *testing.T, opts engineOptions) *Engine {
	t.Helper()

	if opts.cfg.JWT.AccessSecret == nil {
		opts.cfg = testConfig()
	}
	if opts.store == nil {
		opts.store = session.NewMemoryStore()
	}
	logOut := opts.log
	if logOut == nil {
		logOut = io.Discard
	}

	b := New().
		WithConfig(opts.cfg).
		WithStore(opts.store).
		WithLogger(slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: slog.LevelDebug})))
	if opts.users != nil {
		b.WithUserProvider(opts.users)
	}
	if opts.sink != nil {
		b.WithAuditSink(opts.sink)
	}
	if opts.clock != nil {
		b.WithClock(opts.clock.Now)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

// syncBuffer is an io.Writer safe for concurrent log handlers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *syncBuffer) Contains(s string) bool {
	return strings.Contains(b.String(), s)
}

var alice = User{ID: "u1", Email: "alice@example.com", Role: "member"}
