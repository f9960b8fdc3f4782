//go:build integration
// +build integration

package test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	goRotate "github.com/MrEthical07/goRotate"
	"github.com/MrEthical07/goRotate/session"
)

// cmdCounter is a go-redis Hook that counts Redis round-trips.
type cmdCounter struct {
	commands  atomic.Int64
	pipelines atomic.Int64
}

func (h *cmdCounter) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (h *cmdCounter) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		h.commands.Add(1)
		return next(ctx, cmd)
	}
}

func (h *cmdCounter) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		h.pipelines.Add(1)
		h.commands.Add(int64(len(cmds)))
		return next(ctx, cmds)
	}
}

func (h *cmdCounter) Reset() {
	h.commands.Store(0)
	h.pipelines.Store(0)
}

func (h *cmdCounter) Commands() int64 { return h.commands.Load() }

// newCountedEngine builds an engine over miniredis with a cmdCounter hook.
// Reset the counter before each measured operation.
func newCountedEngine(t *testing.T) (*goRotate.Engine, *cmdCounter) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	counter := &cmdCounter{}
	rdb.AddHook(counter)

	// go-redis may emit handshake commands on first use.
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("warmup ping: %v", err)
	}

	cfg := goRotate.DefaultConfig()
	cfg.JWT.AccessSecret = []byte("budget-access-secret-0123456789abcdef")
	cfg.JWT.RefreshSecret = []byte("budget-refresh-secret-0123456789abcde")

	engine, err := goRotate.New().
		WithConfig(cfg).
		WithStore(session.NewRedisStore(rdb, "rt", time.Minute)).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	})

	counter.Reset()
	return engine, counter
}

// TestRefreshRotationRedisBudget verifies a warm rotation costs one GET plus
// two scripts: the conditional revoke and the insert.
func TestRefreshRotationRedisBudget(t *testing.T) {
	engine, counter := newCountedEngine(t)
	ctx := context.Background()

	pair, err := engine.Login(ctx, goRotate.User{ID: "u1"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	// Warm the script cache so EVALSHA does not fall back to EVAL.
	pair, err = engine.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("warm refresh: %v", err)
	}

	counter.Reset()
	if _, err := engine.Refresh(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	if cmds := counter.Commands(); cmds > 3 {
		t.Errorf("Refresh used %d Redis commands; budget is 3", cmds)
	}
}

// TestReuseCascadeRedisBudget verifies a replay costs one GET and the family
// revoke script (plus EVAL on a cold script cache).
func TestReuseCascadeRedisBudget(t *testing.T) {
	engine, counter := newCountedEngine(t)
	ctx := context.Background()

	pair, err := engine.Login(ctx, goRotate.User{ID: "u1"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := engine.Refresh(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	counter.Reset()
	if _, err := engine.Refresh(ctx, pair.RefreshToken); !errors.Is(err, goRotate.ErrRefreshReuse) {
		t.Fatalf("expected reuse, got %v", err)
	}

	if cmds := counter.Commands(); cmds > 3 {
		t.Errorf("reuse cascade used %d Redis commands; budget is 3", cmds)
	}
}

// TestLogoutRedisBudget verifies unverifiable tokens never reach Redis and a
// real logout is the conditional revoke plus the delete script.
func TestLogoutRedisBudget(t *testing.T) {
	engine, counter := newCountedEngine(t)
	ctx := context.Background()

	for _, raw := range []string{"", "   ", "garbage", "a.b.c"} {
		if err := engine.Logout(ctx, raw); err != nil {
			t.Fatalf("logout %q: %v", raw, err)
		}
	}
	if cmds := counter.Commands(); cmds != 0 {
		t.Fatalf("unverifiable logouts used %d Redis commands", cmds)
	}

	// Warm both scripts so EVALSHA does not fall back to EVAL.
	warm, err := engine.Login(ctx, goRotate.User{ID: "u1"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := engine.Logout(ctx, warm.RefreshToken); err != nil {
		t.Fatalf("warm logout: %v", err)
	}

	pair, err := engine.Login(ctx, goRotate.User{ID: "u1"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	counter.Reset()
	if err := engine.Logout(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if cmds := counter.Commands(); cmds > 2 {
		t.Errorf("Logout used %d Redis commands; budget is 2", cmds)
	}
}

// TestLogoutConsumedTokenRedis verifies a logout with an already rotated
// token keeps the record and revokes the family on a real Redis store.
func TestLogoutConsumedTokenRedis(t *testing.T) {
	engine, _ := newCountedEngine(t)
	ctx := context.Background()

	a0, err := engine.Login(ctx, goRotate.User{ID: "u1"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	a1, err := engine.Refresh(ctx, a0.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if err := engine.Logout(ctx, a0.RefreshToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := engine.Refresh(ctx, a0.RefreshToken); !errors.Is(err, goRotate.ErrRefreshReuse) {
		t.Fatalf("expected reuse, got %v", err)
	}
	if _, err := engine.Refresh(ctx, a1.RefreshToken); !errors.Is(err, goRotate.ErrRefreshReuse) {
		t.Fatalf("expected successor revoked, got %v", err)
	}
}

// TestValidateAccessRedisBudget verifies access validation is stateless.
func TestValidateAccessRedisBudget(t *testing.T) {
	engine, counter := newCountedEngine(t)
	ctx := context.Background()

	pair, err := engine.Login(ctx, goRotate.User{ID: "u1"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	counter.Reset()
	if _, err := engine.ValidateAccess(ctx, pair.AccessToken); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cmds := counter.Commands(); cmds != 0 {
		t.Errorf("ValidateAccess used %d Redis commands; budget is 0", cmds)
	}
}
