package goRotate

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/goRotate/session"
)

func TestSecurityInvariantReplayAcrossEnginesSharingStore(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := session.NewRedisStore(rdb, "rt", time.Minute)
	first := newTestEngine(t, engineOptions{store: store})
	second := newTestEngine(t, engineOptions{store: store})
	ctx := context.Background()

	pair, err := first.Login(ctx, alice)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	next, err := first.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("first refresh failed: %v", err)
	}
	if _, err := second.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrRefreshReuse) {
		t.Fatalf("expected ErrRefreshReuse from second engine, got %v", err)
	}
	if _, err := first.Refresh(ctx, next.RefreshToken); !errors.Is(err, ErrRefreshReuse) {
		t.Fatalf("expected successor revoked by cascade, got %v", err)
	}
}

func TestSecurityInvariantStoreHoldsNoRawTokens(t *testing.T) {
	mr, rdb := newTestRedis(t)
	engine := newTestEngine(t, engineOptions{store: session.NewRedisStore(rdb, "rt", time.Minute)})

	pair, err := engine.Login(context.Background(), alice)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	signature := pair.RefreshToken[strings.LastIndex(pair.RefreshToken, ".")+1:]

	for _, key := range mr.Keys() {
		var values []string
		switch mr.Type(key) {
		case "string":
			v, err := mr.Get(key)
			if err != nil {
				t.Fatalf("get %s: %v", key, err)
			}
			values = append(values, v)
		case "set":
			members, err := mr.Members(key)
			if err != nil {
				t.Fatalf("members %s: %v", key, err)
			}
			values = append(values, members...)
		}
		for _, v := range append(values, key) {
			if strings.Contains(v, signature) {
				t.Fatalf("store key %s holds raw token material", key)
			}
		}
	}
	if !mr.Exists("rt:rt:" + session.HashToken(pair.RefreshToken)) {
		t.Fatalf("expected record keyed by token hash, keys=%v", mr.Keys())
	}
}

func TestSecurityInvariantAccessValidationStaysStateless(t *testing.T) {
	store := &countingStore{Store: session.NewMemoryStore()}
	engine := newTestEngine(t, engineOptions{store: store})
	ctx := context.Background()

	pair, err := engine.Login(ctx, alice)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if err := engine.RevokeAllForUser(ctx, alice.ID); err != nil {
		t.Fatalf("revoke all failed: %v", err)
	}

	before := store.total()
	if _, err := engine.ValidateAccess(ctx, pair.AccessToken); err != nil {
		t.Fatalf("expected access token valid until expiry, got %v", err)
	}
	if store.total() != before {
		t.Fatal("access validation must not touch the store")
	}
}

func TestSecurityInvariantClockSkewRejectsFutureIssuedToken(t *testing.T) {
	store := &countingStore{Store: session.NewMemoryStore()}
	ahead := newFakeClock()
	ahead.Advance(90 * time.Second)
	issuerEngine := newTestEngine(t, engineOptions{store: store, clock: ahead})
	strict := newTestEngine(t, engineOptions{store: store, clock: newFakeClock()})

	pair, err := issuerEngine.Login(context.Background(), alice)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	before := store.total()
	_, err = strict.Refresh(context.Background(), pair.RefreshToken)
	if !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected ErrRefreshInvalid for future iat, got %v", err)
	}
	if store.total() != before {
		t.Fatal("rejected token must not reach the store")
	}
}

func TestSecurityInvariantClockSkewAcceptsWithinLeeway(t *testing.T) {
	store := session.NewMemoryStore()
	ahead := newFakeClock()
	ahead.Advance(90 * time.Second)
	cfg := testConfig()
	cfg.JWT.Leeway = 2 * time.Minute

	issuerEngine := newTestEngine(t, engineOptions{store: store, clock: ahead})
	tolerant := newTestEngine(t, engineOptions{cfg: cfg, store: store, clock: newFakeClock()})

	pair, err := issuerEngine.Login(context.Background(), alice)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if _, err := tolerant.Refresh(context.Background(), pair.RefreshToken); err != nil {
		t.Fatalf("expected refresh within leeway, got %v", err)
	}
}

func TestSecurityInvariantRedisTTLWithSkewedEngineClock(t *testing.T) {
	mr, rdb := newTestRedis(t)
	clock := newFakeClock()
	engine := newTestEngine(t, engineOptions{
		store: session.NewRedisStore(rdb, "rt", time.Minute),
		clock: clock,
	})
	ctx := context.Background()

	pair, err := engine.Login(ctx, alice)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	refreshTTL := testConfig().JWT.RefreshTTL
	ttl := mr.TTL("rt:rt:" + session.HashToken(pair.RefreshToken))
	if ttl < refreshTTL || ttl > refreshTTL+time.Minute {
		t.Fatalf("expected record TTL near %s regardless of engine clock, got %s", refreshTTL, ttl)
	}

	clock.Advance(time.Hour)
	if _, err := engine.Refresh(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("record evicted early: %v", err)
	}
}
