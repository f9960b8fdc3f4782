package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	goRotate "github.com/MrEthical07/goRotate"
	"github.com/MrEthical07/goRotate/session"
)

func newEngine(t *testing.T) *goRotate.Engine {
	t.Helper()

	cfg := goRotate.DefaultConfig()
	cfg.JWT.AccessSecret = []byte("access-secret-0123456789abcdef-0123456789")
	cfg.JWT.RefreshSecret = []byte("refresh-secret-0123456789abcdef-012345678")

	engine, err := goRotate.New().WithConfig(cfg).WithStore(session.NewMemoryStore()).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

func serve(h http.Handler, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/private", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestGuardInjectsAuthResult(t *testing.T) {
	engine := newEngine(t)
	pair, err := engine.Login(context.Background(), goRotate.User{ID: "u1", Role: "admin"})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	var got *goRotate.AuthResult
	h := Guard(engine)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = AuthResultFromContext(r.Context())
	}))

	rec := serve(h, "Bearer "+pair.AccessToken)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got == nil || got.UserID != "u1" || got.Role != "admin" {
		t.Fatalf("unexpected auth result %+v", got)
	}
}

func TestGuardRejects(t *testing.T) {
	engine := newEngine(t)
	pair, err := engine.Login(context.Background(), goRotate.User{ID: "u1"})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next must not run")
	})

	tests := []struct {
		name   string
		engine *goRotate.Engine
		header string
	}{
		{name: "missing header", engine: engine},
		{name: "wrong scheme", engine: engine, header: "Basic " + pair.AccessToken},
		{name: "empty bearer", engine: engine, header: "Bearer  "},
		{name: "refresh token as access", engine: engine, header: "Bearer " + pair.RefreshToken},
		{name: "garbage", engine: engine, header: "Bearer a.b.c"},
		{name: "nil engine", header: "Bearer " + pair.AccessToken},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := serve(Guard(tc.engine)(next), tc.header)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rec.Code)
			}
			if !strings.HasPrefix(rec.Header().Get("WWW-Authenticate"), "Bearer") {
				t.Fatalf("expected Bearer challenge, got %q", rec.Header().Get("WWW-Authenticate"))
			}
		})
	}
}

func TestGuardStaysStatelessAfterRevoke(t *testing.T) {
	engine := newEngine(t)
	ctx := context.Background()
	pair, err := engine.Login(ctx, goRotate.User{ID: "u1"})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if err := engine.RevokeAllForUser(ctx, "u1"); err != nil {
		t.Fatalf("RevokeAllForUser failed: %v", err)
	}

	h := Guard(engine)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	if rec := serve(h, "bearer "+pair.AccessToken); rec.Code != http.StatusOK {
		t.Fatalf("access token must stay valid until exp, got %d", rec.Code)
	}
}

func TestGuardInvalidTokenChallenge(t *testing.T) {
	engine := newEngine(t)
	h := Guard(engine)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := serve(h, "Bearer a.b.c")
	if got := rec.Header().Get("WWW-Authenticate"); got != `Bearer error="invalid_token"` {
		t.Fatalf("unexpected challenge %q", got)
	}
	rec = serve(h, "")
	if got := rec.Header().Get("WWW-Authenticate"); got != "Bearer" {
		t.Fatalf("unexpected challenge %q", got)
	}
}

func TestRequireRole(t *testing.T) {
	engine := newEngine(t)
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	h := Guard(engine)(RequireRole("admin")(ok))

	admin, err := engine.Login(context.Background(), goRotate.User{ID: "u1", Role: "admin"})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	member, err := engine.Login(context.Background(), goRotate.User{ID: "u2", Role: "member"})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if rec := serve(h, "Bearer "+admin.AccessToken); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d", rec.Code)
	}
	if rec := serve(h, "Bearer "+member.AccessToken); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for member, got %d", rec.Code)
	}
	if rec := serve(RequireRole("admin")(ok), ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without guard, got %d", rec.Code)
	}
}

func TestStatusForError(t *testing.T) {
	engine := newEngine(t)
	ctx := context.Background()

	pair, err := engine.Login(ctx, goRotate.User{ID: "u1"})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if _, err := engine.Refresh(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	_, reuseErr := engine.Refresh(ctx, pair.RefreshToken)
	_, invalidErr := engine.Refresh(ctx, "garbage")

	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: http.StatusOK},
		{name: "reuse", err: reuseErr, want: http.StatusUnauthorized},
		{name: "invalid", err: invalidErr, want: http.StatusUnauthorized},
		{name: "store", err: fmt.Errorf("wrapped: %w", goRotate.ErrStoreUnavailable), want: http.StatusServiceUnavailable},
		{name: "invalid user", err: goRotate.ErrInvalidUser, want: http.StatusBadRequest},
		{name: "other", err: errors.New("boom"), want: http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := StatusForError(tc.err); got != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, got)
			}
		})
	}

	rec := httptest.NewRecorder()
	WriteError(rec, reuseErr)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if body := rec.Body.String(); body != "refresh token reuse detected, session invalidated\n" {
		t.Fatalf("unexpected body %q", body)
	}
}
