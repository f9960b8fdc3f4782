package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	goRotate "github.com/MrEthical07/goRotate"
)

type authResultContextKey struct{}

// AuthResultFromContext returns the access claims stored by [Guard].
func AuthResultFromContext(ctx context.Context) (*goRotate.AuthResult, bool) {
	res, ok := ctx.Value(authResultContextKey{}).(*goRotate.AuthResult)
	return res, ok
}

// Guard admits requests carrying a valid bearer access token.
//
// The check is stateless: signature, algorithm, exp and iat are verified with
// the access secret and the token store is never consulted, so an access
// token stays usable until it expires even after its refresh family is
// revoked. Keep AccessTTL short for that reason.
//
// Rejections are 401 with a Bearer challenge. Admitted requests carry the
// claims (see [AuthResultFromContext]) and the remote IP for audit events.
func Guard(engine *goRotate.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if engine == nil || !ok {
				unauthorized(w, "")
				return
			}

			ctx := goRotate.WithClientIP(r.Context(), remoteIP(r.RemoteAddr))
			res, err := engine.ValidateAccess(ctx, token)
			if err != nil {
				unauthorized(w, "invalid_token")
				return
			}

			ctx = context.WithValue(ctx, authResultContextKey{}, res)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// unauthorized writes an RFC 6750 challenge. code is empty when no
// credentials were presented.
func unauthorized(w http.ResponseWriter, code string) {
	challenge := "Bearer"
	if code != "" {
		challenge += ` error="` + code + `"`
	}
	w.Header().Set("WWW-Authenticate", challenge)
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

func bearerToken(value string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(value), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}

	token = strings.TrimSpace(token)
	return token, token != ""
}

func remoteIP(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
