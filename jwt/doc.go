// Package jwt signs and verifies the access and refresh tokens handled by the
// rotation engine. HS256 is compiled in; the header's alg is never trusted.
package jwt
