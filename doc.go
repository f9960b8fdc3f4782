// Package goRotate rotates refresh tokens and detects their reuse.
//
// Every login starts a token family. Each refresh consumes the presented token
// with one conditional store write and issues a successor in the same family
// at the next version. Presenting a consumed token again, or losing the race
// for the conditional write, revokes the whole family.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build]. The rotation guarantee holds across
// processes that share one store.
//
// # Architecture boundaries
//
// goRotate is the public surface. It exposes [Engine], [Builder], [Config], the
// error taxonomy and value types. Signing lives in jwt, pair construction in
// issuer, persistence in session (Redis, memory) and session/postgres. The
// rotation state machine lives in internal/flows and is never exported.
//
// # What this package must NOT do
//
//   - Trust the alg header of a presented token.
//   - Put failure kinds or causes into error messages returned to callers.
//   - Retry store operations or roll back a conditional revoke.
//   - Log raw tokens or secrets.
package goRotate
