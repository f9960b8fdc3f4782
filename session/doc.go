// Package session persists refresh-token records and provides the atomic
// primitives the rotation engine builds on.
//
// # Records and families
//
// A [Record] is keyed by the SHA-256 of the raw refresh token. Records created
// from one login share a family id. Revoking a family leaves a tombstone so a
// record inserted into that family afterwards is born revoked.
//
// # Backends
//
// [RedisStore] keeps a compact binary blob per record and performs every
// mutation inside a Lua script. [MemoryStore] keeps the same semantics under a
// mutex. A relational backend lives in the postgres subpackage.
//
// # What this package must NOT do
//
//   - Import goRotate or jwt (no upward imports).
//   - Store raw refresh tokens; only their hashes.
package session
