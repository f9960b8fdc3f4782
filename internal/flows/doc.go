// Package flows contains pure-function orchestrators for every Engine operation.
//
// Each flow function (RunLogin, RunRefresh, RunLogout, RunRevokeAll,
// RunValidate) accepts a typed dependency struct and returns a result value.
// Flows never log, count metrics or emit audit events; the Engine does that
// from the returned result.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import goRotate (to avoid import cycles).
//   - Retry store calls or undo a committed store mutation.
package flows
