// Package middleware adapts goRotate.Engine to net/http.
//
//   - [Guard] validates the bearer access token and stores the result in the
//     request context.
//   - [RequireRole] gates a route on the validated role.
//   - [StatusForError] and [WriteError] map engine errors to HTTP responses.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly.
//   - Touch the token store. Access validation is stateless.
package middleware
