// Package session holds the session value types and the bearer-token
// primitives shared by ordinary sessions and password-reset sessions.
//
// A session token is the bearer credential handed to the client in a cookie.
// It is never persisted: stores only ever see the token's one-way hash,
// computed by [IDFromToken]. Losing the database therefore never leaks a
// usable credential.
//
// # What this package must NOT do
//
//   - Perform I/O. Persistence lives behind the store interfaces in the
//     root package.
//   - Import the root package or any sibling package.
package session
