// Package auth provides admin authentication for coven-relay.
//
// There is one admin account, configured as a username and a bcrypt password
// hash. A successful POST /admin/login returns an HS256 JWT and sets it as an
// HttpOnly cookie. The same token authorizes:
//
//   - admin-only HTTP endpoints, through Service.RequireAdmin
//   - the registerAdmin event on the WebSocket, checked once at handshake
//
// Visitors are never authenticated.
//
// # Token Management
//
// Hash a password for the config file:
//
//	hash, err := auth.HashPassword("correct horse battery staple")
//
// Tokens are stateless. Logout clears the cookie; rotating jwt_secret
// invalidates every outstanding token.
package auth
