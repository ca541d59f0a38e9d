// Package auth provides token authentication and role-based authorisation
// for the camlink HTTP API.
//
// Tokens are HS256 JWTs carrying a subject and one of three roles:
//   - viewer: read devices, status and the audit log
//   - operator: viewer plus commands and file transfers
//   - admin: operator plus discovery and transport settings
//
// The role-permission mapping is static; there is no user database. Tokens
// are minted by the daemon (camlinkd -issue-token) with the configured
// secret.
package auth
