// Package history persists client records and finished-conversion history in
// a SQLite database separate from the live queue. It backs the admin stats,
// client ban list, and per-client history surfaces.
package history
