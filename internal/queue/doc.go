// Package queue persists conversion jobs in SQLite and models their
// lifecycle from intake through detection, conversion, and delivery.
package queue
