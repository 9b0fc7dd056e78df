// Package daemon wires the long-running morph services together: the queue
// and history stores, the workflow manager, the HTTP API server, and the
// inbox watcher. It enforces single-instance execution with a lock file and
// exposes the queue operations the IPC server delegates to.
package daemon
