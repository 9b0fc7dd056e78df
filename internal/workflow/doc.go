// Package workflow advances queue jobs through the conversion pipeline.
//
// The Manager runs a fixed-size worker pool, polls the queue, reclaims stale
// work via heartbeats, and feeds jobs into the registered stage handlers
// (detector, converter, deliverer) while capturing progress and failure
// metadata. It also aggregates queue stats, calls stage health checks, and
// emits a queue-drained notification when the pool runs out of work.
//
// Add new lifecycle stages by extending StageSet, updating the queue status
// enums, and teaching the manager how to transition jobs; this package is the
// authoritative home for that coordination logic.
package workflow
