// Package api defines wire-format types and converters for the IPC and HTTP
// API layer. It translates internal queue and history models into
// transport-friendly DTOs so clients never couple to internal types.
//
// DTOs use camelCase JSON tags. Internal enums (queue.Status,
// format.Category) are exposed as lowercase strings. Timestamps use RFC3339
// with milliseconds. Probe output is passed through as json.RawMessage to
// avoid double-encoding.
package api
