// Package storage uploads delivered conversion outputs to a MinIO (or any
// S3-compatible) bucket. Uploads are optional; when storage is disabled in
// config the daemon skips this package entirely.
package storage
