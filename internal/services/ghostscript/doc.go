// Package ghostscript wraps Ghostscript for PDF compression.
package ghostscript
