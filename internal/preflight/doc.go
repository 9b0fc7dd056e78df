// Package preflight runs startup checks for the daemon and status output:
// directory permissions, free disk space, and external tool availability.
package preflight
