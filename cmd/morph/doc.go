// Command morph is the CLI for the morph conversion daemon. Most commands
// talk to the daemon over its Unix socket; queue commands fall back to direct
// database access when the daemon is not running.
package main
