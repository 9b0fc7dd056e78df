// Package converting implements the three workflow stages that take a job
// from an uploaded source file to a delivered output: detect (validate and
// classify the input), convert (run the external tool pipeline), and deliver
// (move the output into place, upload, and record history).
package converting
