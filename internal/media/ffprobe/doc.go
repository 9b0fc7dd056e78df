// Package ffprobe shells out to ffprobe to inspect media containers before
// conversion. The detect stage uses it to confirm a file really is the media
// type its extension claims and to capture duration for progress reporting.
package ffprobe
