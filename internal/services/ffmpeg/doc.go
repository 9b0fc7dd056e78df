// Package ffmpeg wraps FFmpeg CLI interactions for audio and video
// conversion, audio extraction, and animated GIF rendering.
package ffmpeg
