// Package imagemagick wraps ImageMagick CLI interactions for image format
// conversion and image-to-PDF rendering.
package imagemagick
