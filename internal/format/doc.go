// Package format is the registry of supported file formats and the
// conversions Morph can perform between them. It maps extensions to
// categories (image, audio, video, document, presentation) and answers
// which target formats a given source format supports, including
// cross-category conversions such as image to PDF or video to audio.
package format
