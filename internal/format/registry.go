package format

import (
	"sort"
	"strings"
)

// Category classifies a file format by media family.
type Category string

const (
	CategoryImage        Category = "image"
	CategoryAudio        Category = "audio"
	CategoryVideo        Category = "video"
	CategoryDocument     Category = "document"
	CategoryPresentation Category = "presentation"
)

// AllCategories returns the known categories in display order.
func AllCategories() []Category {
	return []Category{CategoryImage, CategoryAudio, CategoryVideo, CategoryDocument, CategoryPresentation}
}

var categoryFormats = map[Category][]string{
	CategoryImage:        {"png", "jpg", "jpeg", "bmp", "gif", "webp", "tiff"},
	CategoryAudio:        {"mp3", "wav", "aac", "ogg", "flac", "m4a"},
	CategoryVideo:        {"mp4", "avi", "mov", "mkv", "webm"},
	CategoryDocument:     {"pdf", "docx", "doc", "txt", "xlsx", "odt", "csv", "html", "md"},
	CategoryPresentation: {"pptx", "ppt"},
}

var formatCategory = func() map[string]Category {
	m := make(map[string]Category)
	for category, formats := range categoryFormats {
		for _, f := range formats {
			m[f] = category
		}
	}
	return m
}()

// sameCategoryTargets lists in-category conversion targets per source format.
var sameCategoryTargets = map[string][]string{
	"png":  {"jpg", "jpeg", "bmp", "gif", "webp", "tiff"},
	"jpg":  {"png", "jpeg", "bmp", "gif", "webp", "tiff"},
	"jpeg": {"png", "jpg", "bmp", "gif", "webp", "tiff"},
	"bmp":  {"png", "jpg", "jpeg", "gif", "webp", "tiff"},
	"gif":  {"png", "jpg", "jpeg", "bmp", "webp", "tiff"},
	"webp": {"png", "jpg", "jpeg", "bmp", "gif", "tiff"},
	"tiff": {"png", "jpg", "jpeg", "bmp", "gif", "webp"},

	"mp3":  {"wav", "aac", "ogg", "flac", "m4a"},
	"wav":  {"mp3", "aac", "ogg", "flac", "m4a"},
	"aac":  {"mp3", "wav", "ogg", "flac", "m4a"},
	"ogg":  {"mp3", "wav", "aac", "flac", "m4a"},
	"flac": {"mp3", "wav", "aac", "ogg", "m4a"},
	"m4a":  {"mp3", "wav", "aac", "ogg", "flac"},

	"mp4":  {"avi", "mov", "mkv", "webm"},
	"avi":  {"mp4", "mov", "mkv", "webm"},
	"mov":  {"mp4", "avi", "mkv", "webm"},
	"mkv":  {"mp4", "avi", "mov", "webm"},
	"webm": {"mp4", "avi", "mov", "mkv"},

	"pdf":  {"docx", "txt", "xlsx"},
	"docx": {"pdf", "txt"},
	"doc":  {"pdf", "docx", "txt"},
	"txt":  {"pdf", "docx"},
	"xlsx": {"pdf", "csv"},
	"odt":  {"pdf"},
	"csv":  {"pdf", "xlsx"},
	"html": {"pdf", "txt"},
	"md":   {"pdf", "txt"},

	"pptx": {"pdf"},
	"ppt":  {"pdf"},
}

// pdfImageTargets are the raster targets supported when rendering a PDF.
var pdfImageTargets = []string{"jpg", "jpeg", "png", "webp"}

// audioTargets are the extraction targets supported for video sources.
var audioTargets = []string{"mp3", "wav", "aac", "ogg", "flac", "m4a"}

// Normalize lowercases a format name and strips any leading dot.
func Normalize(value string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(value), "."))
}

// CategoryOf returns the category for a format, if known.
func CategoryOf(value string) (Category, bool) {
	category, ok := formatCategory[Normalize(value)]
	return category, ok
}

// IsSupported reports whether the format is a known input format.
func IsSupported(value string) bool {
	_, ok := formatCategory[Normalize(value)]
	return ok
}

// Formats returns the formats belonging to a category, sorted.
func Formats(category Category) []string {
	formats := categoryFormats[category]
	out := make([]string, len(formats))
	copy(out, formats)
	sort.Strings(out)
	return out
}

// TargetsFor returns every target format a source format can convert to,
// sorted. Cross-category rules: images render to PDF, PDFs render to images,
// and video sources can extract audio or produce an animated GIF.
func TargetsFor(source string) []string {
	source = Normalize(source)
	category, ok := formatCategory[source]
	if !ok {
		return nil
	}

	set := make(map[string]struct{})
	for _, target := range sameCategoryTargets[source] {
		set[target] = struct{}{}
	}

	switch {
	case category == CategoryImage:
		set["pdf"] = struct{}{}
	case source == "pdf":
		for _, target := range pdfImageTargets {
			set[target] = struct{}{}
		}
	case category == CategoryVideo:
		for _, target := range audioTargets {
			set[target] = struct{}{}
		}
		set["gif"] = struct{}{}
	}

	targets := make([]string, 0, len(set))
	for target := range set {
		targets = append(targets, target)
	}
	sort.Strings(targets)
	return targets
}

// CanConvert reports whether the source format converts to the target format.
func CanConvert(source, target string) bool {
	target = Normalize(target)
	for _, candidate := range TargetsFor(source) {
		if candidate == target {
			return true
		}
	}
	return false
}

// Matrix returns the full conversion matrix keyed by source format.
func Matrix() map[string][]string {
	matrix := make(map[string][]string, len(formatCategory))
	for source := range formatCategory {
		if targets := TargetsFor(source); len(targets) > 0 {
			matrix[source] = targets
		}
	}
	return matrix
}
