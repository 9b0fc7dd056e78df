package deps

import (
	"morph/internal/config"
)

// Required returns the tool requirements for a full conversion pipeline.
// Ghostscript and the Poppler utilities are optional: without them PDF
// compression and PDF-to-image/text conversions are unavailable, but the
// daemon still runs.
func Required(cfg *config.Config) []Requirement {
	tools := config.Default().Tools
	if cfg != nil {
		tools = cfg.Tools
	}
	return []Requirement{
		{Name: "FFmpeg", Command: tools.FFmpeg, Description: "Audio and video conversion"},
		{Name: "FFprobe", Command: tools.FFprobe, Description: "Media inspection"},
		{Name: "ImageMagick", Command: tools.ImageMagick, Description: "Image conversion"},
		{Name: "LibreOffice", Command: tools.LibreOffice, Description: "Document and presentation conversion"},
		{Name: "pdftoppm", Command: tools.PdfToPpm, Description: "PDF page rendering", Optional: true},
		{Name: "pdftotext", Command: tools.PdfToText, Description: "PDF text extraction", Optional: true},
		{Name: "Ghostscript", Command: tools.Ghostscript, Description: "PDF compression", Optional: true},
	}
}
