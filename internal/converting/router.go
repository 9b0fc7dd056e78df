package converting

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"morph/internal/config"
	"morph/internal/fileutil"
	"morph/internal/format"
	"morph/internal/services"
	"morph/internal/services/ffmpeg"
	"morph/internal/services/imagemagick"
	"morph/internal/services/libreoffice"
	"morph/internal/services/poppler"
)

// gifClipSeconds bounds animated GIF renders to the leading clip of the video.
const gifClipSeconds = 5

// Request describes one conversion for the router.
type Request struct {
	Input           string
	OutputDir       string
	SourceFormat    string
	TargetFormat    string
	Category        format.Category
	DurationSeconds float64
	OnProgress      func(ffmpeg.ProgressUpdate)
}

// Router maps a (source, target) pair onto the external tool able to perform
// the conversion and executes it.
type Router struct {
	ffmpeg  *ffmpeg.Client
	magick  *imagemagick.Client
	office  *libreoffice.Client
	poppler *poppler.Client
	quality config.Quality
}

// NewRouter constructs the tool clients from config.
func NewRouter(cfg *config.Config) (*Router, error) {
	ffmpegClient, err := ffmpeg.New(cfg.Tools.FFmpeg)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg client: %w", err)
	}
	magickClient, err := imagemagick.New(cfg.Tools.ImageMagick)
	if err != nil {
		return nil, fmt.Errorf("imagemagick client: %w", err)
	}
	officeClient, err := libreoffice.New(cfg.Tools.LibreOffice)
	if err != nil {
		return nil, fmt.Errorf("libreoffice client: %w", err)
	}
	popplerClient, err := poppler.New(cfg.Tools.PdfToPpm, cfg.Tools.PdfToText)
	if err != nil {
		return nil, fmt.Errorf("poppler client: %w", err)
	}
	return &Router{
		ffmpeg:  ffmpegClient,
		magick:  magickClient,
		office:  officeClient,
		poppler: popplerClient,
		quality: cfg.Quality,
	}, nil
}

// NewRouterWithClients allows injecting tool clients (used in tests).
func NewRouterWithClients(ffmpegClient *ffmpeg.Client, magickClient *imagemagick.Client, officeClient *libreoffice.Client, popplerClient *poppler.Client, quality config.Quality) *Router {
	return &Router{
		ffmpeg:  ffmpegClient,
		magick:  magickClient,
		office:  officeClient,
		poppler: popplerClient,
		quality: quality,
	}
}

// RouteName returns a short label for the tool path a conversion takes, or an
// error when the pair is unsupported.
func (r *Router) RouteName(source, target string, category format.Category) (string, error) {
	source = format.Normalize(source)
	target = format.Normalize(target)
	if !format.CanConvert(source, target) {
		return "", fmt.Errorf("no route from %s to %s", source, target)
	}

	switch {
	case category == format.CategoryImage && target == "pdf":
		return "imagemagick-pdf", nil
	case category == format.CategoryImage:
		return "imagemagick", nil
	case category == format.CategoryAudio:
		return "ffmpeg-audio", nil
	case category == format.CategoryVideo && target == "gif":
		return "ffmpeg-gif", nil
	case category == format.CategoryVideo && isAudioTarget(target):
		return "ffmpeg-extract", nil
	case category == format.CategoryVideo:
		return "ffmpeg-video", nil
	case source == "pdf" && target == "txt":
		return "pdftotext", nil
	case source == "pdf" && isImageTarget(target):
		return "pdftoppm", nil
	case category == format.CategoryDocument || category == format.CategoryPresentation:
		return "libreoffice", nil
	}
	return "", fmt.Errorf("no route from %s to %s", source, target)
}

// Execute runs the conversion and returns the produced output path inside
// req.OutputDir.
func (r *Router) Execute(ctx context.Context, req Request) (string, error) {
	route, err := r.RouteName(req.SourceFormat, req.TargetFormat, req.Category)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "converting", "route", err.Error(), nil)
	}

	target := format.Normalize(req.TargetFormat)
	output := r.outputPath(req.Input, req.OutputDir, target)

	switch route {
	case "imagemagick":
		err = r.magick.Convert(ctx, req.Input, output, r.quality.ImageQuality)
	case "imagemagick-pdf":
		err = r.magick.ImagesToPDF(ctx, []string{req.Input}, output)
	case "ffmpeg-audio", "ffmpeg-extract":
		err = r.ffmpeg.ConvertAudio(ctx, ffmpeg.AudioRequest{
			Input:        req.Input,
			Output:       output,
			TargetFormat: target,
			Bitrate:      r.quality.AudioBitrate,
		})
	case "ffmpeg-video":
		err = r.ffmpeg.ConvertVideo(ctx, ffmpeg.VideoRequest{
			Input:           req.Input,
			Output:          output,
			CRF:             r.quality.VideoCRF,
			Preset:          r.quality.VideoPreset,
			DurationSeconds: req.DurationSeconds,
			OnProgress:      req.OnProgress,
		})
	case "ffmpeg-gif":
		duration := req.DurationSeconds
		if duration <= 0 || duration > gifClipSeconds {
			duration = gifClipSeconds
		}
		err = r.ffmpeg.CreateGIF(ctx, ffmpeg.GIFRequest{
			Input:           req.Input,
			Output:          output,
			DurationSeconds: duration,
		})
	case "pdftotext":
		err = r.poppler.ExtractText(ctx, req.Input, output)
	case "pdftoppm":
		output, err = r.renderFirstPage(ctx, req, target, output)
	case "libreoffice":
		output, err = r.convertOffice(ctx, req, target, output)
	default:
		return "", services.Wrap(services.ErrConfiguration, "converting", "route", "unhandled route "+route, nil)
	}
	if err != nil {
		return "", err
	}

	info, statErr := os.Stat(output)
	if statErr != nil {
		return "", services.Wrap(services.ErrExternalTool, "converting", route, "conversion produced no output", statErr)
	}
	if info.Size() == 0 {
		return "", services.Wrap(services.ErrExternalTool, "converting", route, "conversion produced an empty file", nil)
	}
	return output, nil
}

// renderFirstPage rasterizes the PDF and keeps only the first page, renamed to
// the requested output path. webp renders via a PNG intermediate that
// ImageMagick then re-encodes.
func (r *Router) renderFirstPage(ctx context.Context, req Request, target, output string) (string, error) {
	pages, err := r.poppler.RenderPages(ctx, req.Input, req.OutputDir, target, r.quality.PDFDPI)
	if err != nil {
		return "", err
	}
	if len(pages) == 0 {
		return "", services.Wrap(services.ErrExternalTool, "converting", "pdftoppm", "no pages rendered", nil)
	}

	first := pages[0]
	for _, extra := range pages[1:] {
		_ = os.Remove(extra)
	}

	if target == "webp" {
		if err := r.magick.Convert(ctx, first, output, r.quality.ImageQuality); err != nil {
			return "", err
		}
		_ = os.Remove(first)
		return output, nil
	}
	if err := os.Rename(first, output); err != nil {
		return "", fmt.Errorf("rename rendered page: %w", err)
	}
	return output, nil
}

// convertOffice runs LibreOffice, which picks its own output name, then moves
// the produced file onto the requested path.
func (r *Router) convertOffice(ctx context.Context, req Request, target, output string) (string, error) {
	produced, err := r.office.Convert(ctx, req.Input, req.OutputDir, target)
	if err != nil {
		return "", err
	}
	if produced == output {
		return output, nil
	}
	if err := os.Rename(produced, output); err != nil {
		return "", fmt.Errorf("rename office output: %w", err)
	}
	return output, nil
}

func (r *Router) outputPath(input, outputDir, target string) string {
	base := filepath.Base(input)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return fileutil.UniquePath(filepath.Join(outputDir, stem+"."+target))
}

func isAudioTarget(target string) bool {
	switch target {
	case "mp3", "wav", "aac", "ogg", "flac", "m4a":
		return true
	}
	return false
}

func isImageTarget(target string) bool {
	switch target {
	case "jpg", "jpeg", "png", "webp":
		return true
	}
	return false
}
