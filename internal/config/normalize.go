package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeAPI()
	c.normalizeLimits()
	c.normalizeQuality()
	c.normalizeTools()
	c.normalizeStorage()
	c.normalizeNotifications()
	c.normalizeLogging()
	c.normalizeWatch()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.InboxDir, err = expandPath(c.Paths.InboxDir); err != nil {
		return fmt.Errorf("paths.inbox_dir: %w", err)
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.SocketPath) == "" {
		c.Paths.SocketPath = defaultSocketPath
	}
	if c.Paths.SocketPath, err = expandPath(c.Paths.SocketPath); err != nil {
		return fmt.Errorf("paths.socket_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeAPI() {
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	if c.API.Bind == "" {
		c.API.Bind = defaultAPIBind
	}
	c.API.Token = strings.TrimSpace(c.API.Token)
	if c.API.Token == "" {
		if value, ok := os.LookupEnv("MORPH_API_TOKEN"); ok {
			c.API.Token = strings.TrimSpace(value)
		}
	}
	c.API.AdminToken = strings.TrimSpace(c.API.AdminToken)
	if c.API.AdminToken == "" {
		if value, ok := os.LookupEnv("MORPH_ADMIN_TOKEN"); ok {
			c.API.AdminToken = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeLimits() {
	if c.Limits.MaxFileSizeMB <= 0 {
		c.Limits.MaxFileSizeMB = defaultMaxFileSizeMB
	}
	if c.Limits.MaxOutputSizeMB <= 0 {
		c.Limits.MaxOutputSizeMB = defaultMaxOutputSizeMB
	}
	if c.Limits.MaxConcurrentJobs <= 0 {
		c.Limits.MaxConcurrentJobs = defaultMaxConcurrentJobs
	}
	if c.Limits.ImageTimeout <= 0 {
		c.Limits.ImageTimeout = defaultImageTimeout
	}
	if c.Limits.AudioTimeout <= 0 {
		c.Limits.AudioTimeout = defaultAudioTimeout
	}
	if c.Limits.VideoTimeout <= 0 {
		c.Limits.VideoTimeout = defaultVideoTimeout
	}
	if c.Limits.DocumentTimeout <= 0 {
		c.Limits.DocumentTimeout = defaultDocumentTimeout
	}
	if c.Limits.PresentationTimeout <= 0 {
		c.Limits.PresentationTimeout = defaultPresentationTimeout
	}
}

func (c *Config) normalizeQuality() {
	if c.Quality.ImageQuality <= 0 {
		c.Quality.ImageQuality = defaultImageQuality
	}
	c.Quality.AudioBitrate = strings.TrimSpace(c.Quality.AudioBitrate)
	if c.Quality.AudioBitrate == "" {
		c.Quality.AudioBitrate = defaultAudioBitrate
	}
	if c.Quality.VideoCRF <= 0 {
		c.Quality.VideoCRF = defaultVideoCRF
	}
	c.Quality.VideoPreset = strings.ToLower(strings.TrimSpace(c.Quality.VideoPreset))
	if c.Quality.VideoPreset == "" {
		c.Quality.VideoPreset = defaultVideoPreset
	}
	if c.Quality.PDFDPI <= 0 {
		c.Quality.PDFDPI = defaultPDFDPI
	}
}

func (c *Config) normalizeTools() {
	defaults := Default().Tools
	if strings.TrimSpace(c.Tools.FFmpeg) == "" {
		c.Tools.FFmpeg = defaults.FFmpeg
	}
	if strings.TrimSpace(c.Tools.FFprobe) == "" {
		c.Tools.FFprobe = defaults.FFprobe
	}
	if strings.TrimSpace(c.Tools.ImageMagick) == "" {
		c.Tools.ImageMagick = defaults.ImageMagick
	}
	if strings.TrimSpace(c.Tools.LibreOffice) == "" {
		c.Tools.LibreOffice = defaults.LibreOffice
	}
	if strings.TrimSpace(c.Tools.PdfToPpm) == "" {
		c.Tools.PdfToPpm = defaults.PdfToPpm
	}
	if strings.TrimSpace(c.Tools.PdfToText) == "" {
		c.Tools.PdfToText = defaults.PdfToText
	}
	if strings.TrimSpace(c.Tools.Ghostscript) == "" {
		c.Tools.Ghostscript = defaults.Ghostscript
	}
}

func (c *Config) normalizeStorage() {
	c.Storage.Endpoint = strings.TrimSpace(c.Storage.Endpoint)
	c.Storage.Bucket = strings.TrimSpace(c.Storage.Bucket)
	c.Storage.Prefix = strings.Trim(strings.TrimSpace(c.Storage.Prefix), "/")
	c.Storage.AccessKey = strings.TrimSpace(c.Storage.AccessKey)
	if c.Storage.AccessKey == "" {
		if value, ok := os.LookupEnv("MINIO_ACCESS_KEY"); ok {
			c.Storage.AccessKey = strings.TrimSpace(value)
		}
	}
	c.Storage.SecretKey = strings.TrimSpace(c.Storage.SecretKey)
	if c.Storage.SecretKey == "" {
		if value, ok := os.LookupEnv("MINIO_SECRET_KEY"); ok {
			c.Storage.SecretKey = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
	if c.Notifications.DedupWindowSeconds < 0 {
		c.Notifications.DedupWindowSeconds = 0
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}

func (c *Config) normalizeWatch() {
	if c.Watch.SettleMillis <= 0 {
		c.Watch.SettleMillis = defaultWatchSettleMillis
	}
	if len(c.Watch.DefaultTargets) == 0 {
		c.Watch.DefaultTargets = Default().Watch.DefaultTargets
		return
	}
	targets := make(map[string]string, len(c.Watch.DefaultTargets))
	for category, format := range c.Watch.DefaultTargets {
		category = strings.ToLower(strings.TrimSpace(category))
		format = strings.ToLower(strings.TrimSpace(format))
		if category == "" || format == "" {
			continue
		}
		targets[category] = format
	}
	c.Watch.DefaultTargets = targets
}
