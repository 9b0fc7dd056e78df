package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and socket configuration.
type Paths struct {
	InboxDir   string `toml:"inbox_dir"`
	WorkDir    string `toml:"work_dir"`
	OutputDir  string `toml:"output_dir"`
	LogDir     string `toml:"log_dir"`
	SocketPath string `toml:"socket_path"`
}

// API contains configuration for the HTTP API surface.
type API struct {
	Bind       string `toml:"bind"`
	Token      string `toml:"token"`
	AdminToken string `toml:"admin_token"`
}

// Limits contains file-size and concurrency limits plus per-category
// conversion timeouts in seconds.
type Limits struct {
	MaxFileSizeMB       int64 `toml:"max_file_size_mb"`
	MaxOutputSizeMB     int64 `toml:"max_output_size_mb"`
	MaxConcurrentJobs   int   `toml:"max_concurrent_jobs"`
	ImageTimeout        int   `toml:"image_timeout"`
	AudioTimeout        int   `toml:"audio_timeout"`
	VideoTimeout        int   `toml:"video_timeout"`
	DocumentTimeout     int   `toml:"document_timeout"`
	PresentationTimeout int   `toml:"presentation_timeout"`
}

// Quality contains output quality settings for each conversion family.
type Quality struct {
	ImageQuality int    `toml:"image_quality"`
	AudioBitrate string `toml:"audio_bitrate"`
	VideoCRF     int    `toml:"video_crf"`
	VideoPreset  string `toml:"video_preset"`
	PDFDPI       int    `toml:"pdf_dpi"`
}

// Tools contains binary name overrides for the external conversion tools.
type Tools struct {
	FFmpeg      string `toml:"ffmpeg"`
	FFprobe     string `toml:"ffprobe"`
	ImageMagick string `toml:"imagemagick"`
	LibreOffice string `toml:"libreoffice"`
	PdfToPpm    string `toml:"pdftoppm"`
	PdfToText   string `toml:"pdftotext"`
	Ghostscript string `toml:"ghostscript"`
}

// Storage contains configuration for optional S3-compatible result uploads.
type Storage struct {
	Enabled   bool   `toml:"enabled"`
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Bucket    string `toml:"bucket"`
	UseSSL    bool   `toml:"use_ssl"`
	Prefix    string `toml:"prefix"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic          string `toml:"ntfy_topic"`
	RequestTimeout     int    `toml:"request_timeout"`
	JobQueued          bool   `toml:"job_queued"`
	JobCompleted       bool   `toml:"job_completed"`
	JobFailed          bool   `toml:"job_failed"`
	Review             bool   `toml:"review"`
	Errors             bool   `toml:"errors"`
	DedupWindowSeconds int    `toml:"dedup_window_seconds"`
}

// Workflow contains configuration for daemon timing and intervals.
type Workflow struct {
	QueuePollInterval  int `toml:"queue_poll_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
	HeartbeatInterval  int `toml:"heartbeat_interval"`
	HeartbeatTimeout   int `toml:"heartbeat_timeout"`
	CompletedRetention int `toml:"completed_retention_hours"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Watch contains configuration for the filesystem inbox watcher. Files
// dropped into the inbox are enqueued automatically using the per-category
// target formats below.
type Watch struct {
	Enabled        bool              `toml:"enabled"`
	SettleMillis   int               `toml:"settle_millis"`
	DefaultTargets map[string]string `toml:"default_targets"`
}

// Config encapsulates all configuration values for Morph.
//
// Configuration sections by subsystem:
//   - Paths: working directories and the IPC socket
//   - API: HTTP bind address and bearer tokens
//   - Limits: file-size caps, concurrency, per-category timeouts
//   - Quality: encoder quality settings per conversion family
//   - Tools: binary overrides for ffmpeg, ImageMagick, LibreOffice, Poppler, Ghostscript
//   - Storage: optional S3-compatible upload of finished outputs
//   - Notifications: ntfy push notification settings
//   - Workflow: daemon polling intervals and heartbeats
//   - Logging: log format, level, and retention
//   - Watch: automatic intake from the inbox directory
type Config struct {
	Paths         Paths         `toml:"paths"`
	API           API           `toml:"api"`
	Limits        Limits        `toml:"limits"`
	Quality       Quality       `toml:"quality"`
	Tools         Tools         `toml:"tools"`
	Storage       Storage       `toml:"storage"`
	Notifications Notifications `toml:"notifications"`
	Workflow      Workflow      `toml:"workflow"`
	Logging       Logging       `toml:"logging"`
	Watch         Watch         `toml:"watch"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/morph/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath("~/.config/morph/config.toml")
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("morph.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.InboxDir, c.Paths.WorkDir, c.Paths.OutputDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if socketDir := filepath.Dir(c.Paths.SocketPath); socketDir != "" && socketDir != "." {
		if err := os.MkdirAll(socketDir, 0o755); err != nil {
			return fmt.Errorf("create socket directory %q: %w", socketDir, err)
		}
	}
	return nil
}

// MaxFileSizeBytes returns the input size cap in bytes.
func (c *Config) MaxFileSizeBytes() int64 {
	return c.Limits.MaxFileSizeMB * 1024 * 1024
}

// MaxOutputSizeBytes returns the output size cap in bytes.
func (c *Config) MaxOutputSizeBytes() int64 {
	return c.Limits.MaxOutputSizeMB * 1024 * 1024
}

// TimeoutForCategory returns the conversion timeout in seconds for a format category.
func (c *Config) TimeoutForCategory(category string) int {
	switch strings.ToLower(strings.TrimSpace(category)) {
	case "image":
		return c.Limits.ImageTimeout
	case "audio":
		return c.Limits.AudioTimeout
	case "video":
		return c.Limits.VideoTimeout
	case "document":
		return c.Limits.DocumentTimeout
	case "presentation":
		return c.Limits.PresentationTimeout
	default:
		return c.Limits.DocumentTimeout
	}
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	sample := sampleConfig

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
