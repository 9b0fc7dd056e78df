package config

const (
	defaultInboxDir   = "~/.local/share/morph/inbox"
	defaultWorkDir    = "~/.local/share/morph/work"
	defaultOutputDir  = "~/.local/share/morph/output"
	defaultLogDir     = "~/.local/share/morph/logs"
	defaultSocketPath = "~/.local/share/morph/morph.sock"

	defaultAPIBind = "127.0.0.1:8090"

	defaultMaxFileSizeMB       = 100
	defaultMaxOutputSizeMB     = 50
	defaultMaxConcurrentJobs   = 3
	defaultImageTimeout        = 180
	defaultAudioTimeout        = 300
	defaultVideoTimeout        = 600
	defaultDocumentTimeout     = 300
	defaultPresentationTimeout = 300

	defaultImageQuality = 95
	defaultAudioBitrate = "320k"
	defaultVideoCRF     = 23
	defaultVideoPreset  = "medium"
	defaultPDFDPI       = 300

	defaultNotifyRequestTimeout     = 10
	defaultNotifyDedupWindowSeconds = 600

	defaultWorkflowHeartbeatInterval = 15
	defaultWorkflowHeartbeatTimeout  = 120
	defaultCompletedRetentionHours   = 24

	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
	defaultLogRetentionDays = 60

	defaultWatchSettleMillis = 2000
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			InboxDir:   defaultInboxDir,
			WorkDir:    defaultWorkDir,
			OutputDir:  defaultOutputDir,
			LogDir:     defaultLogDir,
			SocketPath: defaultSocketPath,
		},
		API: API{
			Bind: defaultAPIBind,
		},
		Limits: Limits{
			MaxFileSizeMB:       defaultMaxFileSizeMB,
			MaxOutputSizeMB:     defaultMaxOutputSizeMB,
			MaxConcurrentJobs:   defaultMaxConcurrentJobs,
			ImageTimeout:        defaultImageTimeout,
			AudioTimeout:        defaultAudioTimeout,
			VideoTimeout:        defaultVideoTimeout,
			DocumentTimeout:     defaultDocumentTimeout,
			PresentationTimeout: defaultPresentationTimeout,
		},
		Quality: Quality{
			ImageQuality: defaultImageQuality,
			AudioBitrate: defaultAudioBitrate,
			VideoCRF:     defaultVideoCRF,
			VideoPreset:  defaultVideoPreset,
			PDFDPI:       defaultPDFDPI,
		},
		Tools: Tools{
			FFmpeg:      "ffmpeg",
			FFprobe:     "ffprobe",
			ImageMagick: "magick",
			LibreOffice: "soffice",
			PdfToPpm:    "pdftoppm",
			PdfToText:   "pdftotext",
			Ghostscript: "gs",
		},
		Notifications: Notifications{
			RequestTimeout:     defaultNotifyRequestTimeout,
			JobQueued:          false,
			JobCompleted:       true,
			JobFailed:          true,
			Review:             true,
			Errors:             true,
			DedupWindowSeconds: defaultNotifyDedupWindowSeconds,
		},
		Workflow: Workflow{
			QueuePollInterval:  5,
			ErrorRetryInterval: 10,
			HeartbeatInterval:  defaultWorkflowHeartbeatInterval,
			HeartbeatTimeout:   defaultWorkflowHeartbeatTimeout,
			CompletedRetention: defaultCompletedRetentionHours,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
		Watch: Watch{
			SettleMillis: defaultWatchSettleMillis,
			DefaultTargets: map[string]string{
				"image":        "jpg",
				"audio":        "mp3",
				"video":        "mp4",
				"document":     "pdf",
				"presentation": "pdf",
			},
		},
	}
}
