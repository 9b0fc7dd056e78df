package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateLimits(); err != nil {
		return err
	}
	if err := c.validateQuality(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	if err := c.validateWatch(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateLimits() error {
	if err := ensurePositiveMap(map[string]int{
		"limits.max_concurrent_jobs":  c.Limits.MaxConcurrentJobs,
		"limits.image_timeout":        c.Limits.ImageTimeout,
		"limits.audio_timeout":        c.Limits.AudioTimeout,
		"limits.video_timeout":        c.Limits.VideoTimeout,
		"limits.document_timeout":     c.Limits.DocumentTimeout,
		"limits.presentation_timeout": c.Limits.PresentationTimeout,
	}); err != nil {
		return err
	}
	if c.Limits.MaxFileSizeMB <= 0 {
		return errors.New("limits.max_file_size_mb must be positive")
	}
	if c.Limits.MaxOutputSizeMB <= 0 {
		return errors.New("limits.max_output_size_mb must be positive")
	}
	return nil
}

func (c *Config) validateQuality() error {
	if c.Quality.ImageQuality < 1 || c.Quality.ImageQuality > 100 {
		return errors.New("quality.image_quality must be between 1 and 100")
	}
	if c.Quality.VideoCRF < 0 || c.Quality.VideoCRF > 51 {
		return errors.New("quality.video_crf must be between 0 and 51")
	}
	if c.Quality.PDFDPI < 72 || c.Quality.PDFDPI > 1200 {
		return errors.New("quality.pdf_dpi must be between 72 and 1200")
	}
	if strings.TrimSpace(c.Quality.AudioBitrate) == "" {
		return errors.New("quality.audio_bitrate must be set")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"notifications.request_timeout": c.Notifications.RequestTimeout,
		"workflow.queue_poll_interval":  c.Workflow.QueuePollInterval,
		"workflow.error_retry_interval": c.Workflow.ErrorRetryInterval,
	}); err != nil {
		return err
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		return errors.New("workflow.heartbeat_interval must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= 0 {
		return errors.New("workflow.heartbeat_timeout must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		return errors.New("workflow.heartbeat_timeout must be greater than workflow.heartbeat_interval")
	}
	if c.Workflow.CompletedRetention < 0 {
		return errors.New("workflow.completed_retention_hours must be >= 0")
	}
	return nil
}

func (c *Config) validateStorage() error {
	if !c.Storage.Enabled {
		return nil
	}
	if c.Storage.Endpoint == "" {
		return errors.New("storage.endpoint must be set when storage.enabled is true")
	}
	if c.Storage.Bucket == "" {
		return errors.New("storage.bucket must be set when storage.enabled is true")
	}
	if c.Storage.AccessKey == "" || c.Storage.SecretKey == "" {
		return errors.New("storage.access_key and storage.secret_key must be set when storage.enabled is true (or set MINIO_ACCESS_KEY / MINIO_SECRET_KEY)")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.DedupWindowSeconds < 0 {
		return errors.New("notifications.dedup_window_seconds must be >= 0")
	}
	return nil
}

func (c *Config) validateWatch() error {
	if !c.Watch.Enabled {
		return nil
	}
	if len(c.Watch.DefaultTargets) == 0 {
		return errors.New("watch.default_targets must map at least one category when watch.enabled is true")
	}
	if c.Watch.SettleMillis <= 0 {
		return errors.New("watch.settle_millis must be positive")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
