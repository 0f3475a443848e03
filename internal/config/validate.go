package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateRetry(); err != nil {
		return err
	}
	if err := c.validateIngest(); err != nil {
		return err
	}
	if err := c.validateAnalysis(); err != nil {
		return err
	}
	if err := c.validateClips(); err != nil {
		return err
	}
	if err := c.validateTextGen(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.PollInterval <= 0 {
		return errors.New("workflow.poll_interval must be positive")
	}
	if c.Workflow.ErrorRetryInterval <= 0 {
		return errors.New("workflow.error_retry_interval must be positive")
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		return errors.New("workflow.heartbeat_interval must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		return errors.New("workflow.heartbeat_timeout must be greater than heartbeat_interval")
	}
	if c.Workflow.MaxConcurrentProjects <= 0 {
		return errors.New("workflow.max_concurrent_projects must be positive")
	}
	if c.Workflow.UnitConcurrency <= 0 {
		return errors.New("workflow.unit_concurrency must be positive")
	}
	return nil
}

func (c *Config) validateRetry() error {
	if c.Retry.MaxAttempts <= 0 {
		return errors.New("retry.max_attempts must be positive")
	}
	if c.Retry.BaseDelayMS < 0 {
		return errors.New("retry.base_delay_ms must not be negative")
	}
	if c.Retry.MaxDelayMS < c.Retry.BaseDelayMS {
		return errors.New("retry.max_delay_ms must be at least base_delay_ms")
	}
	if c.Retry.JitterFraction < 0 || c.Retry.JitterFraction >= 1 {
		return errors.New("retry.jitter_fraction must be in [0, 1)")
	}
	return nil
}

func (c *Config) validateIngest() error {
	if c.Ingest.MaxFileSizeMB <= 0 {
		return errors.New("ingest.max_file_size_mb must be positive")
	}
	if c.Ingest.MinFreeSpaceMB < 0 {
		return errors.New("ingest.min_free_space_mb must not be negative")
	}
	return nil
}

func (c *Config) validateAnalysis() error {
	if c.Analysis.FallbackIntervalSeconds <= 0 {
		return errors.New("analysis.fallback_interval_seconds must be positive")
	}
	if c.Analysis.FallbackImportance < 0 || c.Analysis.FallbackImportance > 1 {
		return errors.New("analysis.fallback_importance must be between 0 and 1")
	}
	if c.Analysis.FallbackQuotability < 0 || c.Analysis.FallbackQuotability > 1 {
		return errors.New("analysis.fallback_quotability must be between 0 and 1")
	}
	return nil
}

func (c *Config) validateClips() error {
	if c.Clips.MaxMoments < 0 {
		return errors.New("clips.max_moments must not be negative")
	}
	if c.Clips.MinClipSeconds <= 0 || c.Clips.MaxClipSeconds < c.Clips.MinClipSeconds {
		return errors.New("clips.min_clip_seconds must be positive and not exceed max_clip_seconds")
	}
	if c.Clips.DefaultClipSeconds <= 0 || c.Clips.MicroClipSeconds <= 0 {
		return errors.New("clips.default_clip_seconds and clips.micro_clip_seconds must be positive")
	}
	for _, variant := range c.Clips.Variants {
		switch variant {
		case "horizontal", "micro", "vertical":
		default:
			return fmt.Errorf("clips.variants: unsupported variant %q", variant)
		}
	}
	return nil
}

func (c *Config) validateTextGen() error {
	switch c.TextGen.Provider {
	case "llm", "template":
	default:
		return fmt.Errorf("textgen.provider: unsupported value %q (use llm or template)", c.TextGen.Provider)
	}
	if c.TextGen.MaxMoments < 0 {
		return errors.New("textgen.max_moments must not be negative")
	}
	for _, platform := range c.TextGen.Platforms {
		switch platform {
		case "twitter", "linkedin", "instagram":
		default:
			return fmt.Errorf("textgen.platforms: unsupported platform %q", platform)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must not be negative")
	}
	return nil
}
