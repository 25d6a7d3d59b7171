// Package config provides application configuration management with support for
// environment variables, command-line flags, and .env files.
package config

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config holds the application configuration.
type Config struct {
	App    AppConfig
	Logger LoggerConfig
	Data   DataConfig
	Server ServerConfig
	Engine EngineConfig
	Sync   SyncConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
}

// DataConfig holds on-disk storage configuration.
type DataConfig struct {
	// BasePath is the root for the progress database, the sync journal,
	// and the extracted-audio cache.
	BasePath string
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Name          string
	Port          string        // Server port (default: 8484)
	ReadTimeout   time.Duration // HTTP read timeout (default: 15s)
	WriteTimeout  time.Duration // HTTP write timeout (default: 15s)
	IdleTimeout   time.Duration // HTTP idle timeout (default: 60s)
	AdvertiseMDNS bool          // Advertise via mDNS/Zeroconf (default: true)
}

// EngineConfig holds the read-aloud engine tunables.
//
// These windows encode perceived-responsiveness requirements, not correctness;
// each one also resolves on its own triggering event when the timer is lost.
type EngineConfig struct {
	// ResumeWindow is how recently playback must have been active for a seek
	// to auto-resume it (default: 500ms).
	ResumeWindow time.Duration
	// DebounceWindow coalesces page/seek-driven progress syncs (default: 1s).
	DebounceWindow time.Duration
	// FallbackWindow bounds how long a queued navigation may wait for the
	// renderer to confirm it (default: 700ms).
	FallbackWindow time.Duration
	// FlipEarlyOffset is how far ahead of the predicted audio boundary a page
	// flip is issued (default: 1s).
	FlipEarlyOffset time.Duration
	// TickInterval is the transport progress-timer period (default: 100ms).
	TickInterval time.Duration
}

// SyncConfig holds remote progress sync configuration.
type SyncConfig struct {
	// Interval between periodic syncs while audio is playing (default: 60s).
	Interval time.Duration
	// LockAudioToNavigation controls whether user navigation moves audio and
	// persists fragment-based locators (default: true).
	LockAudioToNavigation bool
	// Source is the label attached to outgoing progress updates.
	Source string
}

// LoadConfig loads configuration from multiple sources with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
func LoadConfig() (*Config, error) {
	env := flag.String("env", "", "Environment (development, staging, production)")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	dataPath := flag.String("data-path", "", "Base path for reader data storage")
	serverName := flag.String("server-name", "", "Name for the server")
	serverPort := flag.String("port", "", "Server port (default: 8484)")
	readTimeout := flag.String("read-timeout", "", "HTTP read timeout (default: 15s)")
	writeTimeout := flag.String("write-timeout", "", "HTTP write timeout (default: 15s)")
	idleTimeout := flag.String("idle-timeout", "", "HTTP idle timeout (default: 60s)")
	advertiseMDNS := flag.String("advertise-mdns", "", "Advertise via mDNS/Zeroconf (default: true)")

	resumeWindow := flag.String("resume-window", "", "Auto-resume detection window (default: 500ms)")
	debounceWindow := flag.String("debounce-window", "", "Progress sync debounce window (default: 1s)")
	fallbackWindow := flag.String("fallback-window", "", "Navigation confirmation fallback window (default: 700ms)")
	flipEarlyOffset := flag.String("flip-early-offset", "", "Page flip early-trigger margin (default: 1s)")
	syncInterval := flag.String("sync-interval", "", "Periodic progress sync interval (default: 60s)")
	lockAudio := flag.String("lock-audio-to-nav", "", "Audio follows view navigation (default: true)")

	envFile := flag.String("env-file", ".env", "Path to .env file")

	flag.Parse()

	// Load .env file if it exists (silently ignore if not found).
	_ = loadEnvFile(*envFile)

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level: getConfigValue(*logLevel, "LOG_LEVEL", "info"),
		},
		Data: DataConfig{
			BasePath: getConfigValue(*dataPath, "READER_DATA_PATH", ""),
		},
		Server: ServerConfig{
			Name:          getConfigValue(*serverName, "SERVER_NAME", "ListenUp Reader"),
			Port:          getConfigValue(*serverPort, "SERVER_PORT", "8484"),
			AdvertiseMDNS: getBoolConfigValue(*advertiseMDNS, "ADVERTISE_MDNS", true),
		},
		Sync: SyncConfig{
			LockAudioToNavigation: getBoolConfigValue(*lockAudio, "SYNC_LOCK_AUDIO_TO_NAV", true),
			Source:                getConfigValue("", "SYNC_SOURCE", "listenup-reader"),
		},
	}

	durations := []struct {
		dest     *time.Duration
		flagVal  string
		envKey   string
		fallback string
	}{
		{&cfg.Server.ReadTimeout, *readTimeout, "SERVER_READ_TIMEOUT", "15s"},
		{&cfg.Server.WriteTimeout, *writeTimeout, "SERVER_WRITE_TIMEOUT", "15s"},
		{&cfg.Server.IdleTimeout, *idleTimeout, "SERVER_IDLE_TIMEOUT", "60s"},
		{&cfg.Engine.ResumeWindow, *resumeWindow, "ENGINE_RESUME_WINDOW", "500ms"},
		{&cfg.Engine.DebounceWindow, *debounceWindow, "ENGINE_DEBOUNCE_WINDOW", "1s"},
		{&cfg.Engine.FallbackWindow, *fallbackWindow, "ENGINE_FALLBACK_WINDOW", "700ms"},
		{&cfg.Engine.FlipEarlyOffset, *flipEarlyOffset, "ENGINE_FLIP_EARLY_OFFSET", "1s"},
		{&cfg.Engine.TickInterval, "", "ENGINE_TICK_INTERVAL", "100ms"},
		{&cfg.Sync.Interval, *syncInterval, "SYNC_INTERVAL", "60s"},
	}
	for _, d := range durations {
		raw := getConfigValue(d.flagVal, d.envKey, d.fallback)
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", strings.ToLower(d.envKey), raw, err)
		}
		*d.dest = parsed
	}

	if err := cfg.expandDataPath(); err != nil {
		return nil, fmt.Errorf("invalid data path: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	if c.App.Environment == "" {
		return errors.New("ENV is required")
	}

	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %s (must be development, staging, or production)", c.App.Environment)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.Data.BasePath == "" {
		return errors.New("data base path cannot be empty after expansion")
	}

	for name, d := range map[string]time.Duration{
		"resume window":     c.Engine.ResumeWindow,
		"debounce window":   c.Engine.DebounceWindow,
		"fallback window":   c.Engine.FallbackWindow,
		"flip early offset": c.Engine.FlipEarlyOffset,
		"tick interval":     c.Engine.TickInterval,
		"sync interval":     c.Sync.Interval,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}

	return nil
}

// ProgressDBPath returns the badger database directory.
func (c *Config) ProgressDBPath() string {
	return filepath.Join(c.Data.BasePath, "progress")
}

// JournalDBPath returns the sqlite sync journal file.
func (c *Config) JournalDBPath() string {
	return filepath.Join(c.Data.BasePath, "journal.db")
}

// AudioCachePath returns the directory audio is extracted into for playback.
func (c *Config) AudioCachePath() string {
	return filepath.Join(c.Data.BasePath, "cache", "audio")
}

// expandDataPath expands ~ and makes the path absolute.
// Defaults to ~/ListenUp/reader when unset.
func (c *Config) expandDataPath() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	defaultPath := filepath.Join(homeDir, "ListenUp", "reader")

	expanded, err := expandPath(c.Data.BasePath, defaultPath)
	if err != nil {
		return err
	}
	c.Data.BasePath = expanded
	return nil
}

// expandPath expands ~ and makes the path absolute.
// If path is empty and defaultPath is provided, uses the default.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}

	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}

	return defaultValue
}

// getBoolConfigValue returns a bool from flag, env var, or default.
// Accepts: "true", "1", "yes" (case-insensitive) as true; anything else is false.
func getBoolConfigValue(flagValue, envKey string, defaultValue bool) bool {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	strValue = strings.ToLower(strValue)
	return strValue == "true" || strValue == "1" || strValue == "yes"
}

// loadEnvFile loads environment variables from a .env file.
// Format: KEY=value (one per line, # for comments).
func loadEnvFile(path string) error {
	file, err := os.Open(path) //#nosec G304 -- Config file path from user input is expected
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		value = strings.Trim(value, `"'`)

		// Env vars take precedence over .env file.
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}

	return scanner.Err()
}
