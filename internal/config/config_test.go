package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		App:    AppConfig{Environment: "development"},
		Logger: LoggerConfig{Level: "info"},
		Data:   DataConfig{BasePath: "/tmp/reader"},
		Server: ServerConfig{Name: "test", Port: "8484"},
		Engine: EngineConfig{
			ResumeWindow:    500 * time.Millisecond,
			DebounceWindow:  time.Second,
			FallbackWindow:  700 * time.Millisecond,
			FlipEarlyOffset: time.Second,
			TickInterval:    100 * time.Millisecond,
		},
		Sync: SyncConfig{Interval: time.Minute, Source: "test"},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{
			name:    "missing environment",
			mutate:  func(c *Config) { c.App.Environment = "" },
			wantErr: "ENV is required",
		},
		{
			name:    "bad environment",
			mutate:  func(c *Config) { c.App.Environment = "qa" },
			wantErr: "invalid environment",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logger.Level = "verbose" },
			wantErr: "invalid log level",
		},
		{
			name:    "empty data path",
			mutate:  func(c *Config) { c.Data.BasePath = "" },
			wantErr: "data base path",
		},
		{
			name:    "zero debounce window",
			mutate:  func(c *Config) { c.Engine.DebounceWindow = 0 },
			wantErr: "must be positive",
		},
		{
			name:    "negative sync interval",
			mutate:  func(c *Config) { c.Sync.Interval = -time.Second },
			wantErr: "must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestConfig_DerivedPaths(t *testing.T) {
	cfg := validConfig()

	assert.Equal(t, filepath.Join("/tmp/reader", "progress"), cfg.ProgressDBPath())
	assert.Equal(t, filepath.Join("/tmp/reader", "journal.db"), cfg.JournalDBPath())
	assert.Equal(t, filepath.Join("/tmp/reader", "cache", "audio"), cfg.AudioCachePath())
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	tests := []struct {
		name        string
		path        string
		defaultPath string
		want        string
	}{
		{name: "empty uses default", path: "", defaultPath: "/d", want: "/d"},
		{name: "tilde expansion", path: "~/books", want: filepath.Join(home, "books")},
		{name: "absolute unchanged", path: "/var/reader", want: "/var/reader"},
		{name: "cleans trailing slash", path: "/var/reader/", want: "/var/reader"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := expandPath(tt.path, tt.defaultPath)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGetBoolConfigValue(t *testing.T) {
	t.Setenv("READER_TEST_BOOL", "")

	assert.True(t, getBoolConfigValue("", "READER_TEST_BOOL", true))
	assert.True(t, getBoolConfigValue("yes", "READER_TEST_BOOL", false))
	assert.True(t, getBoolConfigValue("1", "READER_TEST_BOOL", false))
	assert.False(t, getBoolConfigValue("nope", "READER_TEST_BOOL", true))

	t.Setenv("READER_TEST_BOOL", "TRUE")
	assert.True(t, getBoolConfigValue("", "READER_TEST_BOOL", false))
}
