package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// isolate points the default config locations at an empty directory and
// clears the environment overrides.
func isolate(t *testing.T) {
	t.Helper()

	t.Setenv("HOME", t.TempDir())
	for _, key := range []string{EnvRoot, EnvConfig, EnvCache, EnvLogLevel} {
		t.Setenv(key, "")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg == nil {
		t.Fatal("Default() returned nil")
	}

	if cfg.Root == "" {
		t.Error("Root not set")
	}
	if cfg.Truncation.TextLength != 1024 {
		t.Errorf("TextLength = %d, want 1024", cfg.Truncation.TextLength)
	}
	if cfg.Truncation.LogLines != 100 {
		t.Errorf("LogLines = %d, want 100", cfg.Truncation.LogLines)
	}
	if cfg.Images.ThumbnailSize != 40 {
		t.Errorf("ThumbnailSize = %d, want 40", cfg.Images.ThumbnailSize)
	}
	if cfg.Watch.Debounce <= 0 {
		t.Error("Debounce not set")
	}
	if cfg.Logging.Format != "auto" {
		t.Errorf("Logging.Format = %s, want auto", cfg.Logging.Format)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Default().Validate() error = %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(cfg *Config)
		wantErr error
	}{
		{
			name:    "valid default config",
			modify:  func(cfg *Config) {},
			wantErr: nil,
		},
		{
			name:    "empty root",
			modify:  func(cfg *Config) { cfg.Root = "" },
			wantErr: ErrEmptyRoot,
		},
		{
			name:    "zero text length",
			modify:  func(cfg *Config) { cfg.Truncation.TextLength = 0 },
			wantErr: ErrInvalidTextLength,
		},
		{
			name:    "negative log lines",
			modify:  func(cfg *Config) { cfg.Truncation.LogLines = -1 },
			wantErr: ErrInvalidLogLines,
		},
		{
			name:    "zero thumbnail size",
			modify:  func(cfg *Config) { cfg.Images.ThumbnailSize = 0 },
			wantErr: ErrInvalidThumbnailSize,
		},
		{
			name:    "relative public prefix",
			modify:  func(cfg *Config) { cfg.Images.PublicPrefix = "data" },
			wantErr: ErrInvalidPublicPrefix,
		},
		{
			name:    "zero max file size",
			modify:  func(cfg *Config) { cfg.Images.MaxFileSize = 0 },
			wantErr: ErrInvalidMaxFileSize,
		},
		{
			name:    "reference url without category",
			modify:  func(cfg *Config) { cfg.API.ReferenceURL = "/api/{kind}/{name}/{step}" },
			wantErr: ErrInvalidReferenceURL,
		},
		{
			name:    "reordered reference url",
			modify:  func(cfg *Config) { cfg.API.ReferenceURL = "/v2?c={category}&s={step}&n={name}&k={kind}" },
			wantErr: nil,
		},
		{
			name:    "zero queue size",
			modify:  func(cfg *Config) { cfg.Watch.QueueSize = 0 },
			wantErr: ErrInvalidQueueSize,
		},
		{
			name:    "negative debounce disables coalescing",
			modify:  func(cfg *Config) { cfg.Watch.Debounce = -1 },
			wantErr: nil,
		},
		{
			name:    "zero circuit breaker",
			modify:  func(cfg *Config) { cfg.Watch.CircuitBreakerThreshold = 0 },
			wantErr: ErrInvalidCircuitBreaker,
		},
		{
			name:    "zero workers",
			modify:  func(cfg *Config) { cfg.Scan.Workers = 0 },
			wantErr: ErrInvalidWorkers,
		},
		{
			name:    "zero cache size disables cache",
			modify:  func(cfg *Config) { cfg.Cache.Size = 0 },
			wantErr: nil,
		},
		{
			name:    "negative cache size",
			modify:  func(cfg *Config) { cfg.Cache.Size = -1 },
			wantErr: ErrInvalidCacheSize,
		},
		{
			name:    "invalid log level",
			modify:  func(cfg *Config) { cfg.Logging.Level = "verbose" },
			wantErr: ErrInvalidLogLevel,
		},
		{
			name:    "invalid log format",
			modify:  func(cfg *Config) { cfg.Logging.Format = "xml" },
			wantErr: ErrInvalidLogFormat,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			err := cfg.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Config.Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	isolate(t)
	tmpDir := t.TempDir()

	tests := []struct {
		name    string
		content string
		wantErr error
		check   func(t *testing.T, cfg *Config)
	}{
		{
			name: "valid config file",
			content: `
root: /srv/runs
truncation:
  text_length: 2048
  log_lines: 10
images:
  thumbnail_size: 64
  public_prefix: /files
api:
  reference_url: "/v1/{kind}/{name}/{step}/{category}"
watch:
  queue_size: 16
  debounce: 200ms
scan:
  workers: 8
cache:
  path: /tmp/thumbs.db
logging:
  level: debug
  output: stdout
  format: json
`,
			check: func(t *testing.T, cfg *Config) {
				if cfg.Root != "/srv/runs" {
					t.Errorf("Root = %s, want /srv/runs", cfg.Root)
				}
				if cfg.Truncation.TextLength != 2048 {
					t.Errorf("TextLength = %d, want 2048", cfg.Truncation.TextLength)
				}
				if cfg.Images.PublicPrefix != "/files" {
					t.Errorf("PublicPrefix = %s, want /files", cfg.Images.PublicPrefix)
				}
				if cfg.Watch.Debounce != 200*time.Millisecond {
					t.Errorf("Debounce = %v, want 200ms", cfg.Watch.Debounce)
				}
				if cfg.Scan.Workers != 8 {
					t.Errorf("Workers = %d, want 8", cfg.Scan.Workers)
				}
				if cfg.Cache.Path != "/tmp/thumbs.db" {
					t.Errorf("Cache.Path = %s, want /tmp/thumbs.db", cfg.Cache.Path)
				}
				if cfg.Logging.Level != "debug" {
					t.Errorf("LogLevel = %s, want debug", cfg.Logging.Level)
				}
			},
		},
		{
			name:    "partial file keeps defaults",
			content: "root: /data/runs\n",
			check: func(t *testing.T, cfg *Config) {
				if cfg.Root != "/data/runs" {
					t.Errorf("Root = %s, want /data/runs", cfg.Root)
				}
				if cfg.Watch.QueueSize != 256 {
					t.Errorf("QueueSize = %d, want default 256", cfg.Watch.QueueSize)
				}
				if cfg.Cache.Size != 512 {
					t.Errorf("Cache.Size = %d, want default 512", cfg.Cache.Size)
				}
			},
		},
		{
			name:    "invalid yaml",
			content: `invalid: yaml: content: [`,
			wantErr: ErrInvalidYAML,
		},
		{
			name:    "invalid values",
			content: "api:\n  reference_url: /api/{kind}\n",
			wantErr: ErrInvalidReferenceURL,
		},
		{
			name:    "non-existent file",
			wantErr: ErrConfigNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filePath := filepath.Join(tmpDir, tt.name+".yaml")
			if tt.name != "non-existent file" {
				if err := os.WriteFile(filePath, []byte(tt.content), 0600); err != nil {
					t.Fatalf("Failed to create test file: %v", err)
				}
			}

			cfg, err := NewLoader(filePath).Load()

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Load() error = %v, want %v", err, tt.wantErr)
				}
				return
			}

			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Root != Default().Root {
		t.Errorf("Root = %s, want default %s", cfg.Root, Default().Root)
	}
}

func TestLoaderPath(t *testing.T) {
	isolate(t)

	if got := NewLoader("/etc/runmirror.yaml").Path(); got != "/etc/runmirror.yaml" {
		t.Errorf("Path() = %s, want explicit path", got)
	}

	if got := NewLoader("").Path(); got != "" {
		t.Errorf("Path() = %s, want empty without a config file", got)
	}

	home := os.Getenv("HOME")
	defaultPath := filepath.Join(home, ".config", "runmirror", "config.yaml")
	if err := os.MkdirAll(filepath.Dir(defaultPath), 0700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(defaultPath, []byte("root: /home/runs\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if got := NewLoader("").Path(); got != defaultPath {
		t.Errorf("Path() = %s, want %s", got, defaultPath)
	}

	t.Setenv(EnvConfig, "/from/env.yaml")
	if got := NewLoader("").Path(); got != "/from/env.yaml" {
		t.Errorf("Path() = %s, want value of %s", got, EnvConfig)
	}
}

func TestSave(t *testing.T) {
	isolate(t)
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "nested", "config.yaml")

	cfg := Default()
	cfg.Logging.Level = "debug"
	cfg.Watch.Debounce = 75 * time.Millisecond

	if err := Save(cfg, configPath); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	info, err := os.Stat(configPath)
	if err != nil {
		t.Fatalf("Config file not created: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("config file mode = %o, want 600", perm)
	}

	loadedCfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}

	if loadedCfg.Logging.Level != "debug" {
		t.Errorf("Loaded config LogLevel = %s, want debug", loadedCfg.Logging.Level)
	}
	if loadedCfg.Watch.Debounce != 75*time.Millisecond {
		t.Errorf("Loaded config Debounce = %v, want 75ms", loadedCfg.Watch.Debounce)
	}
}

func TestSaveRejectsInvalid(t *testing.T) {
	cfg := Default()
	cfg.Root = ""

	err := Save(cfg, filepath.Join(t.TempDir(), "config.yaml"))
	if !errors.Is(err, ErrEmptyRoot) {
		t.Errorf("Save() error = %v, want %v", err, ErrEmptyRoot)
	}
}

func TestEnvVarOverrides(t *testing.T) {
	isolate(t)

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	content := "root: /file/runs\ncache:\n  path: /file/cache.db\nlogging:\n  level: warn\n"
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	t.Setenv(EnvConfig, configPath)
	t.Setenv(EnvRoot, "/env/runs")
	t.Setenv(EnvCache, "/env/cache.db")
	t.Setenv(EnvLogLevel, "DEBUG")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Root != "/env/runs" {
		t.Errorf("Root = %s, want /env/runs", cfg.Root)
	}
	if cfg.Cache.Path != "/env/cache.db" {
		t.Errorf("Cache.Path = %s, want /env/cache.db", cfg.Cache.Path)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("LogLevel = %s, want debug", cfg.Logging.Level)
	}
}

func TestExplicitConfigMustExist(t *testing.T) {
	isolate(t)
	t.Setenv(EnvConfig, filepath.Join(t.TempDir(), "missing.yaml"))

	if _, err := Load(); !errors.Is(err, ErrConfigNotFound) {
		t.Errorf("Load() error = %v, want %v", err, ErrConfigNotFound)
	}
}

func BenchmarkValidate(b *testing.B) {
	cfg := Default()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := cfg.Validate(); err != nil {
			b.Fatal(err)
		}
	}
}
