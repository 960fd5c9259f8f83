package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
  shutdown_timeout: 3s
storage:
  driver: memory
crossref:
  base_url: http://crossref.test
  page_size: 50
openalex:
  timeout: 12s
pacing:
  with_email: 100ms
  without_email: 2s
retry:
  max_attempts: 3
  base_delay: 500ms
  max_delay: 4s
feed:
  initial_batch: 8
  load_more_batch: 4
logging:
  development: false
  level: warn
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 || cfg.Server.ShutdownTimeout != 3*time.Second {
		t.Fatalf("expected server overrides, got %+v", cfg.Server)
	}
	if cfg.Storage.Driver != DriverMemory {
		t.Fatalf("expected memory driver, got %q", cfg.Storage.Driver)
	}
	if cfg.Crossref.BaseURL != "http://crossref.test" || cfg.Crossref.PageSize != 50 {
		t.Fatalf("expected crossref overrides, got %+v", cfg.Crossref)
	}
	if cfg.OpenAlex.Timeout != 12*time.Second {
		t.Fatalf("expected openalex timeout 12s, got %v", cfg.OpenAlex.Timeout)
	}
	if cfg.Pacing.WithEmail != 100*time.Millisecond || cfg.Pacing.WithoutEmail != 2*time.Second {
		t.Fatalf("expected pacing overrides, got %+v", cfg.Pacing)
	}
	if cfg.Retry.MaxAttempts != 3 || cfg.Retry.BaseDelay != 500*time.Millisecond {
		t.Fatalf("expected retry overrides, got %+v", cfg.Retry)
	}
	if cfg.Feed.InitialBatch != 8 || cfg.Feed.LoadMoreBatch != 4 {
		t.Fatalf("expected feed overrides, got %+v", cfg.Feed)
	}
	if cfg.Logging.Development || cfg.Logging.Level != "warn" {
		t.Fatalf("expected production logging at warn, got %+v", cfg.Logging)
	}
	if cfg.Addr() != ":9090" {
		t.Fatalf("expected addr :9090, got %q", cfg.Addr())
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Storage.Driver != DriverBolt {
		t.Fatalf("expected bolt driver, got %q", cfg.Storage.Driver)
	}
	if !strings.HasSuffix(cfg.Storage.Path, filepath.Join("paper-scroll", "paperscroll.db")) {
		t.Fatalf("expected xdg data path, got %q", cfg.Storage.Path)
	}
	if cfg.Crossref.PageSize != 200 || cfg.Crossref.Timeout != 45*time.Second {
		t.Fatalf("unexpected crossref defaults: %+v", cfg.Crossref)
	}
	if cfg.OpenAlex.Timeout != 30*time.Second {
		t.Fatalf("unexpected openalex timeout: %v", cfg.OpenAlex.Timeout)
	}
	if cfg.Pacing.WithEmail != 200*time.Millisecond || cfg.Pacing.WithoutEmail != time.Second {
		t.Fatalf("unexpected pacing defaults: %+v", cfg.Pacing)
	}
	if cfg.Retry.MaxAttempts != 5 || cfg.Retry.BaseDelay != time.Second || cfg.Retry.MaxDelay != 8*time.Second {
		t.Fatalf("unexpected retry defaults: %+v", cfg.Retry)
	}
	if cfg.Feed.InitialBatch != 5 || cfg.Feed.LoadMoreBatch != 3 {
		t.Fatalf("unexpected feed defaults: %+v", cfg.Feed)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("PAPERSCROLL_SERVER_PORT", "7070")
	t.Setenv("PAPERSCROLL_STORAGE_DRIVER", "memory")
	t.Setenv("PAPERSCROLL_RETRY_MAX_ATTEMPTS", "2")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Fatalf("expected env port 7070, got %d", cfg.Server.Port)
	}
	if cfg.Storage.Driver != DriverMemory {
		t.Fatalf("expected env driver memory, got %q", cfg.Storage.Driver)
	}
	if cfg.Retry.MaxAttempts != 2 {
		t.Fatalf("expected env retry attempts 2, got %d", cfg.Retry.MaxAttempts)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:   ServerConfig{Port: 8080},
		Storage:  StorageConfig{Driver: DriverBolt, Path: "/tmp/paperscroll.db"},
		Crossref: CrossrefConfig{Timeout: time.Second, PageSize: 200},
		OpenAlex: OpenAlexConfig{Timeout: time.Second},
		Retry:    RetryConfig{MaxAttempts: 5, BaseDelay: time.Second, MaxDelay: 8 * time.Second},
		Feed:     FeedConfig{InitialBatch: 5, LoadMoreBatch: 3},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("base config should validate: %v", err)
	}

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "invalid port",
			cfg: func() Config {
				c := base
				c.Server.Port = 0
				return c
			}(),
			want: "server.port",
		},
		{
			name: "unknown driver",
			cfg: func() Config {
				c := base
				c.Storage.Driver = "sqlite"
				return c
			}(),
			want: "storage.driver",
		},
		{
			name: "postgres missing dsn",
			cfg: func() Config {
				c := base
				c.Storage.Driver = DriverPostgres
				return c
			}(),
			want: "storage.dsn",
		},
		{
			name: "bolt missing path",
			cfg: func() Config {
				c := base
				c.Storage.Path = ""
				return c
			}(),
			want: "storage.path",
		},
		{
			name: "page size too large",
			cfg: func() Config {
				c := base
				c.Crossref.PageSize = 5000
				return c
			}(),
			want: "crossref.page_size",
		},
		{
			name: "retry delays inverted",
			cfg: func() Config {
				c := base
				c.Retry.MaxDelay = time.Millisecond
				return c
			}(),
			want: "retry.base_delay",
		},
		{
			name: "empty feed batch",
			cfg: func() Config {
				c := base
				c.Feed.LoadMoreBatch = 0
				return c
			}(),
			want: "feed batch",
		},
		{
			name: "unknown log level",
			cfg: func() Config {
				c := base
				c.Logging.Level = "loud"
				return c
			}(),
			want: "logging.level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
