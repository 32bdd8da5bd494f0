package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
server:
  host: "127.0.0.1"
  port: 9000
  cors_origins: ["http://localhost:3000"]
storage:
  database_path: "test.db"
export:
  exports_root: "./exports"
  applicant:
    name: "Acme Pharma"
    duns: "123456789"
validation:
  max_file_size_mb: 100
  severities:
    page-size: ERROR
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if len(cfg.Server.CORSOrigins) != 1 {
		t.Errorf("cors origins: got %v", cfg.Server.CORSOrigins)
	}
	if cfg.Storage.DatabasePath == "" {
		t.Error("database_path should be set")
	}
	if cfg.Storage.Driver != "sqlite" {
		t.Errorf("driver should default to sqlite, got %q", cfg.Storage.Driver)
	}
	if cfg.Export.Applicant.Name != "Acme Pharma" || cfg.Export.Applicant.DUNS != "123456789" {
		t.Errorf("applicant: got %+v", cfg.Export.Applicant)
	}
	if cfg.Validation.MaxFileSizeBytes() != 100*1024*1024 {
		t.Errorf("max file size bytes: got %d", cfg.Validation.MaxFileSizeBytes())
	}
	if cfg.Validation.Severities["page-size"] != "ERROR" {
		t.Errorf("severities: got %v", cfg.Validation.Severities)
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestLoad_missingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config")
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
storage:
  database_path: "./data/db/ectd.db"
  files_root: "./data/files"
export:
  exports_root: "./exports"
watch:
  directories: ["./uploads"]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]string{
		"database_path": filepath.Join(dir, "data", "db", "ectd.db"),
		"files_root":    filepath.Join(dir, "data", "files"),
		"exports_root":  filepath.Join(dir, "exports"),
	}
	got := map[string]string{
		"database_path": cfg.Storage.DatabasePath,
		"files_root":    cfg.Storage.FilesRoot,
		"exports_root":  cfg.Export.ExportsRoot,
	}
	for k, w := range want {
		if got[k] != w {
			t.Errorf("%s = %s, want %s", k, got[k], w)
		}
	}
	if len(cfg.Watch.Directories) != 1 || cfg.Watch.Directories[0] != filepath.Join(dir, "uploads") {
		t.Errorf("watch directories: got %v", cfg.Watch.Directories)
	}
	if !cfg.Watch.RecursiveOrDefault() {
		t.Error("recursive should default to true when directories are set")
	}
}

func TestLoad_envOverrides(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
server:
  port: 8080
storage:
  database_path: "/tmp/from-file.db"
`)
	t.Setenv("ECTD_SERVER_PORT", "9191")
	t.Setenv("ECTD_DEBUG", "true")
	t.Setenv("ECTD_DATABASE_PATH", "/tmp/from-env.db")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 9191 {
		t.Errorf("port: got %d, want 9191", cfg.Server.Port)
	}
	if !cfg.Debug {
		t.Error("debug should be enabled by ECTD_DEBUG")
	}
	if cfg.Storage.DatabasePath != "/tmp/from-env.db" {
		t.Errorf("database_path: got %s", cfg.Storage.DatabasePath)
	}
}

func TestLoad_dotEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "storage:\n  driver: sqlite\n")
	exports := filepath.Join(dir, "from-dotenv")
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("ECTD_EXPORTS_ROOT="+exports+"\n"), 0600); err != nil {
		t.Fatal(err)
	}
	// Registered so the variable set by godotenv is restored after the test.
	t.Setenv("ECTD_EXPORTS_ROOT", "")
	os.Unsetenv("ECTD_EXPORTS_ROOT")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Export.ExportsRoot != exports {
		t.Errorf("exports_root: got %s, want %s", cfg.Export.ExportsRoot, exports)
	}
}

func TestLoad_invalidEnv(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "debug: false\n")
	t.Setenv("ECTD_SERVER_PORT", "eighty")
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "ECTD_SERVER_PORT") {
		t.Fatalf("expected ECTD_SERVER_PORT error, got %v", err)
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Server.Host != "localhost" {
		t.Errorf("default host: got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("default port: got %d", cfg.Server.Port)
	}
	if cfg.Bookmarks.MaxDepth != 4 || cfg.Bookmarks.MaxTitleLength != 120 {
		t.Errorf("bookmark defaults: got %+v", cfg.Bookmarks)
	}
	if cfg.Validation.MaxFileSizeMB != 500 {
		t.Errorf("default max file size: got %d", cfg.Validation.MaxFileSizeMB)
	}
	if len(cfg.Validation.Checks) != 6 {
		t.Errorf("default checks: got %v", cfg.Validation.Checks)
	}
	if cfg.Checksum.BatchSize != 10 {
		t.Errorf("default batch size: got %d", cfg.Checksum.BatchSize)
	}
	if len(cfg.Watch.Extensions) != 1 || cfg.Watch.Extensions[0] != ".pdf" {
		t.Errorf("watch extensions: got %v", cfg.Watch.Extensions)
	}
	if !cfg.Export.CoverPage() || !cfg.Export.Pretty() || !cfg.Export.XLSX() {
		t.Error("cover page, pretty print and xlsx report should default to true")
	}
	if cfg.Watch.Recursive != nil {
		t.Error("recursive should stay unset without directories")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "server"},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "mysql" }, "storage"},
		{"postgres without url", func(c *Config) { c.Storage.Driver = "postgres" }, "storage"},
		{"zero depth", func(c *Config) { c.Bookmarks.MaxDepth = -1 }, "bookmarks"},
		{"unknown severity", func(c *Config) { c.Validation.Severities = map[string]string{"file-size": "FATAL"} }, "validation"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			ApplyDefaults(cfg)
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.HasPrefix(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want %s error", err, tt.want)
			}
		})
	}
}

func TestWatchConfig_RecursiveOrDefault(t *testing.T) {
	t.Run("nil_returns_true", func(t *testing.T) {
		w := &WatchConfig{}
		if got := w.RecursiveOrDefault(); !got {
			t.Errorf("RecursiveOrDefault() = %v, want true", got)
		}
	})
	t.Run("false_returns_false", func(t *testing.T) {
		f := false
		w := &WatchConfig{Recursive: &f}
		if got := w.RecursiveOrDefault(); got {
			t.Errorf("RecursiveOrDefault() = %v, want false", got)
		}
	})
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "saved.yaml")
	cfg := &Config{
		Server:  ServerConfig{Host: "localhost", Port: 9090},
		Storage: StorageConfig{DatabasePath: "/tmp/db"},
		Watch:   WatchConfig{Directories: []string{"/tmp/uploads"}},
	}
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.Port != 9090 {
		t.Errorf("loaded port: got %d", loaded.Server.Port)
	}
	if len(loaded.Watch.Directories) != 1 || loaded.Watch.Directories[0] != "/tmp/uploads" {
		t.Errorf("loaded watch directories: got %v", loaded.Watch.Directories)
	}
}
