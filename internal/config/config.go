// Package config provides configuration loading and structs for the ectd service.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/hyperjump/ectd/internal/backbone"
)

// Config holds all configuration for the application.
type Config struct {
	Debug      bool             `yaml:"debug"`
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Export     ExportConfig     `yaml:"export"`
	Bookmarks  BookmarksConfig  `yaml:"bookmarks"`
	Validation ValidationConfig `yaml:"validation"`
	Checksum   ChecksumConfig   `yaml:"checksum"`
	Watch      WatchConfig      `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// StorageConfig selects the data store and the root uploaded files are resolved against.
type StorageConfig struct {
	Driver       string `yaml:"driver"`
	DatabasePath string `yaml:"database_path"`
	DatabaseURL  string `yaml:"database_url"`
	FilesRoot    string `yaml:"files_root"`
}

// ExportConfig holds package export settings.
type ExportConfig struct {
	ExportsRoot      string             `yaml:"exports_root"`
	IncludeCoverPage *bool              `yaml:"include_cover_page"`
	PrettyPrint      *bool              `yaml:"pretty_print"`
	IncludeDoctype   bool               `yaml:"include_doctype"`
	Region           string             `yaml:"region"`
	KeepStaging      bool               `yaml:"keep_staging"`
	XLSXReport       *bool              `yaml:"xlsx_report"`
	Applicant        backbone.Applicant `yaml:"applicant"`
}

// CoverPage reports whether exports get a cover page; defaults to true when unset.
func (e *ExportConfig) CoverPage() bool { return boolOr(e.IncludeCoverPage, true) }

// Pretty reports whether backbone XML is indented; defaults to true when unset.
func (e *ExportConfig) Pretty() bool { return boolOr(e.PrettyPrint, true) }

// XLSX reports whether the spreadsheet hyperlink report is written; defaults to true when unset.
func (e *ExportConfig) XLSX() bool { return boolOr(e.XLSXReport, true) }

// BookmarksConfig bounds generated bookmark trees.
type BookmarksConfig struct {
	MaxDepth       int `yaml:"max_depth"`
	MaxTitleLength int `yaml:"max_title_length"`
}

// ValidationConfig selects and tunes the per-file checks.
type ValidationConfig struct {
	MaxFileSizeMB      int               `yaml:"max_file_size_mb"`
	AllowedPDFVersions []string          `yaml:"allowed_pdf_versions"`
	Checks             []string          `yaml:"checks"`
	Severities         map[string]string `yaml:"severities"`
}

// MaxFileSizeBytes converts the configured ceiling to bytes.
func (v *ValidationConfig) MaxFileSizeBytes() int64 {
	return int64(v.MaxFileSizeMB) * 1024 * 1024
}

// ChecksumConfig holds checksum batching settings.
type ChecksumConfig struct {
	BatchSize int `yaml:"batch_size"`
}

// WatchConfig holds upload directory watch settings.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
	Recursive   *bool    `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool { return boolOr(w.Recursive, true) }

func boolOr(b *bool, def bool) bool {
	if b != nil {
		return *b
	}
	return def
}

// Load reads and parses the config file at path, loads an optional .env next to it, applies
// ECTD_* environment overrides and defaults, and expands paths.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	configDir := filepath.Dir(path)
	envFile := filepath.Join(configDir, ".env")
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}

	ApplyDefaults(&cfg)

	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.FilesRoot = expandPath(cfg.Storage.FilesRoot, configDir)
	cfg.Export.ExportsRoot = expandPath(cfg.Export.ExportsRoot, configDir)
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	return &cfg, nil
}

// applyEnv overrides file values with ECTD_* variables. Existing process variables win over
// the .env file, as godotenv never overwrites them.
func applyEnv(cfg *Config) error {
	str := map[string]*string{
		"ECTD_DATABASE_PATH":  &cfg.Storage.DatabasePath,
		"ECTD_DATABASE_URL":   &cfg.Storage.DatabaseURL,
		"ECTD_STORAGE_DRIVER": &cfg.Storage.Driver,
		"ECTD_FILES_ROOT":     &cfg.Storage.FilesRoot,
		"ECTD_EXPORTS_ROOT":   &cfg.Export.ExportsRoot,
	}
	for key, dst := range str {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	if v, ok := os.LookupEnv("ECTD_DEBUG"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid ECTD_DEBUG %q: %w", v, err)
		}
		cfg.Debug = b
	}
	if v, ok := os.LookupEnv("ECTD_SERVER_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid ECTD_SERVER_PORT %q: %w", v, err)
		}
		cfg.Server.Port = port
	}
	return nil
}

// Validate checks the loaded configuration.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(&c.Server,
		validation.Field(&c.Server.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	postgres := c.Storage.Driver == "postgres"
	if err := validation.ValidateStruct(&c.Storage,
		validation.Field(&c.Storage.Driver, validation.In("sqlite", "postgres")),
		validation.Field(&c.Storage.DatabasePath, validation.When(!postgres, validation.Required)),
		validation.Field(&c.Storage.DatabaseURL, validation.When(postgres, validation.Required)),
	); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := validation.ValidateStruct(&c.Export,
		validation.Field(&c.Export.ExportsRoot, validation.Required),
		validation.Field(&c.Export.Region, validation.In(backbone.RegionUS, "eu", "jp")),
	); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	if err := validation.ValidateStruct(&c.Bookmarks,
		validation.Field(&c.Bookmarks.MaxDepth, validation.Min(1)),
		validation.Field(&c.Bookmarks.MaxTitleLength, validation.Min(4)),
	); err != nil {
		return fmt.Errorf("bookmarks: %w", err)
	}
	if err := validation.ValidateStruct(&c.Validation,
		validation.Field(&c.Validation.MaxFileSizeMB, validation.Min(1)),
		validation.Field(&c.Validation.Severities, validation.Each(validation.In("ERROR", "WARNING", "INFO"))),
	); err != nil {
		return fmt.Errorf("validation: %w", err)
	}
	return nil
}

// Save writes the config to path. Used for persisting watch directory add/remove.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
