package config

import (
	"slices"

	"github.com/hyperjump/ectd/internal/backbone"
	"github.com/hyperjump/ectd/internal/bookmarks"
	"github.com/hyperjump/ectd/internal/checks"
	"github.com/hyperjump/ectd/internal/checksum"
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "sqlite"
	}
	if cfg.Storage.DatabasePath == "" && cfg.Storage.Driver == "sqlite" {
		cfg.Storage.DatabasePath = "/usr/local/var/ectd/data/db/ectd.db"
	}
	if cfg.Storage.FilesRoot == "" {
		cfg.Storage.FilesRoot = "/usr/local/var/ectd/data/files"
	}
	if cfg.Export.ExportsRoot == "" {
		cfg.Export.ExportsRoot = "/usr/local/var/ectd/exports"
	}
	if cfg.Export.Region == "" {
		cfg.Export.Region = backbone.RegionUS
	}
	if cfg.Bookmarks.MaxDepth == 0 {
		cfg.Bookmarks.MaxDepth = bookmarks.DefaultMaxDepth
	}
	if cfg.Bookmarks.MaxTitleLength == 0 {
		cfg.Bookmarks.MaxTitleLength = bookmarks.DefaultMaxTitleLength
	}
	if cfg.Validation.MaxFileSizeMB == 0 {
		cfg.Validation.MaxFileSizeMB = 500
	}
	if cfg.Validation.AllowedPDFVersions == nil {
		cfg.Validation.AllowedPDFVersions = slices.Clone(checks.DefaultConfig().AllowedVersions)
	}
	if cfg.Validation.Checks == nil {
		cfg.Validation.Checks = slices.Clone(checks.DefaultChecks)
	}
	if cfg.Checksum.BatchSize == 0 {
		cfg.Checksum.BatchSize = checksum.DefaultBatchSize
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".pdf"}
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}
