// Package main is the ectd CLI entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/ectd/internal/assembler"
	"github.com/hyperjump/ectd/internal/checks"
	"github.com/hyperjump/ectd/internal/cli"
	"github.com/hyperjump/ectd/internal/config"
	"github.com/hyperjump/ectd/internal/exporter"
	"github.com/hyperjump/ectd/internal/models"
	"github.com/hyperjump/ectd/internal/storage"
	"github.com/hyperjump/ectd/internal/validator"
	"github.com/hyperjump/ectd/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/ectd/config.yaml"

// globalFlags are the persistent flags shared by every subcommand.
type globalFlags struct {
	configPath string
	debug      bool
	output     string
}

func (g *globalFlags) format() (cli.OutputFormat, error) {
	return cli.ParseFormat(g.output)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:          "ectd",
		Short:        "Assemble, validate and export eCTD submission packages",
		Version:      version,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&g.configPath, "config", defaultConfigPath, "config file path")
	root.PersistentFlags().BoolVar(&g.debug, "debug", false, "enable debug logging")
	root.PersistentFlags().StringVarP(&g.output, "output", "o", "text", "output format: text or json")

	root.AddCommand(
		newServeCmd(g),
		newReadinessCmd(g),
		newAssembleCmd(g),
		newBookmarksCmd(g),
		newLinksCmd(g),
		newValidateCmd(g),
		newExportCmd(g),
		newWatchCmd(g),
		newImportCmd(g),
		newStatusCmd(g),
		newVersionCmd(),
	)
	return root
}

// loadConfig loads config from path. When path is the default and config.yaml exists in the
// current directory, that file is used instead. Returns the loaded config and the path used.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// Components holds the wired engine shared by the commands.
type Components struct {
	Config     *config.Config
	ConfigPath string
	Debug      bool
	Logger     *zap.Logger
	Store      storage.Database
	Files      *storage.FileStore
	Assembler  *assembler.Assembler
	Validator  *validator.Validator
	Exporter   *exporter.Exporter
}

// Close releases the store and flushes the logger.
func (c *Components) Close() {
	if c.Store != nil {
		_ = c.Store.Close()
	}
	if c.Logger != nil {
		_ = c.Logger.Sync()
	}
}

func initializeComponents(ctx context.Context, g *globalFlags) (*Components, error) {
	cfg, resolved, err := loadConfig(g.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", resolved, err)
	}
	debug := cfg.Debug || g.debug
	logger, err := utils.NewLogger(debug)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	logger.Debug("config loaded", zap.String("config_path", resolved), zap.String("driver", cfg.Storage.Driver))

	c := &Components{Config: cfg, ConfigPath: resolved, Debug: debug, Logger: logger}
	c.Store, err = storage.Open(ctx, cfg.Storage.Driver, cfg.Storage.DatabasePath, cfg.Storage.DatabaseURL)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c.Files, err = storage.NewFileStore(cfg.Storage.FilesRoot)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize file store: %w", err)
	}
	c.Assembler = assembler.New(c.Store, assembler.WithLogger(logger), assembler.WithFileStore(c.Files))
	c.Validator = newValidator(cfg, logger)
	c.Exporter, err = exporter.New(c.Assembler, exporterOptions(cfg),
		exporter.WithLogger(logger),
		exporter.WithValidator(c.Validator),
	)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize exporter: %w", err)
	}
	return c, nil
}

func newValidator(cfg *config.Config, logger *zap.Logger) *validator.Validator {
	registry := checks.NewRegistry(checks.Config{
		MaxFileSize:     cfg.Validation.MaxFileSizeBytes(),
		AllowedVersions: cfg.Validation.AllowedPDFVersions,
	})
	severities := make(map[string]models.Severity, len(cfg.Validation.Severities))
	for name, sev := range cfg.Validation.Severities {
		severities[name] = models.Severity(strings.ToUpper(sev))
	}
	return validator.New(
		validator.WithLogger(logger),
		validator.WithRegistry(registry),
		validator.WithChecks(cfg.Validation.Checks),
		validator.WithSeverities(severities),
	)
}

func exporterOptions(cfg *config.Config) exporter.Options {
	return exporter.Options{
		ExportsRoot:      cfg.Export.ExportsRoot,
		IncludeCoverPage: cfg.Export.CoverPage(),
		PrettyPrint:      cfg.Export.Pretty(),
		IncludeDoctype:   cfg.Export.IncludeDoctype,
		Region:           cfg.Export.Region,
		KeepStaging:      cfg.Export.KeepStaging,
		XLSXReport:       cfg.Export.XLSX(),
		MaxDepth:         cfg.Bookmarks.MaxDepth,
		MaxTitleLength:   cfg.Bookmarks.MaxTitleLength,
		BatchSize:        cfg.Checksum.BatchSize,
		Applicant:        cfg.Export.Applicant,
	}
}

// resolveStudy accepts a study ID or a study number.
func resolveStudy(ctx context.Context, store storage.Store, ref string) (*models.Study, error) {
	st, err := store.GetStudy(ctx, ref)
	if err == nil {
		return st, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	st, err = store.GetStudyByNumber(ctx, ref)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("study %q: %w", ref, assembler.ErrStudyNotFound)
		}
		return nil, err
	}
	return st, nil
}
