package backbone

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/ectd/internal/checksum"
	"github.com/hyperjump/ectd/internal/models"
)

const (
	IndexFileName    = "index.xml"
	RegionalFileName = "us-regional.xml"

	RegionUS = "us"
)

// Options controls XML rendering.
type Options struct {
	PrettyPrint    bool   `json:"pretty_print" yaml:"pretty_print"`
	IncludeDoctype bool   `json:"include_doctype" yaml:"include_doctype"`
	Region         string `json:"region" yaml:"region"`
}

func (o Options) region() string {
	if o.Region == "" {
		return RegionUS
	}
	return o.Region
}

// Result holds both rendered documents and the leaves they reference.
type Result struct {
	IndexXML    string             `json:"-"`
	RegionalXML string             `json:"-"`
	Leaves      []models.LeafEntry `json:"leaves"`
	Sequence    Sequence           `json:"sequence"`
	Warnings    []string           `json:"warnings,omitempty"`
}

// Generator renders backbone documents.
type Generator struct {
	opts      Options
	checksums *checksum.Calculator
	batchSize int
	logger    *zap.Logger
	now       func() time.Time
}

// Option configures a Generator.
type Option func(*Generator)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(g *Generator) { g.logger = l }
}

// WithOptions sets the rendering options.
func WithOptions(o Options) Option {
	return func(g *Generator) { g.opts = o }
}

// WithBatchSize bounds how many files are read at once.
func WithBatchSize(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.batchSize = n
		}
	}
}

// NewGenerator creates a Generator with pretty printing and the US region.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		opts:      Options{PrettyPrint: true, Region: RegionUS},
		batchSize: checksum.DefaultBatchSize,
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	for _, o := range opts {
		o(g)
	}
	g.checksums = checksum.NewCalculator(checksum.WithBatchSize(g.batchSize), checksum.WithLogger(g.logger))
	return g
}

// Generate builds leaves for files and renders index.xml, plus us-regional.xml for the US
// region. locate maps a package file to the bytes that will ship in the package.
func (g *Generator) Generate(ctx context.Context, files []models.PackageFile, locate func(models.PackageFile) string, meta Metadata, seq Sequence) (*Result, error) {
	seq.Normalize(g.now().UTC())
	if err := seq.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sequence: %w", err)
	}
	if err := meta.Validate(); err != nil {
		return nil, fmt.Errorf("invalid metadata: %w", err)
	}

	leaves, warnings, err := g.BuildLeafEntries(ctx, files, locate)
	if err != nil {
		return nil, err
	}
	res := &Result{
		IndexXML: GenerateIndexXML(leaves, meta, seq, g.opts),
		Leaves:   leaves,
		Sequence: seq,
		Warnings: warnings,
	}
	if g.opts.region() == RegionUS {
		res.RegionalXML = GenerateRegionalXML(leaves, meta, seq, g.opts)
	}
	g.logger.Debug("Generated backbone", zap.Int("leaves", len(leaves)), zap.Int("warnings", len(warnings)))
	return res, nil
}
