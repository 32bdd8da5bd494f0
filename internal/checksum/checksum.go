// Package checksum computes the MD5 digests referenced by the eCTD backbone. MD5 is fixed by
// the eCTD specification; digests are always 32 lowercase hex characters.
package checksum

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"regexp"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultBatchSize bounds how many files are open at once during batch computation.
const DefaultBatchSize = 10

// Type is the checksum-type attribute written to the backbone.
const Type = "md5"

// Placeholder is substituted when a file's checksum cannot be computed.
const Placeholder = "00000000000000000000000000000000"

var hexPattern = regexp.MustCompile(`^[a-f0-9]{32}$`)

// Valid reports whether s is a well-formed lowercase MD5 hex digest.
func Valid(s string) bool {
	return hexPattern.MatchString(s)
}

// CalculateMD5 streams the file at path through MD5.
func CalculateMD5(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return CalculateMD5FromReader(f)
}

// CalculateMD5FromReader digests everything readable from r.
func CalculateMD5FromReader(r io.Reader) (string, error) {
	h := md5.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("read: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// CalculateMD5FromBuffer digests in-memory content.
func CalculateMD5FromBuffer(b []byte) string {
	sum := md5.Sum(b)
	return hex.EncodeToString(sum[:])
}

// BatchResult holds digests by path plus the per-file failures that were skipped.
type BatchResult struct {
	Checksums map[string]string `json:"checksums"`
	Failures  map[string]string `json:"failures,omitempty"`
}

// Calculator computes checksums for many files in fixed-size batches.
type Calculator struct {
	batchSize int
	logger    *zap.Logger
}

// Option configures a Calculator.
type Option func(*Calculator)

// WithBatchSize overrides DefaultBatchSize. Values below 1 are ignored.
func WithBatchSize(n int) Option {
	return func(c *Calculator) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// WithLogger sets the logger used for per-file failures.
func WithLogger(l *zap.Logger) Option {
	return func(c *Calculator) { c.logger = l }
}

// NewCalculator returns a calculator with DefaultBatchSize.
func NewCalculator(opts ...Option) *Calculator {
	c := &Calculator{batchSize: DefaultBatchSize, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CalculateChecksums digests every path. Each batch is fully collected before the next one
// starts. A failing file is recorded in Failures and left out of Checksums; it never aborts
// the batch. Only context cancellation returns an error.
func (c *Calculator) CalculateChecksums(ctx context.Context, paths []string) (*BatchResult, error) {
	res := &BatchResult{
		Checksums: make(map[string]string, len(paths)),
		Failures:  make(map[string]string),
	}
	for start := 0; start < len(paths); start += c.batchSize {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		end := min(start+c.batchSize, len(paths))
		batch := paths[start:end]
		sums := make([]string, len(batch))
		errs := make([]error, len(batch))

		var g errgroup.Group
		for i, p := range batch {
			g.Go(func() error {
				sums[i], errs[i] = CalculateMD5(p)
				return nil
			})
		}
		_ = g.Wait()

		for i, p := range batch {
			if errs[i] != nil {
				c.logger.Warn("checksum failed", zap.String("path", p), zap.Error(errs[i]))
				res.Failures[p] = errs[i].Error()
				continue
			}
			res.Checksums[p] = sums[i]
		}
	}
	return res, nil
}

// CalculateChecksums runs a default Calculator over paths.
func CalculateChecksums(ctx context.Context, paths []string) (*BatchResult, error) {
	return NewCalculator().CalculateChecksums(ctx, paths)
}
