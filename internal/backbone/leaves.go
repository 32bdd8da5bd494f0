package backbone

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/ectd/internal/checksum"
	"github.com/hyperjump/ectd/internal/fileid"
	"github.com/hyperjump/ectd/internal/models"
	"github.com/hyperjump/ectd/internal/naming"
)

// OperationNew is the leaf operation of a document first filed in this sequence.
const OperationNew = "new"

// LeafTitle is the title written for a package file.
func LeafTitle(f models.PackageFile) string {
	if f.NodeTitle != "" {
		return f.NodeTitle
	}
	return f.FileName
}

// BuildLeafEntries turns package files into leaf entries. locate maps a file to the bytes the
// checksum and size are read from. Checksums are computed in batches; a file whose checksum
// fails gets checksum.Placeholder and a warning instead of aborting. Output order follows files.
func (g *Generator) BuildLeafEntries(ctx context.Context, files []models.PackageFile, locate func(models.PackageFile) string) ([]models.LeafEntry, []string, error) {
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = locate(f)
	}
	sums, err := g.checksums.CalculateChecksums(ctx, paths)
	if err != nil {
		return nil, nil, err
	}

	leaves := make([]models.LeafEntry, len(files))
	var eg errgroup.Group
	eg.SetLimit(g.batchSize)
	for i, f := range files {
		eg.Go(func() error {
			size := f.FileSize
			if info, err := os.Stat(paths[i]); err == nil {
				size = info.Size()
			}
			sum, ok := sums.Checksums[paths[i]]
			if !ok {
				sum = checksum.Placeholder
			}
			href := naming.ToSlash(f.TargetPath)
			leaves[i] = models.LeafEntry{
				ID:           fileid.LeafID(href),
				Href:         href,
				Checksum:     sum,
				ChecksumType: checksum.Type,
				FileSize:     size,
				Title:        LeafTitle(f),
				NodeCode:     f.NodeCode,
				Operation:    OperationNew,
			}
			return nil
		})
	}
	_ = eg.Wait()

	var warnings []string
	for i, f := range files {
		if msg, failed := sums.Failures[paths[i]]; failed {
			warnings = append(warnings, fmt.Sprintf("%s: checksum failed, placeholder used: %s", f.TargetPath, msg))
			g.logger.Warn("Checksum placeholder used", zap.String("path", f.TargetPath))
		}
	}
	return leaves, warnings, nil
}
