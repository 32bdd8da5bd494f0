// Package fileid derives identifiers for package leaves and export runs.
package fileid

import (
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/hyperjump/ectd/internal/naming"
)

const prefix = "id"

// namespace scopes name-based leaf UUIDs to this tool.
var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/hyperjump/ectd/leaf"))

// LeafID returns a stable XML ID for the leaf at targetPath. The same path always yields
// the same ID, regardless of host separators or redundant path elements.
func LeafID(targetPath string) string {
	normalized := path.Clean(naming.ToSlash(targetPath))
	id := uuid.NewSHA1(namespace, []byte(normalized))
	return prefix + strings.ReplaceAll(id.String(), "-", "")
}

// ExportName returns a unique directory and archive name for one export run.
func ExportName(studyNumber, sequence string) string {
	return naming.SanitizePathComponent(studyNumber) + "-" + sequence + "-" + uuid.NewString()
}
