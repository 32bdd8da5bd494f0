package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/ectd/internal/assembler"
	"github.com/hyperjump/ectd/internal/config"
	"github.com/hyperjump/ectd/internal/models"
	"github.com/hyperjump/ectd/internal/storage"
)

const studyYAML = `
study:
  study_number: ABC-123
  title: A Phase 3 Study
  sponsor: Acme Pharma
template:
  name: CSR
  nodes:
    - code: "16"
      title: Appendices
    - code: "16.1"
      title: Study Information
    - code: "16.1.1"
      title: Protocol
      required: true
    - code: "16.2"
      title: Listings
documents:
  - node: "16.1.1"
    source_path: uploads/protocol.pdf
    status: PUBLISHED
  - node: "16.2"
    source_path: uploads/listings.pdf
    status: IN_REVIEW
    annotations:
      - type: CORRECTION_REQUIRED
        comment: fix table 3
`

func TestLoadConfig_prefersCwdConfigWhenDefaultPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
debug: true
server:
  host: "localhost"
  port: 8080
storage:
  database_path: "test.db"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Chdir(origWd) }()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	// On macOS, cwd can be /private/var/... while configPath from t.TempDir() is /var/...; compare canonical paths.
	resolvedCanon, _ := filepath.EvalSymlinks(resolved)
	configPathCanon, _ := filepath.EvalSymlinks(configPath)
	if resolvedCanon != configPathCanon {
		t.Errorf("resolved path = %s (canon %s), want %s (canon %s)", resolved, resolvedCanon, configPath, configPathCanon)
	}
	if !cfg.Debug {
		t.Error("debug should be true from cwd config.yaml")
	}
}

func TestLoadConfig_usesExplicitPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
storage:
  database_path: "test.db"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != configPath {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
}

func TestParseDefinition(t *testing.T) {
	def, err := parseDefinition([]byte(studyYAML))
	if err != nil {
		t.Fatal(err)
	}
	if def.Study.StudyNumber != "ABC-123" || def.Template.Name != "CSR" {
		t.Errorf("unexpected definition: %+v", def.Study)
	}
	if len(def.Template.Nodes) != 4 || len(def.Documents) != 2 {
		t.Fatalf("got %d nodes, %d documents", len(def.Template.Nodes), len(def.Documents))
	}
	if !def.Template.Nodes[2].Required {
		t.Error("protocol node should be required")
	}
	if got := def.Documents[1].Annotations[0].Type; got != models.AnnotationCorrectionRequired {
		t.Errorf("annotation type = %s", got)
	}
}

func TestParseDefinition_invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"not yaml", "study: [", "failed to parse"},
		{"missing study number", "study:\n  title: T\ntemplate:\n  nodes:\n    - code: \"1\"\n", "study"},
		{"no nodes", "study:\n  study_number: S\n  title: T\n", "at least one node"},
		{
			"duplicate code",
			"study:\n  study_number: S\n  title: T\ntemplate:\n  nodes:\n    - code: \"1\"\n    - code: \"1\"\n",
			"duplicate node code 1",
		},
		{
			"unknown node",
			"study:\n  study_number: S\n  title: T\ntemplate:\n  nodes:\n    - code: \"1\"\ndocuments:\n  - node: \"2\"\n    source_path: a.pdf\n",
			"unknown node 2",
		},
		{
			"unknown status",
			"study:\n  study_number: S\n  title: T\ntemplate:\n  nodes:\n    - code: \"1\"\ndocuments:\n  - node: \"1\"\n    source_path: a.pdf\n    status: DONE\n",
			"unknown status DONE",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseDefinition([]byte(tt.yaml))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func newTestStore(t *testing.T) (*storage.SQLiteStore, *storage.FileStore) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewSQLiteStore(filepath.Join(dir, "ectd.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	files, err := storage.NewFileStore(filepath.Join(dir, "files"))
	if err != nil {
		t.Fatal(err)
	}
	return store, files
}

func TestImportStudy(t *testing.T) {
	ctx := context.Background()
	store, files := newTestStore(t)
	if err := files.Write("uploads/protocol.pdf", []byte("%PDF-1.4\n%%EOF\n")); err != nil {
		t.Fatal(err)
	}
	def, err := parseDefinition([]byte(studyYAML))
	if err != nil {
		t.Fatal(err)
	}

	sum, err := importStudy(ctx, store, files, def)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Nodes != 4 || sum.Documents != 2 || sum.Annotations != 1 {
		t.Errorf("unexpected summary: %+v", sum)
	}

	nodes, err := store.ListStructureNodes(ctx, sum.TemplateID)
	if err != nil {
		t.Fatal(err)
	}
	byCode := make(map[string]*models.StructureNode, len(nodes))
	for _, n := range nodes {
		byCode[n.Code] = n
	}
	if byCode["16"].ParentID != nil {
		t.Error("root node should have no parent")
	}
	if p := byCode["16.1.1"].ParentID; p == nil || *p != byCode["16.1"].ID {
		t.Errorf("16.1.1 parent = %v, want %s", p, byCode["16.1"].ID)
	}
	if p := byCode["16.2"].ParentID; p == nil || *p != byCode["16"].ID {
		t.Errorf("16.2 parent = %v, want %s", p, byCode["16"].ID)
	}

	docs, err := store.ListStudyDocuments(ctx, sum.StudyID)
	if err != nil {
		t.Fatal(err)
	}
	for _, d := range docs {
		if d.Version != 1 {
			t.Errorf("%s version = %d, want 1", d.SourcePath, d.Version)
		}
		if d.SourcePath == "uploads/protocol.pdf" && d.FileSize == 0 {
			t.Error("file size should be read from the file store")
		}
	}

	rc, err := assembler.New(store, assembler.WithFileStore(files)).CheckReadiness(ctx, sum.StudyID)
	if err != nil {
		t.Fatal(err)
	}
	if len(rc.MissingRequired) != 0 || rc.UnresolvedAnnotations != 1 || rc.Ready {
		t.Errorf("unexpected readiness: %+v", rc)
	}
}

func TestResolveStudy(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	st := &models.Study{StudyNumber: "XYZ-9", Title: "T"}
	if err := store.CreateStudy(ctx, st); err != nil {
		t.Fatal(err)
	}

	byID, err := resolveStudy(ctx, store, st.ID)
	if err != nil || byID.StudyNumber != "XYZ-9" {
		t.Errorf("by id: %v, %v", byID, err)
	}
	byNumber, err := resolveStudy(ctx, store, "XYZ-9")
	if err != nil || byNumber.ID != st.ID {
		t.Errorf("by number: %v, %v", byNumber, err)
	}
	if _, err := resolveStudy(ctx, store, "nope"); !errors.Is(err, assembler.ErrStudyNotFound) {
		t.Errorf("err = %v, want ErrStudyNotFound", err)
	}
}

func TestNewValidator_usesConfiguredChecks(t *testing.T) {
	cfg := &config.Config{}
	cfg.Validation.Checks = []string{"file-size", "pdf-parseable"}
	cfg.Validation.Severities = map[string]string{"file-size": "warning"}
	v := newValidator(cfg, zap.NewNop())
	if got := v.Checks(); !reflect.DeepEqual(got, cfg.Validation.Checks) {
		t.Errorf("checks = %v, want %v", got, cfg.Validation.Checks)
	}
}

func TestExporterOptions_defaults(t *testing.T) {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	opts := exporterOptions(cfg)
	if !opts.IncludeCoverPage || !opts.PrettyPrint || !opts.XLSXReport {
		t.Errorf("unset booleans should default to true: %+v", opts)
	}
	if opts.Region != "us" || opts.MaxDepth != cfg.Bookmarks.MaxDepth || opts.BatchSize != cfg.Checksum.BatchSize {
		t.Errorf("unexpected options: %+v", opts)
	}
}

// writeConfig writes a config whose data lives under dir.
func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf(`
storage:
  database_path: %q
  files_root: %q
export:
  exports_root: %q
`, filepath.Join(dir, "ectd.db"), filepath.Join(dir, "files"), filepath.Join(dir, "exports"))
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestRootCmd_importThenReadiness(t *testing.T) {
	dir := t.TempDir()
	configPath := writeConfig(t, dir)
	defPath := filepath.Join(dir, "study.yaml")
	if err := os.WriteFile(defPath, []byte(studyYAML), 0600); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "--config", configPath, "import", defPath)
	if err != nil {
		t.Fatalf("import: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Imported study ABC-123") {
		t.Errorf("unexpected import output:\n%s", out)
	}

	out, err = execute(t, "--config", configPath, "-o", "json", "readiness", "ABC-123")
	if err != nil {
		t.Fatalf("readiness: %v\n%s", err, out)
	}
	var rc models.ReadinessCheck
	if err := json.Unmarshal([]byte(out), &rc); err != nil {
		t.Fatalf("readiness output is not JSON: %v\n%s", err, out)
	}
	if rc.Ready || rc.UnresolvedAnnotations != 1 || len(rc.PendingApproval) != 1 {
		t.Errorf("unexpected readiness: %+v", rc)
	}

	out, err = execute(t, "--config", configPath, "assemble", "ABC-123")
	if err != nil {
		t.Fatalf("assemble: %v\n%s", err, out)
	}
	if !strings.Contains(out, "m5/abc-123/16-1-1/protocol.pdf") {
		t.Errorf("unexpected manifest output:\n%s", out)
	}

	out, err = execute(t, "--config", configPath, "status")
	if err != nil {
		t.Fatalf("status: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Studies:            1") || !strings.Contains(out, "Documents:          2") {
		t.Errorf("unexpected status output:\n%s", out)
	}
}

func TestRootCmd_unknownStudy(t *testing.T) {
	dir := t.TempDir()
	configPath := writeConfig(t, dir)
	if _, err := execute(t, "--config", configPath, "readiness", "missing"); !errors.Is(err, assembler.ErrStudyNotFound) {
		t.Errorf("err = %v, want ErrStudyNotFound", err)
	}
}

func TestRootCmd_exportRejectsBadSequence(t *testing.T) {
	dir := t.TempDir()
	configPath := writeConfig(t, dir)
	_, err := execute(t, "--config", configPath, "export", "ABC-123", "--sequence", "12")
	if err == nil || !strings.Contains(err.Error(), "four digits") {
		t.Errorf("err = %v, want sequence error", err)
	}
	_, err = execute(t, "--config", configPath, "export", "ABC-123", "--type", "bogus")
	if err == nil || !strings.Contains(err.Error(), "unknown submission type") {
		t.Errorf("err = %v, want type error", err)
	}
}

func TestRootCmd_version(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) != "ectd version dev" {
		t.Errorf("output = %q", out)
	}
}
