package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/ectd/internal/assembler"
	"github.com/hyperjump/ectd/internal/config"
	"github.com/hyperjump/ectd/internal/exporter"
	"github.com/hyperjump/ectd/internal/models"
	"github.com/hyperjump/ectd/internal/storage"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		s.logger.Error("status: stats failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := map[string]interface{}{
		"studies":            stats.Studies,
		"documents":          stats.Documents,
		"validation_results": stats.ValidationResults,
		"failed_validations": stats.FailedValidations,
		"config": map[string]interface{}{
			"storage_driver": s.config.Storage.Driver,
			"files_root":     s.config.Storage.FilesRoot,
			"exports_root":   s.config.Export.ExportsRoot,
			"region":         s.config.Export.Region,
			"checks":         s.validator.Checks(),
		},
	}
	if n, err := storage.DiskUsageBytes(s.config.Export.ExportsRoot); err == nil {
		resp["exports_disk_usage_bytes"] = n
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListStudies(w http.ResponseWriter, r *http.Request) {
	studies, err := s.store.ListStudies(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	if studies == nil {
		studies = []*models.Study{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"studies": studies})
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	rc, err := s.assembler.CheckReadiness(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, rc)
}

// manifest assembles the study named in the URL, honoring ?include_drafts=true.
func (s *Server) manifest(w http.ResponseWriter, r *http.Request) (*models.PackageManifest, bool) {
	includeDrafts := false
	if v := r.URL.Query().Get("include_drafts"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "include_drafts must be a boolean")
			return nil, false
		}
		includeDrafts = b
	}
	m, err := s.assembler.Assemble(r.Context(), chi.URLParam(r, "id"), assembler.Options{IncludeDrafts: includeDrafts})
	if err != nil {
		s.fail(w, err)
		return nil, false
	}
	return m, true
}

func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	m, ok := s.manifest(w, r)
	if !ok {
		return
	}
	s.respondJSON(w, http.StatusOK, m)
}

func (s *Server) handleBookmarks(w http.ResponseWriter, r *http.Request) {
	m, ok := s.manifest(w, r)
	if !ok {
		return
	}
	bm, err := s.bookmarks.Build(r.Context(), m)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, bm)
}

func (s *Server) handleHyperlinks(w http.ResponseWriter, r *http.Request) {
	m, ok := s.manifest(w, r)
	if !ok {
		return
	}
	rep, err := s.links.Generate(r.Context(), m)
	if err != nil {
		s.fail(w, err)
		return
	}
	if r.URL.Query().Get("format") == "csv" {
		w.Header().Set("Content-Type", "text/csv")
		w.WriteHeader(http.StatusOK)
		if err := rep.WriteCSV(w); err != nil {
			s.logger.Warn("hyperlink csv write failed", zap.Error(err))
		}
		return
	}
	s.respondJSON(w, http.StatusOK, rep)
}

type validateRequest struct {
	IncludeDrafts bool `json:"include_drafts"`
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if !s.decode(w, r, &req) {
		return
	}
	m, err := s.assembler.Assemble(r.Context(), chi.URLParam(r, "id"), assembler.Options{IncludeDrafts: req.IncludeDrafts})
	if err != nil {
		s.fail(w, err)
		return
	}
	rep, err := s.validator.ValidatePackage(r.Context(), m, nil)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, rep)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if s.exporter == nil {
		s.respondError(w, http.StatusNotImplemented, "export not configured")
		return
	}
	var req exporter.Request
	if !s.decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	id := chi.URLParam(r, "id")
	if _, err := s.store.GetStudy(r.Context(), id); err != nil {
		s.fail(w, err)
		return
	}
	s.logger.Debug("export request", zap.String("study", id), zap.String("sequence", req.Sequence.Number))
	res := s.exporter.Export(r.Context(), id, req)
	if !res.Success {
		s.logger.Warn("export failed", zap.String("study", id), zap.String("error", res.Error))
		s.respondJSON(w, http.StatusUnprocessableEntity, res)
		return
	}
	s.respondJSON(w, http.StatusCreated, res)
}

func (s *Server) handleWatchDirectoriesList(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"directories": s.watch.Directories()})
}

type watchAddRequest struct {
	Path string `json:"path"`
	Sync *bool  `json:"sync,omitempty"`
}

func (s *Server) handleWatchDirectoriesAdd(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	var req watchAddRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	abs, err := filepath.Abs(req.Path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	info, err := os.Stat(abs)
	switch {
	case os.IsNotExist(err):
		s.respondError(w, http.StatusNotFound, "directory not found")
		return
	case err != nil:
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	case !info.IsDir():
		s.respondError(w, http.StatusBadRequest, "path is not a directory")
		return
	}
	syncExisting := true
	if req.Sync != nil {
		syncExisting = *req.Sync
	}
	if err := s.watch.AddDirectory(abs, syncExisting); err != nil {
		s.logger.Error("watch add directory failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.persistWatch()
	s.respondJSON(w, http.StatusCreated, map[string]string{"path": abs, "status": "added"})
}

func (s *Server) handleWatchDirectoriesRemove(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		s.respondError(w, http.StatusBadRequest, "path query parameter is required")
		return
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	if err := s.watch.RemoveDirectory(abs); err != nil {
		s.logger.Error("watch remove directory failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.persistWatch()
	s.respondJSON(w, http.StatusOK, map[string]string{"path": abs, "status": "removed"})
}

// persistWatch writes the current watch directories back to the config file.
func (s *Server) persistWatch() {
	if s.configPath == "" {
		return
	}
	s.configMu.Lock()
	defer s.configMu.Unlock()
	s.config.Watch.Directories = s.watch.Directories()
	if err := config.Save(s.configPath, s.config); err != nil {
		s.logger.Warn("failed to persist watch config", zap.Error(err))
	}
}

// decode reads an optional JSON body into v. An empty body leaves v untouched.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// statusFor maps engine errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, assembler.ErrStudyNotFound), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, assembler.ErrNoActiveTemplate), errors.Is(err, exporter.ErrEmptyManifest):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	}
	s.respondError(w, status, err.Error())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
