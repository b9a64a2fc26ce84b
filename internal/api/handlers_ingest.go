package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/docoutline/internal/marker"
	"github.com/dgallion1/docoutline/internal/parser"
	"github.com/dgallion1/docoutline/internal/pipeline"
)

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	// Limit total request size.
	r.Body = http.MaxBytesReader(w, r.Body, s.uploadLimit()+1024*1024) // extra 1MB for form overhead

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	collection, err := collectionParam(r.FormValue("collection"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "file is required: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	filename := sanitizeFilename(header.Filename)
	if !parser.IsSupportedExtension(filename) {
		jsonError(w, fmt.Sprintf("unsupported file type: %s", filepath.Ext(filename)), http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, s.uploadLimit()+1))
	if err != nil {
		jsonError(w, "failed to read file", http.StatusInternalServerError)
		return
	}
	if int64(len(data)) > s.uploadLimit() {
		jsonError(w, fmt.Sprintf("file exceeds max size (%d bytes)", s.uploadLimit()), http.StatusRequestEntityTooLarge)
		return
	}

	job := pipeline.NewJob(collection, s.catalogName(r.FormValue("catalog")), filename, r.FormValue("title"), data)
	if docID := r.FormValue("doc_id"); docID != "" {
		if strings.ContainsAny(docID, "/.") {
			jsonError(w, "doc_id must not contain '/' or '.'", http.StatusBadRequest)
			return
		}
		job.DocID = docID
	}

	if err := s.deps.Orchestrator.Submit(job); err != nil {
		jsonError(w, err.Error(), submitStatus(err))
		return
	}

	writeJSON(w, http.StatusAccepted, jobAccepted(job))
}

func (s *Server) handleIngestStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job := s.deps.Orchestrator.GetJob(jobID)
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, job.Snapshot())
}

func (s *Server) handleBatchIngest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.uploadLimit()*10+10*1024*1024)

	if err := r.ParseMultipartForm(64 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	collection, err := collectionParam(r.FormValue("collection"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	catalog := s.catalogName(r.FormValue("catalog"))
	if _, err := s.deps.Catalogs.Lookup(catalog); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		jsonError(w, "at least one file is required", http.StatusBadRequest)
		return
	}

	results := make([]map[string]any, 0, len(files))
	for _, fh := range files {
		filename := sanitizeFilename(fh.Filename)
		data, err := s.readPart(fh, filename)
		if err != nil {
			results = append(results, map[string]any{"filename": filename, "error": err.Error()})
			continue
		}

		job := pipeline.NewJob(collection, catalog, filename, "", data)
		if err := s.deps.Orchestrator.Submit(job); err != nil {
			results = append(results, map[string]any{"filename": filename, "error": err.Error()})
			continue
		}
		results = append(results, jobAccepted(job))
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"jobs": results})
}

func (s *Server) readPart(fh *multipart.FileHeader, filename string) ([]byte, error) {
	if !parser.IsSupportedExtension(filename) {
		return nil, fmt.Errorf("unsupported file type: %s", filepath.Ext(filename))
	}
	f, err := fh.Open()
	if err != nil {
		return nil, errors.New("failed to open file")
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, s.uploadLimit()+1))
	if err != nil || int64(len(data)) > s.uploadLimit() {
		return nil, errors.New("file too large or read error")
	}
	return data, nil
}

func (s *Server) catalogName(v string) string {
	if v == "" {
		return s.cfg.Catalog
	}
	return v
}

func jobAccepted(job *pipeline.Job) map[string]any {
	snap := job.Snapshot()
	return map[string]any{
		"filename": snap.Filename,
		"job_id":   snap.ID,
		"doc_id":   snap.DocID,
		"status":   snap.Status,
		"poll_url": fmt.Sprintf("/api/ingest/%s/status", snap.ID),
	}
}

func submitStatus(err error) int {
	switch {
	case errors.Is(err, marker.ErrUnknownCatalog):
		return http.StatusBadRequest
	case errors.Is(err, pipeline.ErrQueueFull):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// collectionParam validates a collection name, which becomes one pathstore
// key segment.
func collectionParam(v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", errors.New("collection is required")
	}
	if strings.ContainsAny(v, "/.") || strings.ContainsFunc(v, func(r rune) bool { return r <= ' ' }) {
		return "", fmt.Errorf("invalid collection %q", v)
	}
	return v, nil
}

func sanitizeFilename(name string) string {
	// Strip path components, keep only the base name.
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." || name == "/" {
		name = "unnamed"
	}
	return name
}
