package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dgallion1/docoutline/internal/cache"
	"github.com/dgallion1/docoutline/internal/chunker"
	"github.com/dgallion1/docoutline/internal/doctree"
	"github.com/dgallion1/docoutline/internal/marker"
	"github.com/dgallion1/docoutline/internal/outline"
	"github.com/dgallion1/docoutline/internal/parser"
	"github.com/dgallion1/docoutline/internal/stats"
)

// input is a document submitted to the synchronous endpoints, either as a
// multipart file or as a raw text body.
type input struct {
	ext  string
	data []byte
	doc  *doctree.Document
}

func (s *Server) uploadLimit() int64 {
	if s.cfg.MaxUploadBytes > 0 {
		return s.cfg.MaxUploadBytes
	}
	return 50 << 20
}

// readInput extracts the request document. On failure it has already
// written the error response.
func (s *Server) readInput(w http.ResponseWriter, r *http.Request) (*input, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.uploadLimit()+1024*1024)

	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			jsonError(w, "failed to read body: "+err.Error(), http.StatusRequestEntityTooLarge)
			return nil, false
		}
		if len(data) == 0 {
			jsonError(w, "empty body", http.StatusBadRequest)
			return nil, false
		}
		text := strings.ReplaceAll(string(data), "\r\n", "\n")
		return &input{
			data: data,
			doc:  &doctree.Document{Blocks: doctree.TextBlocks(strings.Split(text, "\n"))},
		}, true
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return nil, false
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "file is required: "+err.Error(), http.StatusBadRequest)
		return nil, false
	}
	defer file.Close()

	filename := sanitizeFilename(header.Filename)
	p, err := parser.ForFile(filename)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return nil, false
	}
	data, err := io.ReadAll(io.LimitReader(file, s.uploadLimit()+1))
	if err != nil {
		jsonError(w, "failed to read file", http.StatusInternalServerError)
		return nil, false
	}
	if int64(len(data)) > s.uploadLimit() {
		jsonError(w, fmt.Sprintf("file exceeds max size (%d bytes)", s.uploadLimit()), http.StatusRequestEntityTooLarge)
		return nil, false
	}
	if pdf, ok := p.(*parser.PDFParser); ok {
		pdf.FallbackPdftotext = s.cfg.PDFFallbackPdftotext
	}
	doc, err := p.Parse(bytes.NewReader(data), filename)
	if err != nil {
		jsonError(w, "failed to parse file: "+err.Error(), http.StatusUnprocessableEntity)
		return nil, false
	}
	return &input{ext: strings.ToLower(filepath.Ext(filename)), data: data, doc: doc}, true
}

// param reads a request option from the multipart form or the query.
func param(r *http.Request, name string) string {
	if r.MultipartForm != nil {
		if v := r.MultipartForm.Value[name]; len(v) > 0 && v[0] != "" {
			return v[0]
		}
	}
	return r.URL.Query().Get(name)
}

func (s *Server) catalog(w http.ResponseWriter, r *http.Request) (*marker.PatternCatalog, bool) {
	name := param(r, "catalog")
	if name == "" {
		name = s.cfg.Catalog
	}
	cat, err := s.deps.Catalogs.Lookup(name)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return nil, false
	}
	return cat, true
}

// parseTrees outlines a document and records the run. Trees are nil only
// when the whole document was rejected.
func (s *Server) parseTrees(ctx context.Context, cat *marker.PatternCatalog, doc *doctree.Document) ([]*doctree.Tree, error) {
	start := time.Now()
	p := outline.New(cat, s.log, outline.WithWorkers(s.cfg.ParseWorkers), outline.WithMaxLines(s.cfg.MaxLines))
	trees, err := p.ParseDocument(ctx, doc)
	if trees != nil && s.deps.Stats != nil {
		fallbacks := 0
		for _, t := range trees {
			if t.Error != "" {
				fallbacks++
			}
		}
		s.deps.Stats.Record(stats.Run{
			Duration:   time.Since(start),
			Lines:      len(doc.Blocks),
			Paragraphs: len(trees),
			Fallbacks:  fallbacks,
		})
	}
	return trees, err
}

func outlineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, outline.ErrTooManyLines):
		jsonError(w, err.Error(), http.StatusRequestEntityTooLarge)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
	default:
		jsonError(w, err.Error(), http.StatusInternalServerError)
	}
}

// errorList flattens a joined error into its messages. The result is never
// nil so it encodes as an empty array.
func errorList(err error) []string {
	out := []string{}
	if err == nil {
		return out
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			out = append(out, e.Error())
		}
		return out
	}
	return append(out, err.Error())
}

// serveCached writes a stored response and reports whether it did.
func (s *Server) serveCached(w http.ResponseWriter, r *http.Request, key string) bool {
	if s.deps.Cache == nil {
		return false
	}
	body, err := s.deps.Cache.Get(r.Context(), key)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			s.log.Warn("cache read failed", "error", err)
		}
		return false
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Cache", "HIT")
	w.Write(body)
	return true
}

func (s *Server) respondCached(w http.ResponseWriter, r *http.Request, key string, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		jsonError(w, "failed to encode response", http.StatusInternalServerError)
		return
	}
	if s.deps.Cache != nil {
		if err := s.deps.Cache.Set(r.Context(), key, body); err != nil {
			s.log.Warn("cache write failed", "error", err)
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Cache", "MISS")
	w.Write(append(body, '\n'))
}

func (s *Server) handleCatalogs(w http.ResponseWriter, r *http.Request) {
	var out []map[string]any
	for _, name := range s.deps.Catalogs.Names() {
		cat, err := s.deps.Catalogs.Lookup(name)
		if err != nil {
			continue
		}
		out = append(out, map[string]any{
			"name":        cat.Name(),
			"description": cat.Description(),
			"types":       cat.Types(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"default":  s.cfg.Catalog,
		"catalogs": out,
	})
}

func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	in, ok := s.readInput(w, r)
	if !ok {
		return
	}
	cat, ok := s.catalog(w, r)
	if !ok {
		return
	}

	key := cache.Key("parse", cat.Name(), strconv.Itoa(s.cfg.MaxLines), in.ext, string(in.data))
	if s.serveCached(w, r, key) {
		return
	}
	trees, err := s.parseTrees(r.Context(), cat, in.doc)
	if trees == nil && err != nil {
		outlineError(w, err)
		return
	}
	s.respondCached(w, r, key, map[string]any{
		"title":   in.doc.Title,
		"catalog": cat.Name(),
		"trees":   trees,
		"errors":  errorList(err),
	})
}

func (s *Server) handleChunks(w http.ResponseWriter, r *http.Request) {
	in, ok := s.readInput(w, r)
	if !ok {
		return
	}
	cat, ok := s.catalog(w, r)
	if !ok {
		return
	}

	cfg := chunker.Config{
		ChunkSize:    s.cfg.DefaultChunkSize,
		HeadingTypes: s.cfg.HeadingTypes,
		ArticleTypes: s.cfg.ArticleTypes,
	}.Fill(cat.Policy())
	if v := param(r, "chunk_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			jsonError(w, "chunk_size must be a positive integer", http.StatusBadRequest)
			return
		}
		cfg.ChunkSize = n
	}

	key := cache.Key("chunks", cat.Name(), strconv.Itoa(s.cfg.MaxLines), strconv.Itoa(cfg.ChunkSize),
		fmt.Sprint(cfg.HeadingTypes), fmt.Sprint(cfg.ArticleTypes), in.ext, string(in.data))
	if s.serveCached(w, r, key) {
		return
	}
	trees, err := s.parseTrees(r.Context(), cat, in.doc)
	if trees == nil && err != nil {
		outlineError(w, err)
		return
	}
	chunks := chunker.Flatten(trees, cfg)
	s.respondCached(w, r, key, map[string]any{
		"title":  in.doc.Title,
		"count":  len(chunks),
		"chunks": chunks,
		"errors": errorList(err),
	})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	in, ok := s.readInput(w, r)
	if !ok {
		return
	}
	cat, ok := s.catalog(w, r)
	if !ok {
		return
	}
	p := outline.New(cat, s.log, outline.WithMaxLines(s.cfg.MaxLines))
	results, err := p.Analyze(r.Context(), strings.Join(in.doc.Lines(), "\n"))
	if err != nil {
		outlineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}
