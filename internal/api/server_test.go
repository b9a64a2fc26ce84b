package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dgallion1/docoutline/internal/cache"
	"github.com/dgallion1/docoutline/internal/config"
	"github.com/dgallion1/docoutline/internal/marker"
	"github.com/dgallion1/docoutline/internal/pathstore"
	"github.com/dgallion1/docoutline/internal/pipeline"
	"github.com/dgallion1/docoutline/internal/stats"
)

const testKey = "secret"

const regulation = "第一章 总则\n第一条 为了规范药品注册行为。\n第二条 本办法适用于境内申请。"

type memStore struct {
	mu    sync.Mutex
	nodes map[string]any
}

func newMemStore() *memStore { return &memStore{nodes: make(map[string]any)} }

func (m *memStore) PutNode(_ context.Context, key string, req pathstore.NodeRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodes[key] = req.Value
	return nil
}

func (m *memStore) GetNode(_ context.Context, key string) (*pathstore.NodeResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.nodes[key]
	if !ok {
		return nil, nil
	}
	return &pathstore.NodeResponse{Key: key, Value: v}, nil
}

func (m *memStore) DeleteNode(_ context.Context, key string, recursive bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.nodes, key)
	if recursive {
		for k := range m.nodes {
			if strings.HasPrefix(k, key+"/") {
				delete(m.nodes, k)
			}
		}
	}
	return nil
}

func (m *memStore) ListChildren(_ context.Context, key string, limit int) ([]pathstore.ListChildrenResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []pathstore.ListChildrenResponse
	for k, v := range m.nodes {
		if strings.HasPrefix(k, key+"/") {
			out = append(out, pathstore.ListChildrenResponse{Key: k, Value: v})
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) PutLink(context.Context, pathstore.LinkRequest) error { return nil }

func (m *memStore) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.nodes)
}

func testConfig() config.Config {
	return config.Config{
		APIKey:           testKey,
		Catalog:          "general",
		MaxLines:         1000,
		ParseWorkers:     2,
		DefaultChunkSize: 1500,
		MaxUploadBytes:   1 << 20,
	}
}

func newTestServer(t *testing.T, cfg config.Config, deps Deps) *Server {
	t.Helper()
	return NewServer(deps, slog.New(slog.DiscardHandler), cfg)
}

func do(t *testing.T, h http.Handler, method, target, contentType string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+testKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func multipartBody(t *testing.T, filename, content string, fields map[string]string) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte(content))
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes(), mw.FormDataContentType()
}

func TestHealthIsPublic(t *testing.T) {
	s := newTestServer(t, testConfig(), Deps{})
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	decode(t, rec, &body)
	if body["status"] != "ok" || body["ingest"] != false {
		t.Errorf("unexpected health body %v", body)
	}
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t, testConfig(), Deps{})
	tests := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"wrong scheme", "Basic " + testKey},
		{"wrong key", "Bearer nope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/catalogs", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			s.ServeHTTP(rec, req)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("expected 401, got %d", rec.Code)
			}
		})
	}
}

func TestCatalogs(t *testing.T) {
	s := newTestServer(t, testConfig(), Deps{})
	rec := do(t, s, http.MethodGet, "/api/catalogs", "", nil)
	var body struct {
		Default  string `json:"default"`
		Catalogs []struct {
			Name string `json:"name"`
		} `json:"catalogs"`
	}
	decode(t, rec, &body)
	if body.Default != "general" {
		t.Errorf("expected default general, got %q", body.Default)
	}
	names := map[string]bool{}
	for _, c := range body.Catalogs {
		names[c.Name] = true
	}
	for _, want := range []string{"general", "fda", "ich"} {
		if !names[want] {
			t.Errorf("expected catalog %s in %v", want, names)
		}
	}
}

type parseResponse struct {
	Trees []struct {
		MarkerTypes []int `json:"marker_types"`
		Output      []struct {
			Block    string `json:"block"`
			Children []struct {
				Block string `json:"block"`
			} `json:"children"`
		} `json:"output"`
	} `json:"trees"`
	Errors []string `json:"errors"`
}

func TestParseText(t *testing.T) {
	st := stats.NewParseStats(time.Hour)
	s := newTestServer(t, testConfig(), Deps{Cache: cache.NewMemory(time.Minute), Stats: st})

	rec := do(t, s, http.MethodPost, "/api/parse", "text/plain", []byte(regulation))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Cache") != "MISS" {
		t.Errorf("expected cache miss on first request")
	}
	var body parseResponse
	decode(t, rec, &body)
	if len(body.Trees) != 1 || len(body.Trees[0].Output) != 1 {
		t.Fatalf("expected one tree with one root, got %+v", body.Trees)
	}
	root := body.Trees[0].Output[0]
	if root.Block != "第一章 总则" || len(root.Children) != 2 {
		t.Errorf("unexpected root %+v", root)
	}
	if body.Errors == nil || len(body.Errors) != 0 {
		t.Errorf("expected empty errors array, got %v", body.Errors)
	}

	rec = do(t, s, http.MethodPost, "/api/parse", "text/plain", []byte(regulation))
	if rec.Header().Get("X-Cache") != "HIT" {
		t.Errorf("expected cache hit on repeat request")
	}
	if n := st.Snapshot().Count; n != 1 {
		t.Errorf("expected one recorded run, got %d", n)
	}
}

func TestParseMultipartMarkdown(t *testing.T) {
	s := newTestServer(t, testConfig(), Deps{})
	md := "# 药品注册管理办法\n\n第一章 总则\n\n第一条 目的\n"
	body, ct := multipartBody(t, "rules.md", md, nil)

	rec := do(t, s, http.MethodPost, "/api/parse", ct, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Title string `json:"title"`
		parseResponse
	}
	decode(t, rec, &resp)
	if resp.Title != "药品注册管理办法" {
		t.Errorf("expected markdown title, got %q", resp.Title)
	}
	if len(resp.Trees) != 1 {
		t.Fatalf("expected one tree, got %d", len(resp.Trees))
	}
	if got := resp.Trees[0].MarkerTypes; len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Errorf("expected chapter and article markers, got %v", got)
	}
	if !strings.Contains(rec.Body.String(), `"block":"第一条 目的"`) {
		t.Errorf("expected article node in %s", rec.Body.String())
	}
}

func TestParseErrors(t *testing.T) {
	cfg := testConfig()
	cfg.MaxLines = 2
	s := newTestServer(t, cfg, Deps{})

	tests := []struct {
		name   string
		target string
		ct     string
		body   []byte
		want   int
	}{
		{"unknown catalog", "/api/parse?catalog=nope", "text/plain", []byte("第一章 总则"), http.StatusBadRequest},
		{"too many lines", "/api/parse", "text/plain", []byte(regulation), http.StatusRequestEntityTooLarge},
		{"empty body", "/api/parse", "text/plain", nil, http.StatusBadRequest},
		{"analyze too many lines", "/api/analyze", "text/plain", []byte(regulation), http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodPost, tt.target, tt.ct, tt.body)
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}

	body, ct := multipartBody(t, "rules.doc", "x", nil)
	if rec := do(t, s, http.MethodPost, "/api/parse", ct, body); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unsupported extension, got %d", rec.Code)
	}
}

func TestChunks(t *testing.T) {
	s := newTestServer(t, testConfig(), Deps{Cache: cache.NewMemory(time.Minute)})

	rec := do(t, s, http.MethodPost, "/api/chunks", "text/plain", []byte(regulation))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Count  int `json:"count"`
		Chunks []struct {
			Content string `json:"content"`
		} `json:"chunks"`
	}
	decode(t, rec, &body)
	if body.Count != 2 || len(body.Chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", body.Count)
	}
	if body.Chunks[1].Content != "第一章 总则\n第二条 本办法适用于境内申请。" {
		t.Errorf("unexpected chunk %q", body.Chunks[1].Content)
	}

	// A different chunk size must not be served from the cache.
	rec = do(t, s, http.MethodPost, "/api/chunks?chunk_size=10", "text/plain", []byte(regulation))
	if rec.Header().Get("X-Cache") != "MISS" {
		t.Errorf("expected chunk size to be part of the cache key")
	}

	if rec := do(t, s, http.MethodPost, "/api/chunks?chunk_size=0", "text/plain", []byte(regulation)); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad chunk_size, got %d", rec.Code)
	}
}

func TestAnalyze(t *testing.T) {
	s := newTestServer(t, testConfig(), Deps{})
	rec := do(t, s, http.MethodPost, "/api/analyze", "text/plain", []byte(regulation+"\n附件\n1. 申请表"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Results []struct {
			Content      string         `json:"content"`
			MarkerLevels map[string]int `json:"marker_levels"`
		} `json:"results"`
	}
	decode(t, rec, &body)
	if len(body.Results) != 2 {
		t.Fatalf("expected 2 paragraphs, got %d", len(body.Results))
	}
	if body.Results[0].MarkerLevels["1"] != 1 {
		t.Errorf("expected chapter at level 1, got %v", body.Results[0].MarkerLevels)
	}
}

func TestIngestDisabled(t *testing.T) {
	s := newTestServer(t, testConfig(), Deps{})
	body, ct := multipartBody(t, "a.txt", regulation, map[string]string{"collection": "regs"})
	if rec := do(t, s, http.MethodPost, "/api/ingest", ct, body); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}

func TestIngestLifecycle(t *testing.T) {
	cfg := testConfig()
	cfg.WorkerCount = 1
	cfg.MaxQueueSize = 4
	cfg.MaxConcurrentStore = 2
	cfg.JobTTL = time.Hour

	store := newMemStore()
	catalogs := marker.NewRegistry()
	orch := pipeline.NewOrchestrator(cfg, store, catalogs, nil, slog.New(slog.DiscardHandler))
	orch.Start(context.Background())
	defer orch.Stop()
	s := newTestServer(t, cfg, Deps{Catalogs: catalogs, Orchestrator: orch, Documents: store})

	body, ct := multipartBody(t, "rules.txt", regulation, map[string]string{"collection": "regs"})
	rec := do(t, s, http.MethodPost, "/api/ingest", ct, body)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var accepted map[string]any
	decode(t, rec, &accepted)
	jobID, _ := accepted["job_id"].(string)
	docID, _ := accepted["doc_id"].(string)

	var snap pipeline.JobSnapshot
	deadline := time.Now().Add(5 * time.Second)
	for {
		rec = do(t, s, http.MethodGet, "/api/ingest/"+jobID+"/status", "", nil)
		decode(t, rec, &snap)
		if snap.Status.Done() {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job did not finish: %+v", snap)
		}
		time.Sleep(5 * time.Millisecond)
	}
	if snap.Status != pipeline.StatusCompleted || snap.Progress.ChunksStored != 2 {
		t.Fatalf("unexpected job state %+v", snap)
	}

	rec = do(t, s, http.MethodGet, "/api/documents?collection=regs", "", nil)
	var list struct {
		Documents []struct {
			DocID string `json:"doc_id"`
		} `json:"documents"`
	}
	decode(t, rec, &list)
	if len(list.Documents) != 1 || list.Documents[0].DocID != docID {
		t.Fatalf("expected stored document %s, got %+v", docID, list.Documents)
	}

	rec = do(t, s, http.MethodDelete, "/api/documents/"+docID+"?collection=regs", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var deleted map[string]any
	decode(t, rec, &deleted)
	if deleted["chunks_deleted"] != float64(2) || deleted["hash_index_deleted"] != true {
		t.Errorf("unexpected delete result %v", deleted)
	}
	if n := store.len(); n != 0 {
		t.Errorf("expected empty store after delete, got %d nodes", n)
	}

	if rec := do(t, s, http.MethodGet, "/api/ingest/missing/status", "", nil); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown job, got %d", rec.Code)
	}
}

func TestIngestValidation(t *testing.T) {
	cfg := testConfig()
	cfg.MaxQueueSize = 1
	store := newMemStore()
	orch := pipeline.NewOrchestrator(cfg, store, marker.NewRegistry(), nil, slog.New(slog.DiscardHandler))
	s := newTestServer(t, cfg, Deps{Orchestrator: orch, Documents: store})

	tests := []struct {
		name     string
		filename string
		fields   map[string]string
		want     int
	}{
		{"missing collection", "a.txt", nil, http.StatusBadRequest},
		{"bad collection", "a.txt", map[string]string{"collection": "a/b"}, http.StatusBadRequest},
		{"unsupported", "a.exe", map[string]string{"collection": "c"}, http.StatusBadRequest},
		{"unknown catalog", "a.txt", map[string]string{"collection": "c", "catalog": "nope"}, http.StatusBadRequest},
		{"accepted", "a.txt", map[string]string{"collection": "c"}, http.StatusAccepted},
		{"queue full", "b.txt", map[string]string{"collection": "c"}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, ct := multipartBody(t, tt.filename, regulation, tt.fields)
			if rec := do(t, s, http.MethodPost, "/api/ingest", ct, body); rec.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestParseStatsEndpoint(t *testing.T) {
	s := newTestServer(t, testConfig(), Deps{})
	if rec := do(t, s, http.MethodGet, "/api/stats/parse", "", nil); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 without stats, got %d", rec.Code)
	}

	s = newTestServer(t, testConfig(), Deps{Stats: stats.NewParseStats(time.Hour)})
	do(t, s, http.MethodPost, "/api/parse", "text/plain", []byte(regulation))
	rec := do(t, s, http.MethodGet, "/api/stats/parse", "", nil)
	var body struct {
		Stats stats.Snapshot `json:"stats"`
	}
	decode(t, rec, &body)
	if body.Stats.Count != 1 || body.Stats.Paragraphs != 1 {
		t.Errorf("unexpected stats %+v", body.Stats)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"report.pdf":         "report.pdf",
		"../../etc/passwd":   "passwd",
		`C:\docs\rules.docx`: "rules.docx",
		"":                   "unnamed",
		"/":                  "unnamed",
	}
	for in, want := range tests {
		if got := sanitizeFilename(in); got != want {
			t.Errorf("sanitizeFilename(%q): expected %q, got %q", in, want, got)
		}
	}
}
