package pathstore

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClient_PutAndListChildren(t *testing.T) {
	var gotAuth, gotPath string
	var gotBody NodeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		switch r.Method {
		case http.MethodPut:
			gotPath = r.URL.Path
			json.NewDecoder(r.Body).Decode(&gotBody)
			w.WriteHeader(http.StatusCreated)
		case http.MethodGet:
			if r.URL.Query().Get("limit") != "1" {
				t.Errorf("expected limit=1, got %q", r.URL.RawQuery)
			}
			w.Write([]byte(`{"nodes":[{"key_path":"corpus.a.by_hash.h.doc1","value":{}}]}`))
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret")
	err := c.PutNode(context.Background(), "corpus/a/chunks/1", NodeRequest{Value: "x", Source: "docoutline:doc1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("expected bearer auth, got %q", gotAuth)
	}
	if gotPath != "/kv/corpus/a/chunks/1" {
		t.Errorf("expected kv path, got %q", gotPath)
	}
	if gotBody.Source != "docoutline:doc1" {
		t.Errorf("expected source in body, got %+v", gotBody)
	}

	nodes, err := c.ListChildren(context.Background(), "corpus/a/by_hash/h", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(nodes) != 1 || nodes[0].Key != "corpus.a.by_hash.h.doc1" {
		t.Errorf("unexpected nodes %+v", nodes)
	}
}

func TestClient_GetNodeMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	node, err := NewClient(srv.URL, "k").GetNode(context.Background(), "nope")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if node != nil {
		t.Errorf("expected nil node, got %+v", node)
	}
}

func TestClient_ErrorClassification(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusBadGateway, true},
		{http.StatusInternalServerError, true},
		{http.StatusBadRequest, false},
		{http.StatusForbidden, false},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", tt.status)
		}))
		err := NewClient(srv.URL, "k").PutLink(context.Background(), LinkRequest{From: "a", To: "b"})
		srv.Close()

		if err == nil {
			t.Fatalf("status %d: expected error", tt.status)
		}
		if IsRetryable(err) != tt.retryable {
			t.Errorf("status %d: expected retryable=%v, got %v", tt.status, tt.retryable, err)
		}
		if !tt.retryable {
			var se *StatusError
			if !errors.As(err, &se) || se.StatusCode != tt.status {
				t.Errorf("status %d: expected StatusError, got %v", tt.status, err)
			}
		}
	}
}

func TestClient_TransportErrorRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	err := NewClient(url, "k").DeleteNode(context.Background(), "x", true)
	if !IsRetryable(err) {
		t.Errorf("expected retryable transport error, got %v", err)
	}
}
