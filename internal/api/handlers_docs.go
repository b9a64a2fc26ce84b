package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/docoutline/internal/pipeline"
)

// handleListDocuments lists the stored documents of a collection.
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	collection, err := collectionParam(r.URL.Query().Get("collection"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	prefix := strings.TrimSuffix(pipeline.DocumentPrefix(collection, ""), "/")
	children, err := s.deps.Documents.ListChildren(r.Context(), prefix, 1000)
	if err != nil {
		jsonError(w, "failed to list documents: "+err.Error(), http.StatusBadGateway)
		return
	}

	// Only meta nodes describe a document; chunks live beside them.
	docs := []map[string]any{}
	for _, child := range children {
		if !strings.HasSuffix(child.Key, "/meta") {
			continue
		}
		docID := strings.TrimPrefix(strings.TrimSuffix(child.Key, "/meta"), prefix+"/")
		docs = append(docs, map[string]any{
			"doc_id": docID,
			"key":    child.Key,
			"meta":   child.Value,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

// handleDeleteDocument removes a document's chunks and metadata along with
// its hash index entry.
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")
	collection, err := collectionParam(r.URL.Query().Get("collection"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if strings.ContainsAny(docID, "/.") {
		jsonError(w, "invalid doc_id", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	docPrefix := pipeline.DocumentPrefix(collection, docID)

	meta, err := s.deps.Documents.GetNode(ctx, docPrefix+"/meta")
	if err != nil {
		jsonError(w, "failed to read document: "+err.Error(), http.StatusBadGateway)
		return
	}
	if meta == nil {
		jsonError(w, "document not found", http.StatusNotFound)
		return
	}

	chunks, err := s.deps.Documents.ListChildren(ctx, docPrefix+"/chunks", 100000)
	if err != nil {
		jsonError(w, "failed to list chunks: "+err.Error(), http.StatusBadGateway)
		return
	}

	if err := s.deps.Documents.DeleteNode(ctx, docPrefix, true); err != nil {
		jsonError(w, "failed to delete document: "+err.Error(), http.StatusBadGateway)
		return
	}
	hashDeleted := s.deleteHashIndex(ctx, collection, docID, meta.Value)

	s.log.Info("document deleted", "collection", collection, "doc_id", docID, "chunks", len(chunks))
	writeJSON(w, http.StatusOK, map[string]any{
		"doc_id":             docID,
		"chunks_deleted":     len(chunks),
		"hash_index_deleted": hashDeleted,
	})
}

func (s *Server) deleteHashIndex(ctx context.Context, collection, docID string, meta any) bool {
	m, ok := meta.(map[string]any)
	if !ok {
		return false
	}
	hash, _ := m["content_hash"].(string)
	if hash == "" {
		return false
	}
	key := pipeline.HashIndexPrefix(collection, hash) + "/" + docID
	if err := s.deps.Documents.DeleteNode(ctx, key, false); err != nil {
		s.log.Warn("hash index delete failed", "key", key, "error", err)
		return false
	}
	return true
}
