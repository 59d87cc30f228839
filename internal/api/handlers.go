package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/munin/internal/docservice"
	"github.com/starford/munin/internal/models"
)

const maxBodySize = 10 << 20 // 10 MB

// Handler owns the HTTP handlers for both API dialects. The dialects
// differ only in validation policy and message wording; the document
// coordinator behind them is the same.
type Handler struct {
	svc *docservice.Service
}

// NewHandler creates an API handler backed by the document service.
func NewHandler(svc *docservice.Service) *Handler {
	return &Handler{svc: svc}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	return true
}

func docEnvelope(doc *models.Document, message string) DocumentResponse {
	return DocumentResponse{
		ID:         doc.ID,
		Collection: doc.Collection,
		Content:    doc.Content,
		Metadata:   doc.Metadata,
		CreatedAt:  doc.CreatedAt,
		UpdatedAt:  doc.UpdatedAt,
		Message:    message,
	}
}

// noun returns the dialect-specific document noun used in envelope
// messages, kept for wire compatibility with existing consumers.
func noun(p docservice.Policy) string {
	if p == docservice.Strict {
		return "Mind document"
	}
	return "Document"
}

func (h *Handler) create(p docservice.Policy) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req DocumentRequest
		if !decodeBody(w, r, &req) {
			return
		}
		doc, err := h.svc.Create(r.Context(), p, "", docservice.Input{
			ID:         req.ID,
			Collection: req.Collection,
			Content:    req.Content,
			Metadata:   req.Metadata,
		})
		if err != nil {
			writeError(w, "create document", err)
			return
		}
		writeJSON(w, http.StatusCreated, docEnvelope(doc, noun(p)+" created successfully"))
	}
}

func (h *Handler) get(p docservice.Policy) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doc, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, "get document", err)
			return
		}
		writeJSON(w, http.StatusOK, docEnvelope(doc, noun(p)+" retrieved successfully"))
	}
}

func (h *Handler) update(p docservice.Policy) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req DocumentRequest
		if !decodeBody(w, r, &req) {
			return
		}
		doc, err := h.svc.Update(r.Context(), p, chi.URLParam(r, "id"), docservice.Input{
			Collection: req.Collection,
			Content:    req.Content,
			Metadata:   req.Metadata,
		})
		if err != nil {
			writeError(w, "update document", err)
			return
		}
		writeJSON(w, http.StatusOK, docEnvelope(doc, noun(p)+" updated successfully"))
	}
}

func (h *Handler) delete(p docservice.Policy) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := h.svc.Delete(r.Context(), id); err != nil {
			writeError(w, "delete document", err)
			return
		}
		writeJSON(w, http.StatusOK, DeleteResponse{ID: id, Message: noun(p) + " deleted successfully"})
	}
}

func (h *Handler) query(p docservice.Policy) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		collection := chi.URLParam(r, "id")
		var req QueryRequest
		if !decodeBody(w, r, &req) {
			return
		}
		limit := req.Limit
		if limit == 0 {
			if s := r.URL.Query().Get("limit"); s != "" {
				n, err := strconv.Atoi(s)
				if err != nil {
					writeJSON(w, http.StatusBadRequest, errorBody("invalid limit"))
					return
				}
				limit = n
			}
		}
		matches, err := h.svc.Query(r.Context(), collection, req.QueryText, limit)
		if err != nil {
			writeError(w, "query documents", err)
			return
		}
		writeJSON(w, http.StatusOK, QueryResponse{
			Collection: collection,
			Query:      req.QueryText,
			Matches:    matches,
			Count:      len(matches),
			Message:    "Query executed successfully",
		})
	}
}

func (h *Handler) list(p docservice.Policy) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		collection := r.URL.Query().Get("collection")
		limit := 0
		if s := r.URL.Query().Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n < 0 {
				writeJSON(w, http.StatusBadRequest, errorBody("invalid limit"))
				return
			}
			limit = n
		}
		items, total, err := h.svc.List(r.Context(), collection, limit)
		if err != nil {
			writeError(w, "list documents", err)
			return
		}
		writeJSON(w, http.StatusOK, ListResponse{
			Collection: collection,
			Documents:  items,
			Count:      len(items),
			Total:      total,
			Message:    "Documents listed successfully",
		})
	}
}
