package api

import (
	"time"

	"github.com/starford/munin/internal/docservice"
)

// DocumentRequest is the write payload shared by both dialects.
type DocumentRequest struct {
	ID         string         `json:"id,omitempty"`
	Collection string         `json:"collection,omitempty"`
	Content    string         `json:"content"`
	Metadata   map[string]any `json:"metadata"`
}

// QueryRequest is the body of a similarity query.
type QueryRequest struct {
	QueryText string `json:"query_text"`
	Limit     int    `json:"limit,omitempty"`
}

// DocumentResponse is the envelope for single-document operations.
// Every envelope carries a human-readable message for caller
// compatibility across dialects.
type DocumentResponse struct {
	ID         string         `json:"id"`
	Collection string         `json:"collection"`
	Content    string         `json:"content"`
	Metadata   map[string]any `json:"metadata"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	Message    string         `json:"message"`
}

// DeleteResponse confirms a deletion.
type DeleteResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// QueryResponse wraps ranked query matches.
type QueryResponse struct {
	Collection string              `json:"collection"`
	Query      string              `json:"query"`
	Matches    []docservice.Match  `json:"matches"`
	Count      int                 `json:"count"`
	Message    string              `json:"message"`
}

// ListResponse wraps document listings.
type ListResponse struct {
	Collection string                `json:"collection,omitempty"`
	Documents  []docservice.ListItem `json:"documents"`
	Count      int                   `json:"count"`
	Total      int                   `json:"total"`
	Message    string                `json:"message"`
}
