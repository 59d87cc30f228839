// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Munin document tools for LLM integration via stdio
// transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/munin/internal/docservice"
)

// Server wraps the MCP server with Munin tools.
type Server struct {
	mcp *server.MCPServer
	svc *docservice.Service
}

// New creates a new MCP server with all Munin tools registered.
func New(svc *docservice.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Munin",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_documents",
		mcp.WithDescription("Semantic similarity search over stored documents."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Natural-language query text")),
		mcp.WithString("collection", mcp.Description("Collection to search (defaults to 'default')")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of matches (1-100, default 10)")),
	), s.searchDocuments)

	s.mcp.AddTool(mcp.NewTool("get_document",
		mcp.WithDescription("Retrieve a document by id, including full content and metadata."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Document id (e.g. doc1a2b3c4d)")),
	), s.getDocument)

	s.mcp.AddTool(mcp.NewTool("store_document",
		mcp.WithDescription("Store a new document. Content is embedded for similarity "+
			"search; metadata is kept alongside it. Read the munin://document-format "+
			"resource for the expected shape."),
		mcp.WithString("content", mcp.Required(), mcp.Description("Document content to store and embed")),
		mcp.WithString("collection", mcp.Description("Target collection (defaults to 'default')")),
		mcp.WithString("metadata", mcp.Description("Optional metadata as a JSON object string")),
	), s.storeDocument)

	s.mcp.AddTool(mcp.NewTool("delete_document",
		mcp.WithDescription("Delete a document by id from both stores."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Document id to delete")),
	), s.deleteDocument)

	s.mcp.AddTool(mcp.NewTool("list_documents",
		mcp.WithDescription("List stored documents, newest first, with truncated content."),
		mcp.WithString("collection", mcp.Description("Optional collection filter (empty for all)")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of documents (default 50)")),
	), s.listDocuments)

	// Resource: document format contract.
	s.mcp.AddResource(
		mcp.NewResource("munin://document-format", "Document Format Contract",
			mcp.WithResourceDescription("Canonical document shape that stored documents follow."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readDocumentFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) searchDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	collection := req.GetString("collection", "default")
	limit := req.GetInt("limit", 0)

	matches, err := s.svc.Query(ctx, collection, query, limit)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(matches, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	doc, err := s.svc.Get(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
	}
	out, _ := json.MarshalIndent(doc, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) storeDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	collection := req.GetString("collection", "")

	var metadata map[string]any
	if raw := req.GetString("metadata", ""); raw != "" {
		if err := json.Unmarshal([]byte(raw), &metadata); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("metadata is not a JSON object: %v", err)), nil
		}
	}

	doc, err := s.svc.Create(ctx, docservice.Permissive, "", docservice.Input{
		Collection: collection,
		Content:    content,
		Metadata:   metadata,
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("stored: %s in collection %s", doc.ID, doc.Collection)), nil
}

func (s *Server) deleteDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.svc.Delete(ctx, id); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("deleted: %s", id)), nil
}

func (s *Server) listDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	collection := req.GetString("collection", "")
	limit := req.GetInt("limit", 0)

	items, total, err := s.svc.List(ctx, collection, limit)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	payload := map[string]any{"documents": items, "total": total}
	out, _ := json.MarshalIndent(payload, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readDocumentFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "munin://document-format",
			MIMEType: "text/markdown",
			Text:     DocumentFormatContract,
		},
	}, nil
}
