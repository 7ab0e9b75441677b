// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes stored pages to LLM tools via stdio transport.
package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/notecanvas/internal/models"
	"github.com/starford/notecanvas/internal/pageservice"
	"github.com/starford/notecanvas/internal/surface"
)

const snapshotFormatURI = "notecanvas://snapshot-format"

// Server wraps the MCP server with the page tools.
type Server struct {
	mcp *server.MCPServer
	svc *pageservice.Service
}

// New creates a new MCP server with all page tools registered.
func New(svc *pageservice.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"notecanvas",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithRecovery(),
	)

	s.mcp.AddTool(mcp.NewTool("list_documents",
		mcp.WithDescription("List documents that have stored pages, most recently updated first."),
	), s.listDocuments)

	s.mcp.AddTool(mcp.NewTool("list_pages",
		mcp.WithDescription("List the stored pages of a document with stroke counts."),
		mcp.WithString("document_id", mcp.Required(), mcp.Description("Document id")),
	), s.listPages)

	s.mcp.AddTool(mcp.NewTool("read_page",
		mcp.WithDescription("Read one page: its stroke summary, recognized text and raw snapshot. "+
			"See the get_snapshot_format tool or the "+snapshotFormatURI+" resource for the snapshot layout."),
		mcp.WithString("document_id", mcp.Required(), mcp.Description("Document id")),
		mcp.WithNumber("page", mcp.Required(), mcp.Description("Page number (1-10)")),
	), s.readPage)

	s.mcp.AddTool(mcp.NewTool("render_page",
		mcp.WithDescription("Render a page to PNG. The image is also stored as the page export."),
		mcp.WithString("document_id", mcp.Required(), mcp.Description("Document id")),
		mcp.WithNumber("page", mcp.Required(), mcp.Description("Page number (1-10)")),
	), s.renderPage)

	s.mcp.AddTool(mcp.NewTool("search_pages",
		mcp.WithDescription("Full-text search through text recognized on pages."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchPages)

	s.mcp.AddTool(mcp.NewTool("get_snapshot_format",
		mcp.WithDescription("Returns the page snapshot format. "+
			"Call this before interpreting the content returned by read_page."),
	), s.getSnapshotFormat)

	s.mcp.AddResource(
		mcp.NewResource(snapshotFormatURI, "Page Snapshot Format",
			mcp.WithResourceDescription("Serialized page format stored for every page."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readSnapshotFormatResource,
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

// pageArgs reads document_id and page. JSON numbers arrive as float64.
func pageArgs(req mcp.CallToolRequest) (string, int, error) {
	id, err := req.RequireString("document_id")
	if err != nil {
		return "", 0, err
	}
	raw, ok := req.GetArguments()["page"].(float64)
	if !ok || raw != math.Trunc(raw) {
		return "", 0, fmt.Errorf("page must be an integer")
	}
	return id, int(raw), nil
}

func (s *Server) listDocuments(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docs, err := s.svc.Documents(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(docs) == 0 {
		return mcp.NewToolResultText("no documents found"), nil
	}
	lines := make([]string, 0, len(docs))
	for _, d := range docs {
		lines = append(lines, fmt.Sprintf("%s (%d pages)", d.ID, d.Pages))
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) listPages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("document_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	list, err := s.svc.ListPages(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(list, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

type pageView struct {
	DocumentID string `json:"document_id"`
	Number     int    `json:"number"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Strokes    int    `json:"strokes"`
	Points     int    `json:"points"`
	Text       string `json:"text,omitempty"`
	Checksum   string `json:"checksum"`
	Content    string `json:"content"`
}

func (s *Server) readPage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, n, err := pageArgs(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	page, err := s.svc.GetPage(ctx, id, n)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", models.PagePath(id, n))), nil
	}
	view := pageView{
		DocumentID: page.DocumentID,
		Number:     page.Number,
		Text:       page.Text,
		Checksum:   page.Checksum,
		Content:    page.Content,
	}
	if sum, err := surface.Summarize([]byte(page.Content)); err == nil {
		view.Width, view.Height = sum.Width, sum.Height
		view.Strokes, view.Points = sum.Strokes, sum.Points
	}
	out, _ := json.MarshalIndent(view, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) renderPage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, n, err := pageArgs(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	data, err := s.svc.RenderPage(ctx, id, n)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	caption := fmt.Sprintf("%s page %d (%d bytes)", id, n, len(data))
	return mcp.NewToolResultImage(caption, base64.StdEncoding.EncodeToString(data), "image/png"), nil
}

func (s *Server) searchPages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(results, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getSnapshotFormat(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(SnapshotFormat), nil
}

func (s *Server) readSnapshotFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      snapshotFormatURI,
			MIMEType: "text/markdown",
			Text:     SnapshotFormat,
		},
	}, nil
}
