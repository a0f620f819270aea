// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes catalog search tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/mtvsearch/internal/filter"
	"github.com/starford/mtvsearch/internal/models"
	"github.com/starford/mtvsearch/internal/session"
)

const ruleFormatURI = "mtvsearch://rule-format"

// StatusSource reads and refreshes the catalog database status.
type StatusSource interface {
	Status(ctx context.Context) (string, error)
	Refresh(ctx context.Context) (string, error)
}

// Server wraps the MCP server with catalog tools.
type Server struct {
	mcp      *server.MCPServer
	sessions *session.Service
	status   StatusSource
}

// New creates a new MCP server with all catalog tools registered.
func New(sessions *session.Service, status StatusSource) *Server {
	s := &Server{sessions: sessions, status: status}

	s.mcp = server.NewMCPServer(
		"mtvsearch",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_catalog",
		mcp.WithDescription("Search the broadcast media catalog. Every argument is optional; "+
			"empty fields are ignored. Read the rule format via get_rule_format or the "+
			ruleFormatURI+" resource for date and duration modes."),
		mcp.WithString("title", mcp.Description("Title contains")),
		mcp.WithString("channel", mcp.Description("Channel name, e.g. ARD")),
		mcp.WithString("topic", mcp.Description("Topic contains")),
		mcp.WithString("start", mcp.Description("Broadcast date, or an age like 3d with start_mode=age")),
		mcp.WithString("start_mode", mcp.Description("How start is compared"), mcp.Enum("before", "after", "age")),
		mcp.WithString("duration", mcp.Description("Duration in minutes")),
		mcp.WithString("duration_mode", mcp.Description("How duration is compared"), mcp.Enum("shorter", "longer")),
		mcp.WithNumber("page", mcp.Description("Result page, starting at 1")),
		mcp.WithString("sort_field", mcp.Description("Sort column"), mcp.Enum(filter.Fields()...)),
		mcp.WithString("sort_direction", mcp.Description("Sort direction"), mcp.Enum("ascending", "descending")),
	), s.searchCatalog)

	s.mcp.AddTool(mcp.NewTool("database_status",
		mcp.WithDescription("Returns the status text of the catalog database (e.g. loading, refreshing, ready)."),
	), s.databaseStatus)

	s.mcp.AddTool(mcp.NewTool("refresh_database",
		mcp.WithDescription("Asks the catalog service to download and reload its database."),
	), s.refreshDatabase)

	s.mcp.AddTool(mcp.NewTool("get_rule_format",
		mcp.WithDescription("Returns how search arguments are turned into catalog rules."),
	), s.getRuleFormat)

	// Resource: rule format contract.
	s.mcp.AddResource(
		mcp.NewResource(ruleFormatURI, "Catalog Rule Format",
			mcp.WithResourceDescription("Filter rule tokens understood by the catalog service."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readRuleFormatResource,
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

func (s *Server) searchCatalog(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p := session.SearchParams{
		Page:      req.GetInt("page", 1),
		SortField: req.GetString("sort_field", ""),
	}
	if dir := req.GetString("sort_direction", ""); dir != "" {
		d, err := models.ParseSortDirection(dir)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		p.SortDirection = d
	}

	for _, field := range filter.Fields() {
		text := req.GetString(field, "")
		if text == "" {
			continue
		}
		m, err := filter.ParseModifier(req.GetString(field+"_mode", ""))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		p.Filters = append(p.Filters, filter.Value{Field: field, Text: text, Modifier: m})
	}

	v, err := s.sessions.Search(ctx, p)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if v.Error != "" {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %s", v.Error)), nil
	}
	out, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) databaseStatus(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := s.status.Status(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(text), nil
}

func (s *Server) refreshDatabase(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := s.status.Refresh(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(text), nil
}

func (s *Server) getRuleFormat(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(RuleFormatContract), nil
}

func (s *Server) readRuleFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      ruleFormatURI,
			MIMEType: "text/markdown",
			Text:     RuleFormatContract,
		},
	}, nil
}
