// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes notionclean tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/notionclean/internal/apperr"
	"github.com/starford/notionclean/internal/cleanservice"
)

const namingRulesURI = "notionclean://naming-rules"

// Server wraps the MCP server with notionclean tools.
type Server struct {
	mcp *server.MCPServer
	svc *cleanservice.Service
}

// New creates a new MCP server with all notionclean tools registered.
func New(svc *cleanservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"notionclean",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("normalize_path",
		mcp.WithDescription("Return the cleaned, portable form of a path from the export. "+
			"Read the naming rules via get_naming_rules or the "+namingRulesURI+" resource."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Exported path (e.g. My Page 834fa2b1/Child 12ab.md)")),
	), s.normalizePath)

	s.mcp.AddTool(mcp.NewTool("rewrite_links",
		mcp.WithDescription("Retarget every [text](target) reference in a Markdown text at its cleaned path."),
		mcp.WithString("text", mcp.Required(), mcp.Description("Markdown text")),
	), s.rewriteLinks)

	s.mcp.AddTool(mcp.NewTool("clean_export",
		mcp.WithDescription("Run the cleaner over the whole configured export and return the run summary."),
	), s.cleanExport)

	s.mcp.AddTool(mcp.NewTool("list_files",
		mcp.WithDescription("List the files of a run with their destination and status."),
		mcp.WithString("run_id", mcp.Description("Run id (empty for the latest run)")),
	), s.listFiles)

	s.mcp.AddTool(mcp.NewTool("dangling_links",
		mcp.WithDescription("List references whose target was not produced by a run."),
		mcp.WithString("run_id", mcp.Description("Run id (empty for the latest run)")),
	), s.danglingLinks)

	s.mcp.AddTool(mcp.NewTool("get_naming_rules",
		mcp.WithDescription("Returns the rules used to turn exported names into cleaned paths."),
	), s.getNamingRules)

	// Resource: naming rules.
	s.mcp.AddResource(
		mcp.NewResource(namingRulesURI, "Naming Rules",
			mcp.WithResourceDescription("How exported names are turned into cleaned paths and links."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readNamingRulesResource,
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

func (s *Server) normalizePath(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	m := s.svc.Normalize(ctx, []string{path})
	return mcp.NewToolResultText(m[0].Dest), nil
}

func (s *Server) rewriteLinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(s.svc.Rewrite(ctx, text)), nil
}

func (s *Server) cleanExport(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sum, err := s.svc.Run(ctx)
	if err != nil {
		if errors.Is(err, apperr.ErrRunInProgress) {
			return mcp.NewToolResultError("a run is already in progress"), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(sum, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listFiles(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID := optionalString(req, "run_id")
	files, err := s.svc.Files(ctx, runID)
	if err != nil {
		return mcp.NewToolResultError(notFoundMessage(err)), nil
	}
	if len(files) == 0 {
		return mcp.NewToolResultText("no files recorded"), nil
	}
	lines := make([]string, 0, len(files))
	for _, f := range files {
		line := fmt.Sprintf("%s\t%s -> %s", f.Status, f.Source, f.Dest)
		if f.Error != "" {
			line += " (" + f.Error + ")"
		}
		lines = append(lines, line)
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) danglingLinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID := optionalString(req, "run_id")
	_, links, err := s.svc.Dangling(ctx, runID)
	if err != nil {
		return mcp.NewToolResultError(notFoundMessage(err)), nil
	}
	if len(links) == 0 {
		return mcp.NewToolResultText("no dangling links found"), nil
	}
	lines := make([]string, 0, len(links))
	for _, l := range links {
		lines = append(lines, l.Source+" -> "+l.Target)
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) getNamingRules(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(NamingRules), nil
}

func (s *Server) readNamingRulesResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      namingRulesURI,
			MIMEType: "text/markdown",
			Text:     NamingRules,
		},
	}, nil
}

func optionalString(req mcp.CallToolRequest, name string) string {
	if v, err := req.RequireString(name); err == nil {
		return v
	}
	return ""
}

func notFoundMessage(err error) string {
	if errors.Is(err, apperr.ErrNotFound) {
		return "no run recorded (is the manifest enabled?)"
	}
	return err.Error()
}
