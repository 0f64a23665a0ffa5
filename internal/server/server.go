// Package server exposes the visibility selector as Model Context Protocol
// tools.
package server

import (
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/mj1618/abivis/internal/config"
	"github.com/mj1618/abivis/internal/logging"
	"github.com/mj1618/abivis/internal/selector"
	"github.com/mj1618/abivis/internal/toolchain"
	"github.com/mj1618/abivis/internal/version"
)

// Options holds MCP server configuration.
type Options struct {
	Transport string
	Port      int
	CacheTTL  time.Duration
}

// Server wraps the MCP server with the selector service and probe cache.
type Server struct {
	service *selector.Service
	cache   *ProbeCache
	mcp     *mcpserver.MCPServer
}

// New creates an MCP server with all abivis tools. A nil prober runs the
// real compiler.
func New(cfg *config.Config, opts Options, prober toolchain.Prober) *Server {
	if prober == nil {
		prober = toolchain.NewExecProber()
	}
	cache := NewProbeCache(prober, opts.CacheTTL)

	s := &Server{
		service: selector.New(cfg, cache),
		cache:   cache,
	}
	s.mcp = mcpserver.NewMCPServer(
		"abivis",
		version.Version,
		mcpserver.WithToolCapabilities(false),
	)
	s.registerTools()
	return s
}

// MCP returns the underlying MCP server.
func (s *Server) MCP() *mcpserver.MCPServer {
	return s.mcp
}

// Serve starts the MCP server with the configured transport.
func (s *Server) Serve(opts Options) error {
	logging.Logger.Infow("starting MCP server", "transport", opts.Transport, "port", opts.Port)
	switch opts.Transport {
	case "stdio":
		return mcpserver.ServeStdio(s.mcp)
	case "streamable-http":
		httpServer := mcpserver.NewStreamableHTTPServer(s.mcp)
		return httpServer.Start(fmt.Sprintf(":%d", opts.Port))
	default:
		return errors.WithHint(
			errors.Newf("unsupported transport: %s", opts.Transport),
			"use stdio or streamable-http")
	}
}

func (s *Server) registerTools() {
	toolchainParams := []mcp.ToolOption{
		mcp.WithString("toolchain", mcp.Description("Toolchain preset or kind: msvc, clang-cl, mingw, gcc, clang, gcc3, novisibility. Omit to probe the compiler.")),
		mcp.WithString("compiler", mcp.Description("C compiler command to probe (default from config, $CC or cc)")),
		mcp.WithString("cflags", mcp.Description("Compiler flags; -D/-U options also set library flags")),
		mcp.WithBoolean("refresh", mcp.Description("Ignore any cached probe result")),
	}

	// resolve
	s.mcp.AddTool(
		mcp.NewTool("resolve", append([]mcp.ToolOption{
			mcp.WithDescription("Resolve the symbol visibility annotation a library's declarations get for a toolchain and set of configuration flags"),
			mcp.WithArray("libraries", mcp.Description("Library names (default: every configured library)"), mcp.WithStringItems()),
			mcp.WithArray("defines", mcp.Description("Macro definitions, NAME or NAME=VALUE"), mcp.WithStringItems()),
			mcp.WithArray("undefines", mcp.Description("Macro names to undefine"), mcp.WithStringItems()),
			mcp.WithString("mode", mcp.Description("Force the build mode: static, export, import")),
		}, toolchainParams...)...),
		s.handleResolve,
	)

	// matrix
	s.mcp.AddTool(
		mcp.NewTool("matrix",
			mcp.WithDescription("Show the annotation for every toolchain kind and build mode"),
		),
		s.handleMatrix,
	)

	// detect
	s.mcp.AddTool(
		mcp.NewTool("detect", append([]mcp.ToolOption{
			mcp.WithDescription("Identify the toolchain kind of a compiler or preset"),
		}, toolchainParams...)...),
		s.handleDetect,
	)

	// header
	s.mcp.AddTool(
		mcp.NewTool("header",
			mcp.WithDescription("Generate the C export header for a library"),
			mcp.WithString("library", mcp.Description("Library name"), mcp.Required()),
		),
		s.handleHeader,
	)
}
