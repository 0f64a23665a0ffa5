package server

import (
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mj1618/abivis/internal/output"
	"github.com/mj1618/abivis/internal/selector"
)

// toText serializes v to YAML for an MCP response.
func toText(v interface{}) *mcp.CallToolResult {
	text, err := output.MarshalYAML(v)
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(text)
}

// toError renders err with its hints, if any.
func toError(err error) *mcp.CallToolResult {
	msg := err.Error()
	if hint := errors.FlattenHints(err); hint != "" {
		msg += "\nhint: " + hint
	}
	return mcp.NewToolResultError(msg)
}

func toolchainRequest(params map[string]interface{}) selector.ToolchainRequest {
	return selector.ToolchainRequest{
		Toolchain: stringParam(params, "toolchain", ""),
		Compiler:  stringParam(params, "compiler", ""),
		CFlags:    stringParam(params, "cflags", ""),
	}
}

// refresh drops the cached probe for req when the caller asked for it.
func (s *Server) refresh(params map[string]interface{}, req selector.ToolchainRequest) {
	if !boolParam(params, "refresh", false) {
		return
	}
	if c, err := s.service.Compiler(req); err == nil {
		s.cache.Invalidate(c)
	}
}

func (s *Server) handleResolve(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	params := request.GetArguments()
	req := selector.ResolveRequest{
		ToolchainRequest: toolchainRequest(params),
		Libraries:        stringsParam(params, "libraries"),
		Defines:          stringsParam(params, "defines"),
		Undefines:        stringsParam(params, "undefines"),
		Mode:             stringParam(params, "mode", ""),
	}
	s.refresh(params, req.ToolchainRequest)

	results, err := s.service.Resolve(ctx, req)
	if err != nil {
		return toError(err), nil
	}
	return toText(results), nil
}

func (s *Server) handleMatrix(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return toText(selector.DecisionMatrix()), nil
}

func (s *Server) handleDetect(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	params := request.GetArguments()
	req := toolchainRequest(params)
	s.refresh(params, req)

	id, err := s.service.Identify(ctx, req)
	if err != nil {
		return toError(err), nil
	}
	return toText(id), nil
}

func (s *Server) handleHeader(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	params := request.GetArguments()
	lib := stringParam(params, "library", "")
	if lib == "" {
		return mcp.NewToolResultError("library is required"), nil
	}

	var b strings.Builder
	if err := s.service.Header(&b, lib); err != nil {
		return toError(err), nil
	}
	return mcp.NewToolResultText(b.String()), nil
}

func stringParam(params map[string]interface{}, key, defaultVal string) string {
	if v, ok := params[key]; ok && v != nil {
		if s, ok := v.(string); ok {
			return s
		}
		// Handle numeric values clients may send unquoted
		return fmt.Sprintf("%v", v)
	}
	return defaultVal
}

func boolParam(params map[string]interface{}, key string, defaultVal bool) bool {
	if v, ok := params[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return defaultVal
}

// stringsParam accepts an array of strings or a single comma-separated
// string.
func stringsParam(params map[string]interface{}, key string) []string {
	v, ok := params[key]
	if !ok || v == nil {
		return nil
	}
	var out []string
	switch vals := v.(type) {
	case []interface{}:
		for _, item := range vals {
			if s := strings.TrimSpace(fmt.Sprintf("%v", item)); s != "" {
				out = append(out, s)
			}
		}
	case []string:
		for _, s := range vals {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	case string:
		for _, s := range strings.Split(vals, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}
