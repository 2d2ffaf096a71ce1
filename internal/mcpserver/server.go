// Package mcpserver exposes the bridge facade to agents as MCP tools over
// newline-delimited JSON-RPC 2.0 on stdio. The unified interact tool is the
// real surface; four legacy tools remain as thin aliases.
package mcpserver

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/quailyquaily/morphbridge/internal/bridge"
)

const protocolVersion = "2024-11-05"

type Server struct {
	facade  *bridge.Facade
	name    string
	version string
	logger  *slog.Logger

	writeMu sync.Mutex
}

func New(facade *bridge.Facade, name, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		facade:  facade,
		name:    name,
		version: version,
		logger:  logger,
	}
}

type rpcRequest struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      *json.RawMessage `json:"id,omitempty"`
	Method  string           `json:"method"`
	Params  json.RawMessage  `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      *json.RawMessage `json:"id,omitempty"`
	Result  any              `json:"result,omitempty"`
	Error   *rpcError        `json:"error,omitempty"`
}

const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
)

// Serve reads requests from r until EOF or ctx cancellation. Requests are
// handled sequentially; agent tool calls are synchronous by contract.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 10*1024*1024) // up to 10MB per line

	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req rpcRequest
		if err := json.Unmarshal(line, &req); err != nil {
			s.writeResponse(w, rpcResponse{
				JSONRPC: "2.0",
				Error:   &rpcError{Code: codeParseError, Message: "parse error: " + err.Error()},
			})
			continue
		}
		s.handleRequest(ctx, w, req)
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("mcpserver read: %w", err)
	}
	return nil
}

func (s *Server) handleRequest(ctx context.Context, w io.Writer, req rpcRequest) {
	switch req.Method {
	case "initialize":
		s.writeResult(w, req.ID, map[string]any{
			"protocolVersion": protocolVersion,
			"capabilities":    map[string]any{"tools": map[string]any{}},
			"serverInfo":      map[string]any{"name": s.name, "version": s.version},
		})
	case "notifications/initialized", "notifications/cancelled":
		// Notifications get no response.
	case "ping":
		s.writeResult(w, req.ID, map[string]any{})
	case "tools/list":
		s.writeResult(w, req.ID, map[string]any{"tools": toolDefinitions()})
	case "tools/call":
		s.handleToolCall(ctx, w, req)
	default:
		if req.ID == nil {
			return
		}
		s.writeResponse(w, rpcResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &rpcError{Code: codeMethodNotFound, Message: "method not found: " + req.Method},
		})
	}
}

func (s *Server) writeResult(w io.Writer, id *json.RawMessage, result any) {
	if id == nil {
		return
	}
	s.writeResponse(w, rpcResponse{JSONRPC: "2.0", ID: id, Result: result})
}

func (s *Server) writeResponse(w io.Writer, resp rpcResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Warn("mcpserver_encode_failed", "error", err.Error())
		return
	}
	data = append(data, '\n')
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := w.Write(data); err != nil {
		s.logger.Warn("mcpserver_write_failed", "error", err.Error())
	}
}
