// Package mcp exposes the routing engine to MCP clients over stdio, so an
// agent can classify prompts and inspect routing health without the HTTP
// surface.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"

	"github.com/atelier-ai/atelier/pkg/breaker"
	"github.com/atelier-ai/atelier/pkg/models"
	"github.com/atelier-ai/atelier/pkg/tracker"
)

// The wire format is JSON-RPC 2.0, one message per line. Only the subset
// needed for the MCP handshake and tool calls is modeled here.
type request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

const (
	errCodeParse          = -32700
	errCodeMethodNotFound = -32601
	errCodeInvalidParams  = -32602
)

// handshakeResult answers the initialize request.
type handshakeResult struct {
	ProtocolVersion string   `json:"protocolVersion"`
	ServerInfo      peerInfo `json:"serverInfo"`
	Capabilities    any      `json:"capabilities"`
}

type peerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// toolSpec advertises one tool in the tools/list answer.
type toolSpec struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema any    `json:"inputSchema"`
}

type toolList struct {
	Tools []toolSpec `json:"tools"`
}

type callParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

type callResult struct {
	Content []contentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Router classifies prompts and reports breaker health. Satisfied by
// *engine.Engine.
type Router interface {
	Route(ctx context.Context, req models.RouteRequest) (models.RouteResult, error)
	BreakerStatus() breaker.Status
}

// CacheStatter provides cache statistics without coupling to a concrete
// cache implementation.
type CacheStatter interface {
	Stats(ctx context.Context) (models.CacheStats, error)
}

// Auditor searches the route audit log.
type Auditor interface {
	Query(ctx context.Context, opts models.AuditQueryOpts) ([]models.RouteRecord, error)
}

// Server is a minimal MCP server that communicates over stdio using JSON-RPC 2.0.
type Server struct {
	router  Router
	tracker tracker.Tracker
	cache   CacheStatter
	auditor Auditor
	version string
}

// New creates a new MCP Server. Nil collaborators disable the matching tools.
func New(router Router, t tracker.Tracker, cache CacheStatter, auditor Auditor, version string) *Server {
	return &Server{
		router:  router,
		tracker: t,
		cache:   cache,
		auditor: auditor,
		version: version,
	}
}

// Run reads JSON-RPC requests from r line-by-line and writes responses to w.
// It blocks until r is closed or ctx is cancelled.
func (s *Server) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req request
		if err := json.Unmarshal(line, &req); err != nil {
			s.reply(w, errResponse(nil, errCodeParse, "parse error"))
			continue
		}

		resp := s.dispatch(ctx, &req)
		if resp == nil {
			// notification, no response
			continue
		}
		s.reply(w, resp)
	}
	return scanner.Err()
}

func okResponse(id json.RawMessage, result any) *response {
	return &response{JSONRPC: "2.0", ID: id, Result: result}
}

func errResponse(id json.RawMessage, code int, msg string) *response {
	return &response{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: msg}}
}

func (s *Server) dispatch(ctx context.Context, req *request) *response {
	switch req.Method {
	case "initialize":
		return okResponse(req.ID, handshakeResult{
			ProtocolVersion: "2024-11-05",
			ServerInfo:      peerInfo{Name: "atelier", Version: s.version},
			Capabilities:    map[string]any{"tools": map[string]any{}},
		})
	case "notifications/initialized":
		return nil // notification, no response
	case "tools/list":
		return okResponse(req.ID, toolList{Tools: allTools})
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	default:
		return errResponse(req.ID, errCodeMethodNotFound, fmt.Sprintf("unknown method: %s", req.Method))
	}
}

func (s *Server) handleToolsCall(ctx context.Context, req *request) *response {
	var params callParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, errCodeInvalidParams, "invalid params")
	}

	handler, ok := toolHandlers[params.Name]
	if !ok {
		return okResponse(req.ID, errorResult(fmt.Sprintf("unknown tool: %s", params.Name)))
	}
	return okResponse(req.ID, handler(ctx, s, params.Arguments))
}

func (s *Server) reply(w io.Writer, resp *response) {
	data, err := json.Marshal(resp)
	if err != nil {
		log.Printf("mcp: marshal error: %v", err)
		return
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		log.Printf("mcp: write error: %v", err)
	}
}
