package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/pcarver/ragu/internal/nutrition"
	"github.com/pcarver/ragu/internal/pipeline"
)

const (
	// MCPVersion is the protocol version we support.
	MCPVersion = "2024-11-05"

	// ServerName is the name of this MCP server.
	ServerName = "ragu"

	// ServerVersion is the version of this server.
	ServerVersion = "1.0.0"
)

// Server exposes the pipeline's query tools over stdio.
type Server struct {
	pipeline *pipeline.Pipeline
	analyzer *nutrition.Analyzer

	reader *bufio.Reader
	writer io.Writer

	initialized bool
}

// NewServer creates a new MCP server over an existing pipeline.
func NewServer(p *pipeline.Pipeline) *Server {
	return &Server{
		pipeline: p,
		analyzer: nutrition.New(p.Store(), p.Collection()),
		reader:   bufio.NewReader(os.Stdin),
		writer:   os.Stdout,
	}
}

// Run processes requests until stdin closes or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	log.Info("MCP server starting")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, err := s.reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				log.Info("MCP server received EOF, shutting down")
				return nil
			}
			log.Error("Failed to read from stdin", "error", err)
			continue
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		var req Request
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			s.sendError(nil, ErrorCodeParse, "Parse error", err.Error())
			continue
		}

		s.handleRequest(ctx, req)
	}
}

// handleRequest processes a single MCP request.
func (s *Server) handleRequest(ctx context.Context, req Request) {
	log.Debug("Received request", "method", req.Method, "id", req.ID)

	var result any
	var err error

	switch req.Method {
	case "initialize":
		result, err = s.handleInitialize(req.Params)
	case "initialized":
		// Notification, no response
		s.initialized = true
		log.Info("MCP server initialized")
		return
	case "tools/list":
		result, err = s.handleListTools()
	case "tools/call":
		result, err = s.handleCallTool(ctx, req.Params)
	case "ping":
		result = map[string]any{}
	default:
		s.sendError(req.ID, ErrorCodeMethodNotFound, "Method not found", req.Method)
		return
	}

	if err != nil {
		s.sendError(req.ID, ErrorCodeInternal, "Internal error", err.Error())
		return
	}

	s.sendResult(req.ID, result)
}

// handleInitialize handles the initialize request.
func (s *Server) handleInitialize(params json.RawMessage) (*InitializeResult, error) {
	var p InitializeParams
	if params != nil {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
	}

	log.Info("Initializing MCP server",
		"clientName", p.ClientInfo.Name,
		"clientVersion", p.ClientInfo.Version,
		"protocolVersion", p.ProtocolVersion,
	)

	return &InitializeResult{
		ProtocolVersion: MCPVersion,
		Capabilities: ServerCapabilities{
			Tools: &ToolsCapability{},
		},
		ServerInfo: ServerInfo{
			Name:    ServerName,
			Version: ServerVersion,
		},
	}, nil
}

// handleListTools returns the list of available tools.
func (s *Server) handleListTools() (*ListToolsResult, error) {
	tools := []Tool{
		{
			Name:        "menu_query",
			Description: "Retrieve the menu records most similar to a natural-language query, with similarity scores, previews, and the full assembled context.",
			InputSchema: JSONSchema{
				Type: "object",
				Properties: map[string]Property{
					"query": {
						Type:        "string",
						Description: "The search query in natural language",
					},
					"top_k": {
						Type:        "number",
						Description: "Maximum number of records to retrieve",
						Default:     3,
					},
				},
				Required: []string{"query"},
			},
		},
		{
			Name:        "menu_ask",
			Description: "Answer a question grounded in the menu knowledge base. Retrieves relevant records and generates an answer from them.",
			InputSchema: JSONSchema{
				Type: "object",
				Properties: map[string]Property{
					"question": {
						Type:        "string",
						Description: "The question to answer",
					},
					"top_k": {
						Type:        "number",
						Description: "Maximum number of records to ground the answer on",
						Default:     3,
					},
				},
				Required: []string{"question"},
			},
		},
		{
			Name:        "menu_nutrition",
			Description: "Get the nutritional breakdown for a menu by name, with daily-value percentages based on a 2000 kcal diet.",
			InputSchema: JSONSchema{
				Type: "object",
				Properties: map[string]Property{
					"name": {
						Type:        "string",
						Description: "Menu name or part of it, matched case-insensitively",
					},
				},
				Required: []string{"name"},
			},
		},
		{
			Name:        "menu_status",
			Description: "Show the collection this server answers from: name, embedding model, and record count.",
			InputSchema: JSONSchema{
				Type: "object",
			},
		},
	}

	return &ListToolsResult{Tools: tools}, nil
}

// handleCallTool executes a tool and returns the result.
func (s *Server) handleCallTool(ctx context.Context, params json.RawMessage) (*CallToolResult, error) {
	var p CallToolParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}

	log.Debug("Calling tool", "name", p.Name, "arguments", p.Arguments)

	var resultText string
	var isError bool

	switch p.Name {
	case "menu_query":
		resultText, isError = s.toolQuery(ctx, p.Arguments)
	case "menu_ask":
		resultText, isError = s.toolAsk(ctx, p.Arguments)
	case "menu_nutrition":
		resultText, isError = s.toolNutrition(p.Arguments)
	case "menu_status":
		resultText, isError = s.toolStatus()
	default:
		return &CallToolResult{
			Content: []ContentBlock{{Type: "text", Text: fmt.Sprintf("Unknown tool: %s", p.Name)}},
			IsError: true,
		}, nil
	}

	return &CallToolResult{
		Content: []ContentBlock{{Type: "text", Text: resultText}},
		IsError: isError,
	}, nil
}

// toolQuery runs the retrieval half of the pipeline. The tool result is the
// JSON encoding of the structured query result; failures are inside it as
// success=false, never raised.
func (s *Server) toolQuery(ctx context.Context, args map[string]any) (string, bool) {
	query, _ := args["query"].(string)
	if query == "" {
		return "Error: query is required", true
	}

	result := s.pipeline.Query(ctx, query, intArg(args, "top_k"))
	return marshalResult(result), !result.Success
}

// toolAsk runs the full retrieve-and-generate pass.
func (s *Server) toolAsk(ctx context.Context, args map[string]any) (string, bool) {
	question, _ := args["question"].(string)
	if question == "" {
		return "Error: question is required", true
	}

	result := s.pipeline.Ask(ctx, question, intArg(args, "top_k"))
	return marshalResult(result), !result.Success
}

// toolNutrition looks up a menu's nutritional breakdown.
func (s *Server) toolNutrition(args map[string]any) (string, bool) {
	name, _ := args["name"].(string)
	if name == "" {
		return "Error: name is required", true
	}

	report, err := s.analyzer.ByName(name)
	if err != nil {
		if errors.Is(err, nutrition.ErrNotFound) {
			return fmt.Sprintf("No menu matching %q was found.", name), false
		}
		return fmt.Sprintf("Error: %v", err), true
	}

	return marshalResult(report), false
}

// toolStatus reports the served collection.
func (s *Server) toolStatus() (string, bool) {
	coll := s.pipeline.Collection()
	count, err := s.pipeline.Store().Count(coll.ID)
	if err != nil {
		return fmt.Sprintf("Error: %v", err), true
	}

	status := map[string]any{
		"collection":           coll.Name,
		"embedding_provider":   coll.EmbeddingProvider,
		"embedding_model":      coll.EmbeddingModel,
		"embedding_dimensions": coll.EmbeddingDimensions,
		"records":              count,
	}
	return marshalResult(status), false
}

// intArg reads a numeric argument, tolerating string-encoded numbers.
func intArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case string:
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return 0
}

// marshalResult encodes a tool result as indented JSON.
func marshalResult(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("Error: failed to encode result: %v", err)
	}
	return string(data)
}

// sendResult sends a successful response.
func (s *Server) sendResult(id any, result any) {
	s.send(Response{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
	})
}

// sendError sends an error response.
func (s *Server) sendError(id any, code int, message, data string) {
	s.send(Response{
		JSONRPC: "2.0",
		ID:      id,
		Error: &Error{
			Code:    code,
			Message: message,
			Data:    data,
		},
	})
}

// send writes a response line to stdout.
func (s *Server) send(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error("Failed to marshal response", "error", err)
		return
	}
	fmt.Fprintln(s.writer, string(data))
}
