package mcpserver

import (
	"context"
	"encoding/json"
	"io"

	"github.com/quailyquaily/morphbridge/internal/bridge"
)

// toolDef follows the MCP tools/list shape.
type toolDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

func toolDefinitions() []toolDef {
	waitProp := map[string]any{
		"type":        "integer",
		"description": "Seconds to block waiting for a reply (0-300).",
	}
	sinceProp := map[string]any{
		"type":        "integer",
		"description": "Server timestamp from a previous call; excludes older messages.",
	}
	messageProp := map[string]any{
		"type":        "string",
		"description": "Text to send to the operator.",
	}
	return []toolDef{
		{
			Name: "interact",
			Description: "Send a message to the human operator and/or collect their replies. " +
				"Optionally blocks up to `wait` seconds for new messages.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"message":  messageProp,
					"wait":     waitProp,
					"since_ts": sinceProp,
				},
			},
		},
		{
			Name:        "send_message",
			Description: "Legacy: send a message to the operator without polling.",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"message": messageProp},
				"required":   []string{"message"},
			},
		},
		{
			Name:        "poll_messages",
			Description: "Legacy: drain and return queued operator replies.",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"since_ts": sinceProp},
			},
		},
		{
			Name:        "check_status",
			Description: "Legacy: report pending message count and known sessions without draining.",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
		{
			Name:        "wait_for_reply",
			Description: "Legacy: block up to `timeout` seconds for an operator reply, then drain.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"timeout":  waitProp,
					"since_ts": sinceProp,
				},
			},
		},
	}
}

type toolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

type toolArguments struct {
	Message string `json:"message,omitempty"`
	Wait    int    `json:"wait,omitempty"`
	Timeout int    `json:"timeout,omitempty"`
	SinceTS int64  `json:"since_ts,omitempty"`
}

func (s *Server) handleToolCall(ctx context.Context, w io.Writer, req rpcRequest) {
	var params toolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		s.writeResponse(w, rpcResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &rpcError{Code: codeInvalidParams, Message: "invalid params: " + err.Error()},
		})
		return
	}
	var args toolArguments
	if len(params.Arguments) > 0 {
		if err := json.Unmarshal(params.Arguments, &args); err != nil {
			s.writeResponse(w, rpcResponse{
				JSONRPC: "2.0",
				ID:      req.ID,
				Error:   &rpcError{Code: codeInvalidParams, Message: "invalid arguments: " + err.Error()},
			})
			return
		}
	}

	var payload any
	ok := true
	switch params.Name {
	case "interact":
		res := s.facade.Interact(ctx, toInteractRequest(args))
		payload, ok = res, res.OK
	case "send_message":
		res := s.facade.SendMessage(ctx, args.Message)
		payload, ok = res, res.OK
	case "poll_messages":
		res := s.facade.PollMessages(ctx, args.SinceTS)
		payload, ok = res, res.OK
	case "check_status":
		res := s.facade.CheckStatus(ctx)
		payload, ok = res, res.OK
	case "wait_for_reply":
		res := s.facade.WaitForReply(ctx, args.Timeout, args.SinceTS)
		payload, ok = res, res.OK
	default:
		s.writeResponse(w, rpcResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &rpcError{Code: codeInvalidParams, Message: "unknown tool: " + params.Name},
		})
		return
	}

	text, err := json.Marshal(payload)
	if err != nil {
		s.writeResponse(w, rpcResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &rpcError{Code: codeParseError, Message: "encode result: " + err.Error()},
		})
		return
	}
	s.writeResult(w, req.ID, map[string]any{
		"content": []map[string]any{{"type": "text", "text": string(text)}},
		"isError": !ok,
	})
}

func toInteractRequest(args toolArguments) bridge.InteractRequest {
	return bridge.InteractRequest{
		Message:     args.Message,
		WaitSeconds: args.Wait,
		SinceTS:     args.SinceTS,
	}
}
