package app

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/AmirTlinov/context-pack/internal/pack"
)

// Tool names accepted by Dispatch.
const (
	ToolInput  = "input"
	ToolOutput = "output"
)

// Request is one tool call.
type Request struct {
	RequestID string          `json:"request_id,omitempty"`
	Tool      string          `json:"tool"`
	Args      json.RawMessage `json:"args,omitempty"`
}

// Success is the response envelope of a successful call. Input calls carry action and
// payload, output calls carry the rendered text.
type Success struct {
	RequestID string `json:"request_id"`
	Tool      string `json:"tool"`
	Action    string `json:"action,omitempty"`
	Payload   any    `json:"payload,omitempty"`
	Text      string `json:"text,omitempty"`
}

// Failure is the response envelope of a failed call.
type Failure struct {
	Error     bool      `json:"error"`
	Kind      pack.Kind `json:"kind"`
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   any       `json:"details"`
	RequestID string    `json:"request_id"`
}

// NewFailure builds the failure envelope for err.
func NewFailure(requestID string, err error) *Failure {
	pe := pack.AsError(err)
	return &Failure{
		Error:     true,
		Kind:      pe.Kind,
		Code:      pe.Code,
		Message:   pe.Message,
		Details:   pe.Details,
		RequestID: requestID,
	}
}

// Dispatch runs one request against the service and returns a *Success or *Failure.
// A request without an id gets a generated uuid.
func (a *App) Dispatch(ctx context.Context, req Request) any {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	ctx = pack.WithRequestID(ctx, req.RequestID)
	start := time.Now()

	resp, err := a.call(ctx, req)
	outcome := "ok"
	if err != nil {
		outcome = string(pack.AsError(err).Kind)
	}
	tool := req.Tool
	if tool != ToolInput && tool != ToolOutput {
		tool = "unknown"
	}
	a.recorder.ObserveRequest(tool, outcome, time.Since(start))

	if err != nil {
		return NewFailure(req.RequestID, err)
	}
	return resp
}

func (a *App) call(ctx context.Context, req Request) (*Success, error) {
	switch req.Tool {
	case ToolInput:
		res, err := a.service.Input(ctx, req.Args)
		if err != nil {
			return nil, err
		}
		return &Success{RequestID: req.RequestID, Tool: req.Tool, Action: res.Action, Payload: res.Payload}, nil
	case ToolOutput:
		text, err := a.service.Output(ctx, req.Args)
		if err != nil {
			return nil, err
		}
		return &Success{RequestID: req.RequestID, Tool: req.Tool, Text: text}, nil
	default:
		return nil, pack.Validation("unknown tool '%s'; use input or output", req.Tool)
	}
}
