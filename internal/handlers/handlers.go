// Package handlers implements the MCP verb handlers (C9): one function per
// MCP verb, each validating input, deriving a request id, invoking the
// router, and mapping the typed Response into the caller's result shape.
// The transport layer (C8) adapts these into the concrete MCP SDK types;
// this package knows nothing about the SDK.
package handlers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/roadrunner-plugins/mcp-bridge/internal/registry"
	"github.com/roadrunner-plugins/mcp-bridge/internal/router"
	"github.com/roadrunner-plugins/mcp-bridge/internal/tracking"
	"github.com/roadrunner-plugins/mcp-bridge/protocol"
)

// Deps bundles everything a handler needs. One Deps is shared by every MCP
// session; per-call state (token, request id) is passed as arguments.
type Deps struct {
	Router         *router.Router
	Tracker        *tracking.Tracker
	Log            *zap.Logger
	TrackingWindow time.Duration // tools/call out-of-band completion window
}

// VerbError carries a handler failure back to the transport layer, which
// maps it onto a well-formed MCP error result: a missing plugin, an Error
// status, and a null payload all land here with a descriptive message.
type VerbError struct {
	RequestID string
	Message   string
}

func (e *VerbError) Error() string { return e.Message }

func asVerbError(resp router.Response) error {
	msg := resp.Message
	if msg == "" {
		msg = "plugin returned an empty response"
	}
	return &VerbError{RequestID: resp.RequestID, Message: msg}
}

func newRequestID() string { return uuid.NewString() }

func decode(resp router.Response, v any) error {
	if resp.Status != router.StatusSuccess {
		return asVerbError(resp)
	}
	if resp.Payload == nil {
		return asVerbError(resp)
	}
	if err := resp.Payload.Decode(v); err != nil {
		return err
	}
	return nil
}

// ListTools handles tools/list: filters out disabled entries.
func (d *Deps) ListTools(ctx context.Context, token string) ([]protocol.ToolDef, error) {
	requestID := newRequestID()
	resp := d.Router.Invoke(ctx, registry.McpServerHub, requestID, protocol.MethodRunListTool, token, nil)
	var result protocol.RunListToolResult
	if err := decode(resp, &result); err != nil {
		return nil, err
	}
	return filterEnabled(result.Tools, func(t protocol.ToolDef) bool { return t.Enabled }), nil
}

// CallTool handles tools/call, tracking the request so an out-of-band
// NotifyToolRequestCompleted can resolve it before the router call itself
// returns.
func (d *Deps) CallTool(ctx context.Context, token, name string, arguments json.RawMessage) (protocol.Response, error) {
	requestID := newRequestID()
	payload := protocol.RunCallToolRequest{RequestID: requestID, Name: name, Arguments: arguments}

	produce := func(ctx context.Context) (tracking.Response, bool, error) {
		resp := d.Router.Invoke(ctx, registry.McpServerHub, requestID, protocol.MethodRunCallTool, token, payload)
		if resp.Status != router.StatusSuccess {
			return tracking.Response{}, false, asVerbError(resp)
		}
		var out protocol.Response
		if err := resp.Payload.Decode(&out); err != nil {
			return tracking.Response{}, false, err
		}
		if out.Status == protocol.StatusProcessing {
			// The plugin chose to complete out-of-band; don't resolve the
			// tracked request from this path.
			return tracking.Response{}, false, nil
		}
		return tracking.Response{Status: tracking.Status(out.Status), Message: out.Message, Value: out}, true, nil
	}

	window := d.TrackingWindow
	if window <= 0 {
		window = 5 * time.Minute
	}
	if d.Log != nil {
		d.Log.Debug("tool call dispatched",
			zap.String("tool", name), zap.String("request_id", requestID))
	}
	result := d.Tracker.Track(ctx, requestID, produce, window)
	if result.Status == tracking.StatusError {
		return protocol.Response{}, &VerbError{RequestID: requestID, Message: result.Message}
	}
	if result.Status == tracking.StatusCancel {
		return protocol.Response{}, &VerbError{RequestID: requestID, Message: "cancelled"}
	}
	if out, ok := result.Value.(protocol.Response); ok {
		return out, nil
	}
	return protocol.Response{}, &VerbError{RequestID: requestID, Message: "malformed tool response"}
}

// ListPrompts handles prompts/list.
func (d *Deps) ListPrompts(ctx context.Context, token string) ([]protocol.PromptDef, error) {
	requestID := newRequestID()
	resp := d.Router.Invoke(ctx, registry.McpServerHub, requestID, protocol.MethodRunListPrompts, token, nil)
	var result protocol.RunListPromptsResult
	if err := decode(resp, &result); err != nil {
		return nil, err
	}
	return filterEnabled(result.Prompts, func(p protocol.PromptDef) bool { return p.Enabled }), nil
}

// GetPrompt handles prompts/get.
func (d *Deps) GetPrompt(ctx context.Context, token, name string, arguments map[string]string) (protocol.RunGetPromptResult, error) {
	requestID := newRequestID()
	payload := protocol.RunGetPromptRequest{RequestID: requestID, Name: name, Arguments: arguments}
	resp := d.Router.Invoke(ctx, registry.McpServerHub, requestID, protocol.MethodRunGetPrompt, token, payload)
	var result protocol.RunGetPromptResult
	if err := decode(resp, &result); err != nil {
		return protocol.RunGetPromptResult{}, err
	}
	return result, nil
}

// ListResources handles resources/list.
func (d *Deps) ListResources(ctx context.Context, token string) ([]protocol.ResourceDef, error) {
	requestID := newRequestID()
	resp := d.Router.Invoke(ctx, registry.McpServerHub, requestID, protocol.MethodRunListResources, token, nil)
	var result protocol.RunListResourcesResult
	if err := decode(resp, &result); err != nil {
		return nil, err
	}
	return filterEnabled(result.Resources, func(r protocol.ResourceDef) bool { return r.Enabled }), nil
}

// ReadResource handles resources/read.
func (d *Deps) ReadResource(ctx context.Context, token, uri string) ([]protocol.ResourceContents, error) {
	requestID := newRequestID()
	payload := protocol.RunResourceContentRequest{RequestID: requestID, URI: uri}
	resp := d.Router.Invoke(ctx, registry.McpServerHub, requestID, protocol.MethodRunResourceContent, token, payload)
	var result protocol.RunResourceContentResult
	if err := decode(resp, &result); err != nil {
		return nil, err
	}
	return result.Contents, nil
}

// ListResourceTemplates handles resources/templates/list.
func (d *Deps) ListResourceTemplates(ctx context.Context, token string) ([]protocol.ResourceTemplateDef, error) {
	requestID := newRequestID()
	resp := d.Router.Invoke(ctx, registry.McpServerHub, requestID, protocol.MethodRunResourceTemplates, token, nil)
	var result protocol.RunListResourceTemplatesResult
	if err := decode(resp, &result); err != nil {
		return nil, err
	}
	return filterEnabled(result.Templates, func(t protocol.ResourceTemplateDef) bool { return t.Enabled }), nil
}

func filterEnabled[T any](items []T, enabled func(T) bool) []T {
	out := make([]T, 0, len(items))
	for _, item := range items {
		if enabled(item) {
			out = append(out, item)
		}
	}
	return out
}
