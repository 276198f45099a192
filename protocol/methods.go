package protocol

import "encoding/json"

// Plugin-channel method names, used verbatim as the wire.Frame
// Method field in both directions.
const (
	MethodPerformVersionHandshake = "PerformVersionHandshake"

	MethodRunCallTool          = "RunCallTool"
	MethodRunListTool          = "RunListTool"
	MethodRunGetPrompt         = "RunGetPrompt"
	MethodRunListPrompts       = "RunListPrompts"
	MethodRunResourceContent   = "RunResourceContent"
	MethodRunListResources     = "RunListResources"
	MethodRunResourceTemplates = "RunResourceTemplates"

	MethodNotifyAboutUpdatedTools     = "NotifyAboutUpdatedTools"
	MethodNotifyAboutUpdatedPrompts   = "NotifyAboutUpdatedPrompts"
	MethodNotifyAboutUpdatedResources = "NotifyAboutUpdatedResources"
	MethodNotifyToolRequestCompleted  = "NotifyToolRequestCompleted"
)

// ToolDef describes one callable tool as published by a plugin.
type ToolDef struct {
	Name         string          `json:"name"`
	Title        string          `json:"title,omitempty"`
	Description  string          `json:"description,omitempty"`
	InputSchema  json.RawMessage `json:"inputSchema,omitempty"`
	OutputSchema json.RawMessage `json:"outputSchema,omitempty"`
	Enabled      bool            `json:"enabled"`
}

// PromptArgument describes one named prompt parameter.
type PromptArgument struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// PromptDef describes one prompt template as published by a plugin.
type PromptDef struct {
	Name        string           `json:"name"`
	Title       string           `json:"title,omitempty"`
	Description string           `json:"description,omitempty"`
	Arguments   []PromptArgument `json:"arguments,omitempty"`
	Enabled     bool             `json:"enabled"`
}

// PromptMessage is one turn of a rendered prompt.
type PromptMessage struct {
	Role    string       `json:"role"`
	Content ContentBlock `json:"content"`
}

// ResourceDef describes one static resource as published by a plugin.
type ResourceDef struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MIMEType    string `json:"mimeType,omitempty"`
	Enabled     bool   `json:"enabled"`
}

// ResourceTemplateDef describes one parameterised resource template.
type ResourceTemplateDef struct {
	URITemplate string `json:"uriTemplate"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MIMEType    string `json:"mimeType,omitempty"`
	Enabled     bool   `json:"enabled"`
}

// RunCallToolRequest is the payload of a RunCallTool call (either
// direction: bridge→plugin for dispatch, or echoed back for diagnostics).
type RunCallToolRequest struct {
	RequestID string          `json:"requestId"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// RunListToolResult is the payload of a RunListTool reply.
type RunListToolResult struct {
	Tools []ToolDef `json:"tools"`
}

// RunGetPromptRequest is the payload of a RunGetPrompt call.
type RunGetPromptRequest struct {
	RequestID string            `json:"requestId"`
	Name      string            `json:"name"`
	Arguments map[string]string `json:"arguments,omitempty"`
}

// RunGetPromptResult is the payload of a RunGetPrompt reply.
type RunGetPromptResult struct {
	Description string          `json:"description,omitempty"`
	Messages    []PromptMessage `json:"messages"`
}

// RunListPromptsResult is the payload of a RunListPrompts reply.
type RunListPromptsResult struct {
	Prompts []PromptDef `json:"prompts"`
}

// RunResourceContentRequest is the payload of a RunResourceContent call.
type RunResourceContentRequest struct {
	RequestID string `json:"requestId"`
	URI       string `json:"uri"`
}

// RunResourceContentResult is the payload of a RunResourceContent reply.
type RunResourceContentResult struct {
	Contents []ResourceContents `json:"contents"`
}

// RunListResourcesResult is the payload of a RunListResources reply.
type RunListResourcesResult struct {
	Resources []ResourceDef `json:"resources"`
}

// RunListResourceTemplatesResult is the payload of a RunResourceTemplates reply.
type RunListResourceTemplatesResult struct {
	Templates []ResourceTemplateDef `json:"resourceTemplates"`
}

// NotifyToolRequestCompletedPayload is the out-of-band completion
// notification a host sends for a tool call it answered asynchronously.
type NotifyToolRequestCompletedPayload struct {
	RequestID string   `json:"requestId"`
	Response  Response `json:"response"`
}
