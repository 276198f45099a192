// Package protocol holds the wire-level data model shared by the bridge
// core and the plugin-side SDK: the Response envelope, ContentBlock
// variants, and the capability-change event shape.
package protocol

import "encoding/json"

// ContentKind distinguishes ContentBlock variants.
type ContentKind string

const (
	ContentText     ContentKind = "text"
	ContentImage    ContentKind = "image"
	ContentAudio    ContentKind = "audio"
	ContentResource ContentKind = "resource"
)

// ResourceContents is the body of a resource-typed ContentBlock: either
// Text or Blob is set, never both.
type ResourceContents struct {
	URI      string `json:"uri"`
	MIMEType string `json:"mimeType,omitempty"`
	Text     string `json:"text,omitempty"`
	Blob     string `json:"blob,omitempty"` // base64
}

// ContentBlock is a tagged union over the four content variants. Only the
// fields relevant to Kind are populated; json (de)serialization goes
// through the struct tags, and the encode/decode round-trip preserves
// type, MIME type, and payload.
type ContentBlock struct {
	Kind     ContentKind       `json:"type"`
	Text     string            `json:"text,omitempty"`
	MIMEType string            `json:"mimeType,omitempty"`
	Data     string            `json:"data,omitempty"` // base64, image/audio
	Resource *ResourceContents `json:"resource,omitempty"`
}

// TextBlock constructs a text ContentBlock.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Kind: ContentText, Text: text}
}

// ImageBlock constructs an image ContentBlock from base64 data.
func ImageBlock(base64Data, mimeType string) ContentBlock {
	return ContentBlock{Kind: ContentImage, Data: base64Data, MIMEType: mimeType}
}

// AudioBlock constructs an audio ContentBlock from base64 data.
func AudioBlock(base64Data, mimeType string) ContentBlock {
	return ContentBlock{Kind: ContentAudio, Data: base64Data, MIMEType: mimeType}
}

// ResourceBlock wraps a ResourceContents in a ContentBlock.
func ResourceBlock(r ResourceContents) ContentBlock {
	return ContentBlock{Kind: ContentResource, Resource: &r}
}

// Status is the Response envelope's outcome field.
type Status string

const (
	StatusSuccess    Status = "Success"
	StatusError      Status = "Error"
	StatusProcessing Status = "Processing"
	StatusCancel     Status = "Cancel"
)

// Response is the envelope exchanged across both the MCP-facing side and
// the plugin channel.
type Response struct {
	RequestID  string          `json:"requestId"`
	Status     Status          `json:"status"`
	Message    string          `json:"message,omitempty"`
	Value      any             `json:"value,omitempty"`
	Structured json.RawMessage `json:"structured,omitempty"`
	Content    []ContentBlock  `json:"content,omitempty"`
}

// Success builds a plain-text success Response.
func Success(requestID, text string) Response {
	return Response{
		RequestID: requestID,
		Status:    StatusSuccess,
		Content:   []ContentBlock{TextBlock(text)},
	}
}

// SuccessStructured builds a success Response whose payload is JSON-serialised
// and also echoed as a text block for backward-compatible clients.
func SuccessStructured(requestID string, structured json.RawMessage) Response {
	return Response{
		RequestID:  requestID,
		Status:     StatusSuccess,
		Structured: structured,
		Content:    []ContentBlock{TextBlock(string(structured))},
	}
}

// Error builds an Error-status Response.
func Error(requestID, message string) Response {
	return Response{RequestID: requestID, Status: StatusError, Message: message}
}

// Cancelled builds a Cancel-status Response.
func Cancelled(requestID string) Response {
	return Response{RequestID: requestID, Status: StatusCancel, Message: "cancelled"}
}

// CapabilityKind mirrors the bridge's changebus.Kind without creating an
// import cycle between protocol and internal/changebus.
type CapabilityKind string

const (
	CapabilityTools     CapabilityKind = "tools"
	CapabilityPrompts   CapabilityKind = "prompts"
	CapabilityResources CapabilityKind = "resources"
)

// CapabilityChange describes one capability-change event. The
// NotifyAboutUpdated{Tools,Prompts,Resources} notifications themselves are
// sent without a payload; the method name alone identifies the kind.
type CapabilityChange struct {
	Kind               CapabilityKind `json:"kind"`
	SourceConnectionID string         `json:"sourceConnectionId,omitempty"`
}
