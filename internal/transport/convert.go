package transport

import (
	"encoding/base64"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/roadrunner-plugins/mcp-bridge/internal/handlers"
	"github.com/roadrunner-plugins/mcp-bridge/protocol"
)

// decodeBase64 converts the wire's base64 payload fields into the raw
// bytes the MCP SDK expects (it re-encodes on marshal). Malformed input is
// passed through as raw bytes rather than dropped.
func decodeBase64(s string) []byte {
	if s == "" {
		return nil
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return []byte(s)
	}
	return b
}

// toMCPContent converts the router-facing ContentBlock variants into the
// MCP SDK's Content interface values.
func toMCPContent(blocks []protocol.ContentBlock) []mcp.Content {
	out := make([]mcp.Content, 0, len(blocks))
	for _, b := range blocks {
		switch b.Kind {
		case protocol.ContentImage:
			out = append(out, &mcp.ImageContent{Data: decodeBase64(b.Data), MIMEType: b.MIMEType})
		case protocol.ContentAudio:
			out = append(out, &mcp.AudioContent{Data: decodeBase64(b.Data), MIMEType: b.MIMEType})
		case protocol.ContentResource:
			if b.Resource != nil {
				out = append(out, &mcp.EmbeddedResource{Resource: &mcp.ResourceContents{
					URI:      b.Resource.URI,
					MIMEType: b.Resource.MIMEType,
					Text:     b.Resource.Text,
					Blob:     decodeBase64(b.Resource.Blob),
				}})
			}
		default:
			out = append(out, &mcp.TextContent{Text: b.Text})
		}
	}
	return out
}

// toCallToolResult maps a router Response into the SDK's native result
// type.
func toCallToolResult(resp protocol.Response) *mcp.CallToolResult {
	result := &mcp.CallToolResult{
		Content: toMCPContent(resp.Content),
		IsError: resp.Status == protocol.StatusError,
	}
	if len(resp.Structured) > 0 {
		var structured any
		if err := json.Unmarshal(resp.Structured, &structured); err == nil {
			result.StructuredContent = structured
		}
	}
	return result
}

// errorResult builds an is-error CallToolResult from a handler error,
// carrying the descriptive message instead of failing the MCP call
// outright.
func errorResult(err error) *mcp.CallToolResult {
	msg := err.Error()
	if ve, ok := err.(*handlers.VerbError); ok {
		msg = ve.Message
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: msg}},
		IsError: true,
	}
}
