package transport

import (
	"context"
	"encoding/base64"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roadrunner-plugins/mcp-bridge/internal/handlers"
	"github.com/roadrunner-plugins/mcp-bridge/protocol"
)

func TestExtractBearerToken(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest("GET", "/mcp", nil)
	assert.Equal(t, "", extractBearerToken(r))

	r.Header.Set("Authorization", "Bearer secret-123")
	assert.Equal(t, "secret-123", extractBearerToken(r))
}

func TestDecodeBase64(t *testing.T) {
	t.Parallel()

	assert.Nil(t, decodeBase64(""))

	raw := []byte{0x01, 0x02, 0xff}
	assert.Equal(t, raw, decodeBase64(base64.StdEncoding.EncodeToString(raw)))

	// Malformed input passes through as raw bytes rather than vanishing.
	assert.Equal(t, []byte("!!!"), decodeBase64("!!!"))
}

func TestToMCPContentVariants(t *testing.T) {
	t.Parallel()

	img := base64.StdEncoding.EncodeToString([]byte("png-bytes"))
	blocks := []protocol.ContentBlock{
		protocol.TextBlock("hello"),
		protocol.ImageBlock(img, "image/png"),
		protocol.ResourceBlock(protocol.ResourceContents{URI: "file:///a", MIMEType: "text/plain", Text: "body"}),
	}

	out := toMCPContent(blocks)
	require.Len(t, out, 3)

	text, ok := out[0].(*mcp.TextContent)
	require.True(t, ok)
	assert.Equal(t, "hello", text.Text)

	image, ok := out[1].(*mcp.ImageContent)
	require.True(t, ok)
	assert.Equal(t, []byte("png-bytes"), image.Data)
	assert.Equal(t, "image/png", image.MIMEType)

	res, ok := out[2].(*mcp.EmbeddedResource)
	require.True(t, ok)
	require.NotNil(t, res.Resource)
	assert.Equal(t, "file:///a", res.Resource.URI)
	assert.Equal(t, "body", res.Resource.Text)
}

func TestToCallToolResultStructured(t *testing.T) {
	t.Parallel()

	resp := protocol.SuccessStructured("req-1", []byte(`{"x":9}`))
	result := toCallToolResult(resp)

	assert.False(t, result.IsError)
	require.Len(t, result.Content, 1)
	structured, ok := result.StructuredContent.(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 9, structured["x"])
}

func TestToCallToolResultError(t *testing.T) {
	t.Parallel()

	result := toCallToolResult(protocol.Error("req-2", "boom"))
	assert.True(t, result.IsError)
}

func TestErrorResultUnwrapsVerbError(t *testing.T) {
	t.Parallel()

	result := errorResult(&handlers.VerbError{RequestID: "req-3", Message: "no plugin available"})
	assert.True(t, result.IsError)
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	assert.Equal(t, "no plugin available", text.Text)
}

func TestWatchSessionCancelsOnAbortedRequest(t *testing.T) {
	t.Parallel()

	sessCtx, sessCancel := context.WithCancel(context.Background())
	defer sessCancel()
	reqCtx, reqCancel := context.WithCancel(context.Background())

	cancelled := make(chan struct{})
	go watchSession(sessCtx, reqCtx, func() { close(cancelled) })

	reqCancel()
	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("expected the watchdog to cancel the session once the request aborted")
	}
}
