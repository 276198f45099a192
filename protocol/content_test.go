package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentBlockRoundTrip(t *testing.T) {
	t.Parallel()

	blocks := []ContentBlock{
		TextBlock("hello"),
		ImageBlock("YmFzZTY0", "image/png"),
		AudioBlock("YXVkaW8=", "audio/wav"),
		ResourceBlock(ResourceContents{URI: "file:///a.txt", MIMEType: "text/plain", Text: "contents"}),
	}

	for _, b := range blocks {
		raw, err := json.Marshal(b)
		require.NoError(t, err)

		var got ContentBlock
		require.NoError(t, json.Unmarshal(raw, &got))
		assert.Equal(t, b, got)
	}
}

func TestResponseEnvelopeJSONShape(t *testing.T) {
	t.Parallel()
	resp := Success("req-1", "ok")

	raw, err := json.Marshal(resp)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.Equal(t, "req-1", m["requestId"])
	assert.Equal(t, "Success", m["status"])
	assert.NotContains(t, m, "structured", "Structured must be omitted when empty")
	assert.Contains(t, m, "content")
}

func TestSuccessStructuredEchoesTextBlock(t *testing.T) {
	t.Parallel()
	structured := json.RawMessage(`{"a":1}`)
	resp := SuccessStructured("req-2", structured)

	assert.Equal(t, StatusSuccess, resp.Status)
	assert.Equal(t, structured, resp.Structured)
	require.Len(t, resp.Content, 1)
	assert.Equal(t, ContentText, resp.Content[0].Kind)
	assert.JSONEq(t, `{"a":1}`, resp.Content[0].Text)
}

func TestErrorAndCancelled(t *testing.T) {
	t.Parallel()
	errResp := Error("req-3", "boom")
	assert.Equal(t, StatusError, errResp.Status)
	assert.Equal(t, "boom", errResp.Message)

	cancelled := Cancelled("req-4")
	assert.Equal(t, StatusCancel, cancelled.Status)
}
