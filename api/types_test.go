package api

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseContent_PlainString(t *testing.T) {
	msg := ChatMessage{Role: "user", Content: json.RawMessage(`"你好"`)}
	text, image, filename := msg.ParseContent()
	assert.Equal(t, "你好", text)
	assert.Nil(t, image)
	assert.Equal(t, "reference.jpg", filename)
}

func TestParseContent_MultimodalParts(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString([]byte("fake-png"))
	content := `[
		{"type": "text", "text": "描述这张图"},
		{"type": "image_url", "image_url": {"url": "data:image/png;base64,` + payload + `"}},
		{"type": "text", "text": "并给出建议"}
	]`
	msg := ChatMessage{Role: "user", Content: json.RawMessage(content)}

	text, image, filename := msg.ParseContent()
	assert.Equal(t, "描述这张图 并给出建议", text)
	assert.Equal(t, []byte("fake-png"), image)
	assert.Equal(t, "reference.png", filename)
}

func TestParseContent_HTTPImageURLIgnored(t *testing.T) {
	content := `[
		{"type": "text", "text": "看看这个"},
		{"type": "image_url", "image_url": {"url": "https://example.com/cat.jpg"}}
	]`
	msg := ChatMessage{Role: "user", Content: json.RawMessage(content)}

	text, image, _ := msg.ParseContent()
	assert.Equal(t, "看看这个", text)
	assert.Nil(t, image)
}

func TestParseContent_InvalidBase64Ignored(t *testing.T) {
	content := `[{"type": "image_url", "image_url": {"url": "data:image/png;base64,@@@not-base64@@@"}}]`
	msg := ChatMessage{Role: "user", Content: json.RawMessage(content)}

	_, image, _ := msg.ParseContent()
	assert.Nil(t, image)
}

func TestParseContent_FirstImageWins(t *testing.T) {
	first := base64.StdEncoding.EncodeToString([]byte("first"))
	second := base64.StdEncoding.EncodeToString([]byte("second"))
	content := `[
		{"type": "image_url", "image_url": {"url": "data:image/jpeg;base64,` + first + `"}},
		{"type": "image_url", "image_url": {"url": "data:image/png;base64,` + second + `"}}
	]`
	msg := ChatMessage{Role: "user", Content: json.RawMessage(content)}

	_, image, filename := msg.ParseContent()
	assert.Equal(t, []byte("first"), image)
	assert.Equal(t, "reference.jpeg", filename)
}

func TestParseContent_Malformed(t *testing.T) {
	msg := ChatMessage{Role: "user", Content: json.RawMessage(`{"oops": true}`)}
	text, image, _ := msg.ParseContent()
	assert.Empty(t, text)
	assert.Nil(t, image)
}
