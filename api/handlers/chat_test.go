package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanekoo/zaiwen2api/api"
)

func postJSON(t *testing.T, path string, body any) *http.Request {
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(string(raw)))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestChatCompletions_NonStreaming(t *testing.T) {
	stack := newTestStack(t, "tok-a")
	stack.serveChatFrames(
		`{"content": "第一段。\n"}`,
		`{"content": "\n\n\n第二段。\n"}`,
	)

	rec := stack.do(t, postJSON(t, "/v1/chat/completions", api.ChatCompletionRequest{
		Model:    "Gemini-3.0-Flash (专业报告)",
		Messages: []api.ChatMessage{{Role: "user", Content: json.RawMessage(`"你好"`)}},
	}))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp api.ChatCompletionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.Equal(t, "chat.completion", resp.Object)
	assert.True(t, strings.HasPrefix(resp.ID, "chatcmpl-"))
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, "assistant", resp.Choices[0].Message.Role)
	assert.Equal(t, "stop", resp.Choices[0].FinishReason)
	// 连续空行被压成一个
	assert.Equal(t, "第一段。\n\n第二段。", resp.Choices[0].Message.Content)
	assert.Zero(t, resp.Usage.TotalTokens)
}

func TestChatCompletions_Streaming(t *testing.T) {
	stack := newTestStack(t, "tok-a")
	stack.serveChatFrames(`{"content": "流式正文\n"}`)

	rec := stack.do(t, postJSON(t, "/v1/chat/completions", api.ChatCompletionRequest{
		Model:    "Gemini-3.0-Flash (专业报告)",
		Stream:   true,
		Messages: []api.ChatMessage{{Role: "user", Content: json.RawMessage(`"你好"`)}},
	}))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.True(t, strings.HasSuffix(strings.TrimSpace(body), "data: [DONE]"))

	var sawContent, sawStop bool
	for _, line := range strings.Split(body, "\n") {
		if !strings.HasPrefix(line, "data: ") || strings.Contains(line, "[DONE]") {
			continue
		}
		var chunk api.ChatCompletionChunk
		require.NoError(t, json.Unmarshal([]byte(line[6:]), &chunk))
		assert.Equal(t, "chat.completion.chunk", chunk.Object)
		require.Len(t, chunk.Choices, 1)
		if chunk.Choices[0].Delta.Content != "" {
			sawContent = true
			assert.Contains(t, chunk.Choices[0].Delta.Content, "流式正文")
			assert.Equal(t, "assistant", chunk.Choices[0].Delta.Role)
		}
		if chunk.Choices[0].FinishReason != nil {
			sawStop = true
			assert.Equal(t, "stop", *chunk.Choices[0].FinishReason)
		}
	}
	assert.True(t, sawContent)
	assert.True(t, sawStop)
}

func TestChatCompletions_EmptyMessages(t *testing.T) {
	stack := newTestStack(t, "tok-a")

	rec := stack.do(t, postJSON(t, "/v1/chat/completions", api.ChatCompletionRequest{
		Model: "Gemini-3.0-Flash",
	}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var resp api.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Error.Message, "messages")
}

func TestChatCompletions_NoCredential(t *testing.T) {
	stack := newTestStack(t) // 空池
	stack.serveChatFrames(`{"content": "x"}`)

	rec := stack.do(t, postJSON(t, "/v1/chat/completions", api.ChatCompletionRequest{
		Model:    "Gemini-3.0-Flash",
		Messages: []api.ChatMessage{{Role: "user", Content: json.RawMessage(`"hi"`)}},
	}))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var resp api.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ZW_NO_CREDENTIAL", resp.Error.Code)
}

func TestChatCompletions_ImageModelReturnsMarkdown(t *testing.T) {
	stack := newTestStack(t, "tok-a")
	stack.serveDrawTask("https://cdn.example.com/cat.png")

	rec := stack.do(t, postJSON(t, "/v1/chat/completions", api.ChatCompletionRequest{
		Model:    "FLUX-2-Pro (16:9)",
		Messages: []api.ChatMessage{{Role: "user", Content: json.RawMessage(`"画一只猫"`)}},
	}))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp api.ChatCompletionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	require.Len(t, resp.Choices, 1)
	content := resp.Choices[0].Message.Content
	assert.Contains(t, content, "![Generated Image](https://cdn.example.com/cat.png)")
	assert.Contains(t, content, "画一只猫")
	assert.True(t, strings.HasPrefix(resp.ID, "chatcmpl-img-"))
}

func TestChatCompletions_ImageModelStreaming(t *testing.T) {
	stack := newTestStack(t, "tok-a")
	stack.serveDrawTask("https://cdn.example.com/cat.png")

	rec := stack.do(t, postJSON(t, "/v1/chat/completions", api.ChatCompletionRequest{
		Model:    "Nano-Banana",
		Stream:   true,
		Messages: []api.ChatMessage{{Role: "user", Content: json.RawMessage(`"画一只猫"`)}},
	}))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "![Generated Image]")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(body), "data: [DONE]"))
}

func TestCollapseBlankLines(t *testing.T) {
	in := "a\n\n\n\nb\n\nc\n"
	assert.Equal(t, "a\n\nb\n\nc", collapseBlankLines(in))
	assert.Equal(t, "", collapseBlankLines("\n\n\n"))
}
