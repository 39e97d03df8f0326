package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hanekoo/zaiwen2api/api"
	"github.com/hanekoo/zaiwen2api/zaiwen"
	"github.com/hanekoo/zaiwen2api/zaiwen/imagegen"
)

// =============================================================================
// 💬 聊天接口 Handler
// =============================================================================

// ChatHandler 处理 /v1/chat/completions。
// 对话模型走流式转换链路，图像模型（Nano-Banana / FLUX-2-Pro 前缀）
// 转投图像生成并以 Markdown 图片消息应答。
type ChatHandler struct {
	provider *zaiwen.Provider
	images   *imagegen.ImageWorkflow
	logger   *zap.Logger
}

// NewChatHandler 创建聊天处理器
func NewChatHandler(provider *zaiwen.Provider, images *imagegen.ImageWorkflow, logger *zap.Logger) *ChatHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatHandler{
		provider: provider,
		images:   images,
		logger:   logger.With(zap.String("component", "chat_handler")),
	}
}

// HandleCompletions 处理聊天补全请求，流式与非流式共用入口。
func (h *ChatHandler) HandleCompletions(w http.ResponseWriter, r *http.Request) {
	var req api.ChatCompletionRequest
	if !DecodeJSONBody(w, r, &req, h.logger) {
		return
	}
	if req.Model == "" {
		req.Model = zaiwen.ChatBaseModels[0]
	}
	if len(req.Messages) == 0 {
		WriteInvalidRequest(w, "messages cannot be empty", h.logger)
		return
	}

	h.logger.Info("chat request",
		zap.String("model", req.Model),
		zap.Bool("stream", req.Stream),
		zap.Int("messages", len(req.Messages)))

	if zaiwen.IsImageModel(req.Model) {
		h.handleImageChat(w, r, &req)
		return
	}

	messages := make([]zaiwen.Message, 0, len(req.Messages))
	for i := range req.Messages {
		text, _, _ := req.Messages[i].ParseContent()
		messages = append(messages, zaiwen.Message{
			Role:    zaiwen.Role(req.Messages[i].Role),
			Content: text,
		})
	}

	stream := h.provider.StreamChat(r.Context(), messages, req.Model)
	if req.Stream {
		h.streamResponse(w, req.Model, stream)
	} else {
		h.aggregateResponse(w, req.Model, stream)
	}
}

// streamResponse 把内部流转成 OpenAI chat.completion.chunk 的 SSE。
func (h *ChatHandler) streamResponse(w http.ResponseWriter, model string, stream <-chan zaiwen.StreamChunk) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteError(w, http.StatusInternalServerError, "internal_error", "", "streaming not supported", h.logger)
		return
	}

	headerSent := false
	sendSSE := func(payload []byte) {
		if !headerSent {
			w.Header().Set("Content-Type", "text/event-stream")
			w.Header().Set("Cache-Control", "no-cache")
			w.Header().Set("Connection", "keep-alive")
			w.Header().Set("X-Accel-Buffering", "no") // 禁用 nginx 缓冲
			headerSent = true
		}
		w.Write([]byte("data: "))
		w.Write(payload)
		w.Write([]byte("\n\n"))
		flusher.Flush()
	}

	created := time.Now().Unix()
	first := true
	for chunk := range stream {
		if chunk.Err != nil {
			// 尚未写出任何内容时还能返回正常的错误响应
			if !headerSent {
				WriteUpstreamError(w, chunk.Err, h.logger)
				return
			}
			h.logger.Error("stream error", zap.String("code", string(chunk.Err.Code)), zap.Error(chunk.Err))
			sendSSE(mustJSON(api.ErrorResponse{Error: api.ErrorDetail{
				Message: chunk.Err.Message,
				Type:    "upstream_error",
				Code:    string(chunk.Err.Code),
			}}))
			sendSSE([]byte("[DONE]"))
			return
		}

		out := api.ChatCompletionChunk{
			ID:      chunk.ID,
			Object:  "chat.completion.chunk",
			Created: created,
			Model:   model,
		}
		if chunk.FinishReason != "" {
			reason := chunk.FinishReason
			out.Choices = []api.ChunkChoice{{FinishReason: &reason}}
		} else {
			delta := api.ChunkDelta{Content: chunk.Content}
			if first {
				delta.Role = "assistant"
				first = false
			}
			out.Choices = []api.ChunkChoice{{Delta: delta}}
		}
		sendSSE(mustJSON(out))
	}
	sendSSE([]byte("[DONE]"))
}

// aggregateResponse 聚合整条流，输出单个 chat.completion。
// 连续空行压成一个，首尾空白去掉。
func (h *ChatHandler) aggregateResponse(w http.ResponseWriter, model string, stream <-chan zaiwen.StreamChunk) {
	var builder strings.Builder
	for chunk := range stream {
		if chunk.Err != nil {
			WriteUpstreamError(w, chunk.Err, h.logger)
			return
		}
		builder.WriteString(chunk.Content)
	}

	WriteJSON(w, http.StatusOK, api.ChatCompletionResponse{
		ID:      "chatcmpl-" + uuid.NewString(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []api.ChatChoice{{
			Message:      api.ChatMessageOut{Role: "assistant", Content: collapseBlankLines(builder.String())},
			FinishReason: "stop",
		}},
	})
}

// handleImageChat 把发往图像模型的对话请求转成一次图像生成。
func (h *ChatHandler) handleImageChat(w http.ResponseWriter, r *http.Request, req *api.ChatCompletionRequest) {
	// 取最后一条用户消息做提示词，顺带提取内嵌参考图
	var prompt string
	var reference []byte
	referenceName := "reference.jpg"
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role != "user" {
			continue
		}
		text, image, filename := req.Messages[i].ParseContent()
		prompt = text
		if image != nil {
			reference = image
			referenceName = filename
		}
		break
	}
	if prompt == "" {
		prompt = "generate an image"
	}

	result, err := h.images.Generate(r.Context(), imagegen.Request{
		Prompt:        prompt,
		Model:         req.Model,
		Reference:     reference,
		ReferenceName: referenceName,
	})

	var content string
	if err != nil {
		h.logger.Error("image generation via chat failed", zap.Error(err))
		content = fmt.Sprintf("❌ 图像生成错误: %s", err.Error())
	} else if len(result.Data) == 0 {
		content = "❌ 图像生成失败，未返回图片链接"
	} else {
		url := result.Data[0].URL
		content = fmt.Sprintf("![Generated Image](%s)\n\n🎨 **生成完成！**\n\n- 提示词: %s\n- 模型: %s\n- 图片链接: %s",
			url, prompt, req.Model, url)
	}

	id := "chatcmpl-img-" + uuid.NewString()
	created := time.Now().Unix()

	if req.Stream {
		flusher, ok := w.(http.Flusher)
		if !ok {
			WriteError(w, http.StatusInternalServerError, "internal_error", "", "streaming not supported", h.logger)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		write := func(payload []byte) {
			w.Write([]byte("data: "))
			w.Write(payload)
			w.Write([]byte("\n\n"))
			flusher.Flush()
		}
		write(mustJSON(api.ChatCompletionChunk{
			ID: id, Object: "chat.completion.chunk", Created: created, Model: req.Model,
			Choices: []api.ChunkChoice{{Delta: api.ChunkDelta{Role: "assistant", Content: content}}},
		}))
		reason := "stop"
		write(mustJSON(api.ChatCompletionChunk{
			ID: id, Object: "chat.completion.chunk", Created: created, Model: req.Model,
			Choices: []api.ChunkChoice{{FinishReason: &reason}},
		}))
		write([]byte("[DONE]"))
		return
	}

	WriteJSON(w, http.StatusOK, api.ChatCompletionResponse{
		ID:      id,
		Object:  "chat.completion",
		Created: created,
		Model:   req.Model,
		Choices: []api.ChatChoice{{
			Message:      api.ChatMessageOut{Role: "assistant", Content: content},
			FinishReason: "stop",
		}},
	})
}

// collapseBlankLines 把连续空行压成一个空行并去除首尾空白。
func collapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	cleaned := make([]string, 0, len(lines))
	prevEmpty := false
	for _, line := range lines {
		empty := strings.TrimSpace(line) == ""
		if empty && prevEmpty {
			continue
		}
		cleaned = append(cleaned, line)
		prevEmpty = empty
	}
	return strings.TrimSpace(strings.Join(cleaned, "\n"))
}

func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
