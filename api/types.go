package api

import (
	"encoding/base64"
	"encoding/json"
	"regexp"
	"strings"
)

// =============================================================================
// 💬 对话接口类型
// =============================================================================

// ChatCompletionRequest 对应 POST /v1/chat/completions 的请求体。
// 未识别的 OpenAI 字段（temperature、max_tokens 等）被忽略。
type ChatCompletionRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

// ChatMessage 是 OpenAI 兼容的消息。Content 既可以是纯字符串，
// 也可以是 text / image_url 片段数组，解码延迟到 ParseContent。
type ChatMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// contentPart 多模态内容片段
type contentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text"`
	ImageURL struct {
		URL string `json:"url"`
	} `json:"image_url"`
}

var dataImageRe = regexp.MustCompile(`(?s)^data:image/(\w+);base64,(.+)$`)

// ParseContent 解析消息内容，返回文本、内嵌参考图与文件名。
// 多个 text 片段用空格拼接；只取第一张可解码的 base64 图；
// 非 data URL 的图片地址被忽略。
func (m *ChatMessage) ParseContent() (text string, image []byte, filename string) {
	filename = "reference.jpg"

	// 纯字符串格式
	var plain string
	if err := json.Unmarshal(m.Content, &plain); err == nil {
		return plain, nil, filename
	}

	var parts []contentPart
	if err := json.Unmarshal(m.Content, &parts); err != nil {
		return "", nil, filename
	}

	var texts []string
	for _, part := range parts {
		switch part.Type {
		case "text":
			texts = append(texts, part.Text)
		case "image_url":
			if image != nil {
				continue
			}
			match := dataImageRe.FindStringSubmatch(part.ImageURL.URL)
			if match == nil {
				continue
			}
			decoded, err := base64.StdEncoding.DecodeString(match[2])
			if err != nil {
				continue
			}
			image = decoded
			filename = "reference." + match[1]
		}
	}
	return strings.Join(texts, " "), image, filename
}

// ChatCompletionResponse 非流式对话响应
type ChatCompletionResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
	Usage   ChatUsage    `json:"usage"`
}

// ChatChoice 非流式响应里的一个候选
type ChatChoice struct {
	Index        int            `json:"index"`
	Message      ChatMessageOut `json:"message"`
	FinishReason string         `json:"finish_reason"`
}

// ChatMessageOut 响应消息（content 恒为字符串）
type ChatMessageOut struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatUsage 用量统计。上游不回报 token 数，恒为零。
type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatCompletionChunk 流式对话的 SSE 块
type ChatCompletionChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []ChunkChoice `json:"choices"`
}

// ChunkChoice 流式块里的一个候选
type ChunkChoice struct {
	Index        int        `json:"index"`
	Delta        ChunkDelta `json:"delta"`
	FinishReason *string    `json:"finish_reason"`
}

// ChunkDelta 流式增量
type ChunkDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

// =============================================================================
// 🎨 图像接口类型
// =============================================================================

// ImageGenerationRequest 对应 POST /v1/images/generations
type ImageGenerationRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	N      int    `json:"n"`
	Size   string `json:"size"`
}

// ImageEditRequest 对应 POST /v1/images/edits，参考图为 base64
type ImageEditRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Image  string `json:"image"`
	N      int    `json:"n"`
	Size   string `json:"size"`
}

// =============================================================================
// 🛡️ 错误与管理接口类型
// =============================================================================

// ErrorResponse OpenAI 风格的错误响应
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail 错误明细
type ErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
}

// AccountView 管理接口返回的账号视图，token 已脱敏
type AccountView struct {
	ID         uint   `json:"id"`
	Token      string `json:"token"`
	Status     string `json:"status"`
	LastUsedAt string `json:"last_used_at"`
	CreatedAt  string `json:"created_at"`
}

// AddAccountsRequest 管理接口的批量导入请求。
// Token 与 Tokens 至少一个非空。
type AddAccountsRequest struct {
	Token  string   `json:"token,omitempty"`
	Tokens []string `json:"tokens,omitempty"`
}
