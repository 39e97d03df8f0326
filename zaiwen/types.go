package zaiwen

import "encoding/json"

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message 已经过路由层解析的纯文本消息。
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// StreamChunk 出站流事件。Content 为增量文本；FinishReason == "stop"
// 表示流的显式结束标记；Err 非空表示该会话以单个终止错误事件收尾。
type StreamChunk struct {
	ID           string `json:"id,omitempty"`
	Model        string `json:"model,omitempty"`
	Content      string `json:"content,omitempty"`
	FinishReason string `json:"finish_reason,omitempty"`
	Err          *Error `json:"error,omitempty"`
}

// streamFrame 后端数据帧。文本负载可能落在 content/text/delta 任意一个
// 字段；token 轮换信息可能出现在多个字段名下。
type streamFrame struct {
	Type        string          `json:"type,omitempty"`
	Content     string          `json:"content,omitempty"`
	Text        string          `json:"text,omitempty"`
	Delta       string          `json:"delta,omitempty"`
	Token       string          `json:"token,omitempty"`
	TokenUpper  string          `json:"Token,omitempty"`
	AccessToken string          `json:"access_token,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
}

// frameData data 子对象中我们关心的字段。
type frameData struct {
	Token      string       `json:"token,omitempty"`
	DrawResult *drawResult  `json:"draw_result,omitempty"`
}

type drawResult struct {
	TaskID string `json:"task_id"`
}

// payloadText 返回帧携带的文本内容，按 content > text > delta 取值。
func (f *streamFrame) payloadText() string {
	if f.Content != "" {
		return f.Content
	}
	if f.Text != "" {
		return f.Text
	}
	return f.Delta
}

// isMetadata 纯元数据帧直接跳过。
func (f *streamFrame) isMetadata() bool {
	switch f.Type {
	case "conversation", "user-message", "assistant-message":
		return true
	}
	return false
}

// replacementToken 返回帧内携带的轮换 token（若有）。
func (f *streamFrame) replacementToken() string {
	if f.Token != "" {
		return f.Token
	}
	if f.TokenUpper != "" {
		return f.TokenUpper
	}
	if f.AccessToken != "" {
		return f.AccessToken
	}
	if len(f.Data) > 0 {
		var d frameData
		if err := json.Unmarshal(f.Data, &d); err == nil {
			return d.Token
		}
	}
	return ""
}
