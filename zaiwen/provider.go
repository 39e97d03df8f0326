package zaiwen

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hanekoo/zaiwen2api/account"
	"github.com/hanekoo/zaiwen2api/internal/metrics"
)

// 简要答案模式的提前终止标记：累积文本中出现任意一个即停止转发
var conciseEndMarkers = []string{
	"# 详细专业报告",
	"更详细的专业报告见下文",
	"--- 模块5.2:",
	"## 1. 执行摘要",
}

const htmlFenceOpen = "```html"

// Config Provider 配置。
type Config struct {
	// BaseURL 后端地址，默认 DefaultBaseURL
	BaseURL string
	// Timeout 单个流的整体超时，默认 180s
	Timeout time.Duration
}

// Provider 把后端的分帧流转换为出站事件序列：借用凭据、识别带内
// token 轮换、驱动 OutputFilter、按输出模式决定何时提前终止。
type Provider struct {
	cfg     Config
	pool    *account.Pool
	client  *http.Client
	logger  *zap.Logger
	metrics *metrics.Collector
}

// NewProvider 创建 Provider。collector 可为 nil。
func NewProvider(cfg Config, pool *account.Pool, collector *metrics.Collector, logger *zap.Logger) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 180 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		cfg:  cfg,
		pool: pool,
		// 流式请求的生命周期由 context 控制，不设 client 级超时
		client:  &http.Client{},
		logger:  logger.With(zap.String("component", "zaiwen_provider")),
		metrics: collector,
	}
}

// BuildPrompt 把 OpenAI 消息列表拼接成单个提示串。
func BuildPrompt(messages []Message) string {
	parts := make([]string, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			parts = append(parts, "System: "+msg.Content)
		case RoleUser:
			parts = append(parts, "User: "+msg.Content)
		case RoleAssistant:
			parts = append(parts, "Assistant: "+msg.Content)
		default:
			parts = append(parts, string(msg.Role)+": "+msg.Content)
		}
	}
	return strings.Join(parts, "\n")
}

// StreamChat 发起一次对话流。所有失败都折叠成单个带 Err 的终止事件，
// 随后关闭通道；正常结束以 FinishReason == "stop" 的事件收尾。
// 取消 ctx 会立即释放底层连接。
func (p *Provider) StreamChat(ctx context.Context, messages []Message, model string) <-chan StreamChunk {
	ch := make(chan StreamChunk)
	go func() {
		defer close(ch)
		p.streamChat(ctx, messages, model, ch)
	}()
	return ch
}

// send 在消费者取消时放弃投递。返回 false 表示会话已被放弃。
func send(ctx context.Context, ch chan<- StreamChunk, chunk StreamChunk) bool {
	select {
	case <-ctx.Done():
		return false
	case ch <- chunk:
		return true
	}
}

func (p *Provider) streamChat(ctx context.Context, messages []Message, model string, ch chan<- StreamChunk) {
	baseModel, mode := ParseModelName(model)
	if baseModel == "" {
		baseModel = ChatBaseModels[0]
	}
	filter := FilterForMode(mode)

	p.logger.Info("output mode resolved",
		zap.String("model", baseModel),
		zap.String("mode", string(mode)))

	token, err := p.pool.Borrow(ctx)
	if err != nil {
		send(ctx, ch, StreamChunk{Model: model, Err: &Error{
			Code: ErrNoCredential, Message: "no active tokens available",
			HTTPStatus: http.StatusServiceUnavailable,
		}})
		return
	}
	p.metrics.RecordPoolOp("borrow")

	payload, err := json.Marshal(BuildMessagePayload(BuildPrompt(messages), baseModel, "deepsearch", true, nil))
	if err != nil {
		send(ctx, ch, StreamChunk{Model: model, Err: &Error{
			Code: ErrUpstreamError, Message: err.Error(), HTTPStatus: http.StatusInternalServerError,
		}})
		return
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(p.cfg.BaseURL, "/")+MessageStreamPath, bytes.NewReader(payload))
	if err != nil {
		send(ctx, ch, StreamChunk{Model: model, Err: &Error{
			Code: ErrUpstreamError, Message: err.Error(), HTTPStatus: http.StatusInternalServerError,
		}})
		return
	}
	ApplyBaseHeaders(req, token)

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		send(ctx, ch, StreamChunk{Model: model, Err: &Error{
			Code: ErrUpstreamError, Message: err.Error(),
			HTTPStatus: http.StatusBadGateway, Retryable: true,
		}})
		return
	}
	defer resp.Body.Close()
	p.metrics.RecordUpstreamRequest(MessageStreamPath, resp.StatusCode, time.Since(start))

	// 响应头里的替换 token：带外轮换通道
	rotated := false
	if headerToken := resp.Header.Get("token"); headerToken != "" && headerToken != token {
		p.logger.Info("token rotation detected in response headers",
			zap.String("old", account.MaskToken(token)),
			zap.String("new", account.MaskToken(headerToken)))
		if err := p.pool.Rotate(ctx, token, headerToken); err != nil {
			p.logger.Error("token rotation failed", zap.Error(err))
		} else {
			p.metrics.RecordPoolOp("rotate")
		}
		rotated = true
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		p.logger.Error("upstream returned non-200",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", body))
		code := ErrUpstreamError
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			code = ErrUpstreamRejected
			if err := p.pool.Invalidate(ctx, token); err != nil {
				p.logger.Error("token invalidation failed", zap.Error(err))
			} else {
				p.metrics.RecordPoolOp("invalidate")
			}
		}
		send(ctx, ch, StreamChunk{Model: model, Err: &Error{
			Code:       code,
			Message:    fmt.Sprintf("upstream error: %d", resp.StatusCode),
			HTTPStatus: resp.StatusCode,
		}})
		return
	}

	id := "chatcmpl-" + uuid.NewString()

	var (
		htmlBuf strings.Builder
		inHTML  bool
		stopped bool
	)
	buffer := ""

	reader := bufio.NewReader(resp.Body)
	for !stopped {
		line, readErr := reader.ReadString('\n')
		line = strings.TrimSpace(line)

		if strings.HasPrefix(line, "data:") {
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				break
			}

			text := ""
			var frame streamFrame
			if err := json.Unmarshal([]byte(data), &frame); err == nil {
				// 帧体内的替换 token：每个流只轮换一次
				if bodyToken := frame.replacementToken(); bodyToken != "" && bodyToken != token && !rotated {
					p.logger.Info("token rotation detected in response body",
						zap.String("old", account.MaskToken(token)),
						zap.String("new", account.MaskToken(bodyToken)))
					if err := p.pool.Rotate(ctx, token, bodyToken); err != nil {
						p.logger.Error("token rotation failed", zap.Error(err))
					} else {
						p.metrics.RecordPoolOp("rotate")
					}
					rotated = true
				}
				if frame.isMetadata() {
					if readErr != nil {
						break
					}
					continue
				}
				text = frame.payloadText()
			} else {
				// 无法解码的帧按字面文本处理，不让单帧毁掉整个流
				text = data
			}

			if text != "" {
				buffer += text

				switch {
				case mode == ModeHTML:
					if !inHTML {
						if idx := strings.Index(buffer, htmlFenceOpen); idx >= 0 {
							inHTML = true
							htmlBuf.WriteString(buffer[idx+len(htmlFenceOpen):])
							buffer = ""
						}
					} else if strings.Contains(text, "```") && strings.HasSuffix(strings.TrimSpace(text), "```") {
						htmlBuf.WriteString(strings.ReplaceAll(text, "```", ""))
						send(ctx, ch, StreamChunk{ID: id, Model: model, Content: htmlBuf.String()})
						stopped = true
					} else {
						htmlBuf.WriteString(text)
					}

				default:
					if mode == ModeConcise {
						if idx := findConciseMarker(buffer); idx >= 0 {
							p.logger.Info("detailed report marker reached, halting stream early")
							final := filter.FilterText(buffer[:idx])
							if strings.TrimSpace(final) != "" {
								send(ctx, ch, StreamChunk{ID: id, Model: model, Content: final})
							}
							buffer = ""
							stopped = true
							break
						}
					}
					// 推送所有已换行收尾的完整行
					if idx := strings.LastIndexByte(buffer, '\n'); idx >= 0 {
						out := filter.FilterChunk(buffer[:idx+1])
						buffer = buffer[idx+1:]
						if strings.TrimSpace(out) != "" {
							if !send(ctx, ch, StreamChunk{ID: id, Model: model, Content: out}) {
								return
							}
						}
					}
				}
			}
		}

		if readErr != nil {
			if readErr != io.EOF {
				if ctx.Err() != nil {
					// 消费者取消：连接由 defer 释放，无需再发事件
					return
				}
				send(ctx, ch, StreamChunk{ID: id, Model: model, Err: &Error{
					Code: ErrUpstreamError, Message: readErr.Error(),
					HTTPStatus: http.StatusBadGateway, Retryable: true,
				}})
				return
			}
			break
		}
	}

	// 冲出剩余缓冲
	if !stopped && mode != ModeHTML && buffer != "" {
		out := filter.FilterText(buffer)
		if rem := filter.Flush(); rem != "" {
			out += rem
		}
		if strings.TrimSpace(out) != "" {
			send(ctx, ch, StreamChunk{ID: id, Model: model, Content: out})
		}
	}

	send(ctx, ch, StreamChunk{ID: id, Model: model, FinishReason: "stop"})
}

// findConciseMarker 返回最先出现的简要答案终止标记位置，没有则 -1。
func findConciseMarker(s string) int {
	found := -1
	for _, marker := range conciseEndMarkers {
		if idx := strings.Index(s, marker); idx >= 0 && (found < 0 || idx < found) {
			found = idx
		}
	}
	return found
}
