package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/hanekoo/zaiwen2api/api"
	"github.com/hanekoo/zaiwen2api/zaiwen"
	"github.com/hanekoo/zaiwen2api/zaiwen/imagegen"
)

// =============================================================================
// 🎯 响应辅助函数
// =============================================================================

// WriteJSON 写入 JSON 响应
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		// 编码失败时响应头已写出，只能放弃
		return
	}
}

// WriteError 写入 OpenAI 风格的错误响应
func WriteError(w http.ResponseWriter, status int, errType, code, message string, logger *zap.Logger) {
	if logger != nil {
		logger.Error("API error",
			zap.Int("status", status),
			zap.String("type", errType),
			zap.String("code", code),
			zap.String("message", message),
		)
	}
	WriteJSON(w, status, api.ErrorResponse{
		Error: api.ErrorDetail{Message: message, Type: errType, Code: code},
	})
}

// WriteInvalidRequest 写入 400 错误
func WriteInvalidRequest(w http.ResponseWriter, message string, logger *zap.Logger) {
	WriteError(w, http.StatusBadRequest, "invalid_request_error", "", message, logger)
}

// WriteUpstreamError 把生成链路的错误映射为 HTTP 响应。
// 轮询超时 504，其余按错误自带的状态码，兜底 500。
func WriteUpstreamError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var timeoutErr *imagegen.TimeoutError
	if errors.As(err, &timeoutErr) {
		WriteError(w, http.StatusGatewayTimeout, "timeout_error", string(zaiwen.ErrGenerationTimeout), timeoutErr.Error(), logger)
		return
	}

	var zwErr *zaiwen.Error
	if errors.As(err, &zwErr) {
		status := zwErr.HTTPStatus
		if status == 0 {
			status = http.StatusInternalServerError
		}
		WriteError(w, status, "upstream_error", string(zwErr.Code), zwErr.Message, logger)
		return
	}

	WriteError(w, http.StatusInternalServerError, "internal_error", "", err.Error(), logger)
}

// DecodeJSONBody 解码 JSON 请求体。
// OpenAI 客户端会带各种扩展字段，这里不做严格字段校验。
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, dst interface{}, logger *zap.Logger) bool {
	if r.Body == nil {
		WriteInvalidRequest(w, "request body is empty", logger)
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		WriteInvalidRequest(w, "invalid JSON body", logger)
		return false
	}
	return true
}

// =============================================================================
// 📊 响应包装器（用于捕获状态码）
// =============================================================================

// ResponseWriter 包装 http.ResponseWriter 以捕获状态码
type ResponseWriter struct {
	http.ResponseWriter
	StatusCode int
	Written    bool
}

// NewResponseWriter 创建新的 ResponseWriter
func NewResponseWriter(w http.ResponseWriter) *ResponseWriter {
	return &ResponseWriter{
		ResponseWriter: w,
		StatusCode:     http.StatusOK,
	}
}

// WriteHeader 重写 WriteHeader 以捕获状态码
func (rw *ResponseWriter) WriteHeader(code int) {
	if !rw.Written {
		rw.StatusCode = code
		rw.Written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

// Write 重写 Write 以标记已写入
func (rw *ResponseWriter) Write(b []byte) (int, error) {
	if !rw.Written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// Flush 透传给底层 Flusher，SSE 需要
func (rw *ResponseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
