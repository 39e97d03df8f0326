package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/hanekoo/zaiwen2api/account"
	"github.com/hanekoo/zaiwen2api/internal/metrics"
	"github.com/hanekoo/zaiwen2api/zaiwen"
	"github.com/hanekoo/zaiwen2api/zaiwen/imagegen"
)

// NewRouter 组装全部路由与指标中间件。
func NewRouter(provider *zaiwen.Provider, images *imagegen.ImageWorkflow, pool *account.Pool, collector *metrics.Collector, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	chat := NewChatHandler(provider, images, logger)
	imgs := NewImagesHandler(images, logger)
	models := NewModelsHandler(logger)
	admin := NewAdminHandler(pool, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", chat.HandleCompletions)
	mux.HandleFunc("POST /v1/images/generations", imgs.HandleGenerations)
	mux.HandleFunc("POST /v1/images/edits", imgs.HandleEdits)
	mux.HandleFunc("POST /v1/images/edits/upload", imgs.HandleEditsUpload)
	mux.HandleFunc("GET /v1/models", models.HandleList)

	mux.HandleFunc("GET /admin/accounts", admin.HandleList)
	mux.HandleFunc("POST /admin/accounts", admin.HandleAdd)
	mux.HandleFunc("DELETE /admin/accounts/{id}", admin.HandleDelete)
	mux.HandleFunc("GET /admin/accounts/stats", admin.HandleStats)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return withMetrics(mux, collector, logger)
}

// withMetrics 记录每个请求的状态码与耗时。
func withMetrics(next http.Handler, collector *metrics.Collector, logger *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := NewResponseWriter(w)
		start := time.Now()
		next.ServeHTTP(rw, r)
		duration := time.Since(start)

		collector.RecordHTTPRequest(r.Method, r.URL.Path, rw.StatusCode, duration)
		logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rw.StatusCode),
			zap.Duration("duration", duration))
	})
}
