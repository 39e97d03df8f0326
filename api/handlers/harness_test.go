package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/hanekoo/zaiwen2api/account"
	"github.com/hanekoo/zaiwen2api/zaiwen"
	"github.com/hanekoo/zaiwen2api/zaiwen/imagegen"
)

// testStack 一套完整的被测服务：模拟上游 + 真实转换链路 + 路由。
type testStack struct {
	pool     *account.Pool
	upstream *http.ServeMux
	router   http.Handler
}

func newTestStack(t *testing.T, tokens ...string) *testStack {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, account.Migrate(db))

	logger := zaptest.NewLogger(t)
	pool := account.NewPool(db, logger)
	for _, tok := range tokens {
		_, err := pool.Insert(context.Background(), tok)
		require.NoError(t, err)
	}

	upstream := http.NewServeMux()
	srv := httptest.NewServer(upstream)
	t.Cleanup(srv.Close)

	provider := zaiwen.NewProvider(zaiwen.Config{BaseURL: srv.URL, Timeout: 10 * time.Second}, pool, nil, logger)
	images := imagegen.NewImageWorkflow(imagegen.Config{
		BaseURL: srv.URL,
		// 指向本地不可达端口，确保测试不会真的外连七牛
		UploadURL:    "http://127.0.0.1:1/",
		PollInterval: 10 * time.Millisecond,
		PollTimeout:  2 * time.Second,
	}, pool, nil, logger)

	return &testStack{
		pool:     pool,
		upstream: upstream,
		router:   NewRouter(provider, images, pool, nil, logger),
	}
}

// serveChatFrames 让模拟上游对对话流返回给定的 SSE 帧。
func (s *testStack) serveChatFrames(frames ...string) {
	s.upstream.HandleFunc(zaiwen.MessageStreamPath, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, f := range frames {
			fmt.Fprintf(w, "data: %s\n\n", f)
			flusher.Flush()
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
	})
}

// serveDrawTask 让模拟上游接受绘图任务并在首次轮询即完成。
func (s *testStack) serveDrawTask(imageURL string) {
	s.upstream.HandleFunc(zaiwen.MessageStreamPath, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `data: {"data": {"draw_result": {"task_id": "task-1"}}}`+"\n\n")
	})
	s.upstream.HandleFunc(zaiwen.DrawTaskPath, func(w http.ResponseWriter, r *http.Request) {
		raw, _ := json.Marshal(map[string]any{
			"task_id": "task-1",
			"status":  "completed",
			"images":  []map[string]any{{"url": imageURL}},
		})
		json.NewEncoder(w).Encode(map[string]any{"code": 0, "msg": "成功", "data": json.RawMessage(raw)})
	})
}

func (s *testStack) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}
