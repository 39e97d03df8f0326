package imagegen

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/hanekoo/zaiwen2api/internal/metrics"
	"github.com/hanekoo/zaiwen2api/zaiwen"
)

const (
	DefaultPollInterval = 2 * time.Second
	DefaultPollTimeout  = 180 * time.Second
)

// TimeoutError 表示绘图任务在硬性截止时间内未到达终态。
type TimeoutError struct {
	TaskID  string
	Elapsed time.Duration
	Polls   int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("task %s timed out after %.1fs (%d polls)", e.TaskID, e.Elapsed.Seconds(), e.Polls)
}

// TaskImage 是轮询结果里的一张生成图。
type TaskImage struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	Thumbnail string `json:"thumbnail"`
}

// TaskResult 是任务到达终态时上游返回的 data 对象。
type TaskResult struct {
	TaskID string      `json:"task_id"`
	Status string      `json:"status"`
	Error  string      `json:"error"`
	Images []TaskImage `json:"images"`
}

// GenerationPoller 周期性查询绘图任务状态直到终态或超时。
// 瞬时失败（网络错误、非 200、响应不可解析）只记日志并继续，
// 终态失败与超时才向调用方报错。
type GenerationPoller struct {
	baseURL  string
	interval time.Duration
	timeout  time.Duration
	client   *http.Client
	logger   *zap.Logger
	metrics  *metrics.Collector
}

func NewGenerationPoller(baseURL string, interval, timeout time.Duration, client *http.Client, collector *metrics.Collector, logger *zap.Logger) *GenerationPoller {
	if baseURL == "" {
		baseURL = zaiwen.DefaultBaseURL
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if timeout <= 0 {
		timeout = DefaultPollTimeout
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GenerationPoller{
		baseURL:  baseURL,
		interval: interval,
		timeout:  timeout,
		client:   client,
		logger:   logger.With(zap.String("component", "draw_poller")),
		metrics:  collector,
	}
}

// PollTask 阻塞直到任务完成、失败、超时或 ctx 取消。
func (g *GenerationPoller) PollTask(ctx context.Context, taskID, token string) (*TaskResult, error) {
	start := time.Now()
	deadline := start.Add(g.timeout)
	polls := 0

	g.logger.Info("开始轮询绘图任务", zap.String("task_id", taskID))

	for time.Now().Before(deadline) {
		polls++
		g.metrics.RecordPollRound()

		result, err := g.pollOnce(ctx, taskID, token)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			g.logger.Warn("轮询失败，继续重试",
				zap.String("task_id", taskID),
				zap.Int("polls", polls),
				zap.Error(err))
		} else {
			switch result.Status {
			case "completed", "success":
				g.logger.Info("绘图任务完成",
					zap.String("task_id", taskID),
					zap.Duration("elapsed", time.Since(start)),
					zap.Int("polls", polls))
				return result, nil
			case "failed", "error":
				msg := result.Error
				if msg == "" {
					msg = "unknown error"
				}
				return nil, &zaiwen.Error{
					Code:       zaiwen.ErrGenerationFailed,
					Message:    fmt.Sprintf("image generation failed: %s", msg),
					HTTPStatus: http.StatusBadGateway,
				}
			default:
				if polls%5 == 0 {
					g.logger.Info("绘图任务仍在处理",
						zap.String("task_id", taskID),
						zap.Int("polls", polls))
				}
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(g.interval):
		}
	}

	return nil, &TimeoutError{TaskID: taskID, Elapsed: time.Since(start), Polls: polls}
}

func (g *GenerationPoller) pollOnce(ctx context.Context, taskID, token string) (*TaskResult, error) {
	endpoint := g.baseURL + zaiwen.DrawTaskPath + "?task=" + url.QueryEscape(taskID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	zaiwen.ApplyBaseHeaders(req, token)
	req.Header.Set("Accept", "application/json, text/plain, */*")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var env apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, err
	}
	var result TaskResult
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &result); err != nil {
			return nil, err
		}
	}
	if result.Error == "" && env.Msg != "" && (result.Status == "failed" || result.Status == "error") {
		result.Error = env.Msg
	}
	return &result, nil
}
