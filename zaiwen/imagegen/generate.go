package imagegen

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hanekoo/zaiwen2api/account"
	"github.com/hanekoo/zaiwen2api/internal/metrics"
	"github.com/hanekoo/zaiwen2api/zaiwen"
)

// Config 聚合图像链路的可调参数。
type Config struct {
	BaseURL      string
	PollInterval time.Duration
	PollTimeout  time.Duration
	// UploadURL 覆盖按 region 推导的七牛入口，测试用
	UploadURL string
}

// Request 描述一次图像生成请求。
type Request struct {
	Prompt string
	Model  string
	Size   string
	// Reference 非空时走图生图，先上传再提交
	Reference     []byte
	ReferenceName string
}

// GeneratedImage 对应 OpenAI images 响应里的一条 data。
type GeneratedImage struct {
	URL           string `json:"url"`
	RevisedPrompt string `json:"revised_prompt,omitempty"`
}

// Result 是 OpenAI 形状的图像生成结果。
type Result struct {
	Created int64            `json:"created"`
	Data    []GeneratedImage `json:"data"`
}

// ImageWorkflow 串起借凭据、传参考图、提交任务、轮询取图四步。
// 一次生成只借一个凭据，四步共用。
type ImageWorkflow struct {
	cfg     Config
	pool    *account.Pool
	uploads *AssetUploadPipeline
	poller  *GenerationPoller
	client  *http.Client
	logger  *zap.Logger
	metrics *metrics.Collector
}

func NewImageWorkflow(cfg Config, pool *account.Pool, collector *metrics.Collector, logger *zap.Logger) *ImageWorkflow {
	if cfg.BaseURL == "" {
		cfg.BaseURL = zaiwen.DefaultBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client := &http.Client{Timeout: 60 * time.Second}
	return &ImageWorkflow{
		cfg:     cfg,
		pool:    pool,
		uploads: NewAssetUploadPipeline(cfg.BaseURL, cfg.UploadURL, client, logger),
		poller:  NewGenerationPoller(cfg.BaseURL, cfg.PollInterval, cfg.PollTimeout, client, collector, logger),
		client:  client,
		logger:  logger.With(zap.String("component", "image_workflow")),
		metrics: collector,
	}
}

// Generate 执行一次完整的图像生成，返回 OpenAI 形状的结果。
func (w *ImageWorkflow) Generate(ctx context.Context, req Request) (*Result, error) {
	baseModel, ratio := ParseModelRatio(req.Model)
	model := VendorModel(baseModel)
	if ratio == DefaultRatio && req.Size != "" {
		ratio = SizeToRatio(req.Size)
	}

	token, err := w.pool.Borrow(ctx)
	if err != nil {
		if errors.Is(err, account.ErrNoActiveAccount) {
			return nil, &zaiwen.Error{
				Code:       zaiwen.ErrNoCredential,
				Message:    "no active credential available",
				HTTPStatus: http.StatusServiceUnavailable,
				Retryable:  true,
			}
		}
		return nil, fmt.Errorf("borrow credential: %w", err)
	}

	w.logger.Info("提交图像生成",
		zap.String("model", model),
		zap.String("ratio", ratio),
		zap.Bool("reference", len(req.Reference) > 0),
		zap.String("token", account.MaskToken(token)))

	drawCfg := map[string]any{"ratio": ratio}
	if len(req.Reference) > 0 {
		name := req.ReferenceName
		if name == "" {
			name = "reference.jpg"
		}
		handle, err := w.uploads.Upload(ctx, token, req.Reference, name)
		if err != nil {
			return nil, fmt.Errorf("upload reference image: %w", err)
		}
		drawCfg["original_image"] = map[string]any{
			"asset":  handle.ID,
			"weight": ReferenceWeight,
		}
	}

	taskID, err := w.submitDraw(ctx, token, req.Prompt, model, drawCfg)
	if err != nil {
		return nil, err
	}

	result, err := w.poller.PollTask(ctx, taskID, token)
	if err != nil {
		return nil, err
	}

	images := make([]GeneratedImage, 0, len(result.Images))
	for _, img := range result.Images {
		url := img.URL
		if url == "" {
			url = img.Thumbnail
		}
		if url != "" {
			images = append(images, GeneratedImage{URL: url, RevisedPrompt: req.Prompt})
		}
	}
	if len(images) == 0 {
		w.logger.Warn("任务完成但没有图像地址", zap.String("task_id", taskID))
	}
	return &Result{Created: time.Now().Unix(), Data: images}, nil
}

// submitDraw 提交绘图任务并从流式响应里取出 task_id。
func (w *ImageWorkflow) submitDraw(ctx context.Context, token, prompt, model string, drawCfg map[string]any) (string, error) {
	payload, err := json.Marshal(zaiwen.BuildMessagePayload(prompt, model, "draw", false, drawCfg))
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.BaseURL+zaiwen.MessageStreamPath, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	zaiwen.ApplyBaseHeaders(req, token)

	start := time.Now()
	resp, err := w.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("submit draw job: %w", err)
	}
	defer resp.Body.Close()
	w.metrics.RecordUpstreamRequest(zaiwen.MessageStreamPath, resp.StatusCode, time.Since(start))

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			if invErr := w.pool.Invalidate(ctx, token); invErr != nil {
				w.logger.Warn("作废凭据失败", zap.Error(invErr))
			}
			return "", &zaiwen.Error{
				Code:       zaiwen.ErrUpstreamRejected,
				Message:    fmt.Sprintf("upstream rejected credential with status %d", resp.StatusCode),
				HTTPStatus: http.StatusBadGateway,
				Retryable:  true,
			}
		}
		return "", &zaiwen.Error{
			Code:       zaiwen.ErrUpstreamError,
			Message:    fmt.Sprintf("draw submission returned status %d", resp.StatusCode),
			HTTPStatus: http.StatusBadGateway,
		}
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		raw := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if raw == "" || raw == "[DONE]" {
			continue
		}
		var frame struct {
			Data struct {
				DrawResult struct {
					TaskID string `json:"task_id"`
				} `json:"draw_result"`
			} `json:"data"`
		}
		if err := json.Unmarshal([]byte(raw), &frame); err != nil {
			continue
		}
		if frame.Data.DrawResult.TaskID != "" {
			return frame.Data.DrawResult.TaskID, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read draw submission stream: %w", err)
	}
	return "", &zaiwen.Error{
		Code:       zaiwen.ErrUpstreamError,
		Message:    "no task_id in draw submission response",
		HTTPStatus: http.StatusBadGateway,
	}
}
