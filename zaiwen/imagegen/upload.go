package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hanekoo/zaiwen2api/zaiwen"
)

// AssetUploadPipeline 把参考图推到七牛并在上游登记为资产。
// 三步串行：取上传配置、直传对象存储、登记资产；任一步失败整体失败。
type AssetUploadPipeline struct {
	baseURL string
	// uploadURL 非空时覆盖按 region 推导的七牛入口，测试用
	uploadURL string
	client    *http.Client
	logger    *zap.Logger
}

func NewAssetUploadPipeline(baseURL, uploadURL string, client *http.Client, logger *zap.Logger) *AssetUploadPipeline {
	if baseURL == "" {
		baseURL = zaiwen.DefaultBaseURL
	}
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssetUploadPipeline{
		baseURL:   baseURL,
		uploadURL: uploadURL,
		client:    client,
		logger:    logger.With(zap.String("component", "asset_upload")),
	}
}

type uploadConfig struct {
	Token  string `json:"token"`
	Region string `json:"region"`
	Bucket string `json:"bucket"`
	Domain string `json:"domain"`
}

type apiEnvelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// Upload 完成一次参考图上传，返回可用于绘图请求的资产句柄。
func (p *AssetUploadPipeline) Upload(ctx context.Context, token string, data []byte, filename string) (*AssetHandle, error) {
	cfg, err := p.fetchConfig(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("fetch upload config: %w", err)
	}

	key, err := p.uploadToQiniu(ctx, cfg, data, filename)
	if err != nil {
		return nil, fmt.Errorf("qiniu upload: %w", err)
	}

	handle, err := p.registerAsset(ctx, token, filename, len(data), key)
	if err != nil {
		return nil, fmt.Errorf("register asset: %w", err)
	}

	p.logger.Info("参考图上传完成",
		zap.String("asset_id", handle.ID),
		zap.String("filename", filename),
		zap.Int("bytes", len(data)))
	return handle, nil
}

func (p *AssetUploadPipeline) fetchConfig(ctx context.Context, token string) (*uploadConfig, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+zaiwen.AssetConfigPath, nil)
	if err != nil {
		return nil, err
	}
	zaiwen.ApplyBaseHeaders(req, token)
	req.Header.Set("Accept", "application/json, text/plain, */*")

	resp, err := p.client.Do(req)
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
	var cfg uploadConfig
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &cfg); err != nil {
			return nil, err
		}
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("no upload token in config response")
	}
	if cfg.Region == "" {
		cfg.Region = "z2"
	}
	return &cfg, nil
}

func (p *AssetUploadPipeline) endpointFor(cfg *uploadConfig) string {
	if p.uploadURL != "" {
		return p.uploadURL
	}
	return fmt.Sprintf("https://upload-%s.qiniup.com/", cfg.Region)
}

// uploadToQiniu 以 multipart 直传，返回对象存储里的 key。
func (p *AssetUploadPipeline) uploadToQiniu(ctx context.Context, cfg *uploadConfig, data []byte, filename string) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := mw.WriteField("token", cfg.Token); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpointFor(cfg), &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(raw))
	}

	var result struct {
		Key string `json:"key"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	return result.Key, nil
}

func (p *AssetUploadPipeline) registerAsset(ctx context.Context, token, filename string, size int, key string) (*AssetHandle, error) {
	payload, err := json.Marshal(map[string]any{
		"name":      filename,
		"format":    mimeForFilename(filename),
		"size":      size,
		"url":       key,
		"thumbnail": key,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+zaiwen.AssetAddPath, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	zaiwen.ApplyBaseHeaders(req, token)
	req.Header.Set("Accept", "application/json, text/plain, */*")

	resp, err := p.client.Do(req)
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
	var asset struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &asset); err != nil {
			return nil, err
		}
	}
	if asset.ID == "" {
		return nil, fmt.Errorf("no asset id in registration response")
	}
	return &AssetHandle{ID: asset.ID, URL: asset.URL}, nil
}

// mimeForFilename 从扩展名推断 MIME 类型，缺省按 jpeg 处理。
func mimeForFilename(filename string) string {
	lower := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(lower, ".png"):
		return "image/png"
	case strings.HasSuffix(lower, ".webp"):
		return "image/webp"
	case strings.HasSuffix(lower, ".gif"):
		return "image/gif"
	default:
		return "image/jpeg"
	}
}
