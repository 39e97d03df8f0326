package handlers

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hanekoo/zaiwen2api/api"
	"github.com/hanekoo/zaiwen2api/zaiwen/imagegen"
)

// 参考图上传的体积上限
const maxUploadBytes = 20 << 20

// 单请求最多并发提交的绘图任务数
const maxImagesPerRequest = 4

// =============================================================================
// 🎨 图像接口 Handler
// =============================================================================

// ImagesHandler 处理文生图与图生图端点
type ImagesHandler struct {
	images *imagegen.ImageWorkflow
	logger *zap.Logger
}

// NewImagesHandler 创建图像处理器
func NewImagesHandler(images *imagegen.ImageWorkflow, logger *zap.Logger) *ImagesHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImagesHandler{
		images: images,
		logger: logger.With(zap.String("component", "images_handler")),
	}
}

// HandleGenerations 处理 POST /v1/images/generations（文生图）
func (h *ImagesHandler) HandleGenerations(w http.ResponseWriter, r *http.Request) {
	var req api.ImageGenerationRequest
	if !DecodeJSONBody(w, r, &req, h.logger) {
		return
	}
	if req.Prompt == "" {
		WriteInvalidRequest(w, "prompt is required", h.logger)
		return
	}
	if req.Model == "" {
		req.Model = imagegen.DefaultModel
	}

	h.logger.Info("image generation request",
		zap.String("model", req.Model),
		zap.String("size", req.Size))

	result, err := h.generateBatch(r.Context(), req.N, imagegen.Request{
		Prompt: req.Prompt,
		Model:  req.Model,
		Size:   req.Size,
	})
	if err != nil {
		WriteUpstreamError(w, err, h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

// generateBatch 按 n 并发提交绘图任务并合并结果。n<=1 时退化为单次调用。
func (h *ImagesHandler) generateBatch(ctx context.Context, n int, req imagegen.Request) (*imagegen.Result, error) {
	if n <= 1 {
		return h.images.Generate(ctx, req)
	}
	if n > maxImagesPerRequest {
		n = maxImagesPerRequest
	}

	results := make([]*imagegen.Result, n)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			res, err := h.images.Generate(gctx, req)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := &imagegen.Result{Created: results[0].Created}
	for _, res := range results {
		merged.Data = append(merged.Data, res.Data...)
	}
	return merged, nil
}

// HandleEdits 处理 POST /v1/images/edits（图生图，base64 参考图）
func (h *ImagesHandler) HandleEdits(w http.ResponseWriter, r *http.Request) {
	var req api.ImageEditRequest
	if !DecodeJSONBody(w, r, &req, h.logger) {
		return
	}
	if req.Prompt == "" {
		WriteInvalidRequest(w, "prompt is required", h.logger)
		return
	}
	if req.Image == "" {
		WriteInvalidRequest(w, "image is required", h.logger)
		return
	}
	if req.Model == "" {
		req.Model = imagegen.DefaultModel
	}

	// 同时接受裸 base64 与 data URL 两种形式
	raw := req.Image
	if idx := strings.Index(raw, ";base64,"); strings.HasPrefix(raw, "data:") && idx >= 0 {
		raw = raw[idx+len(";base64,"):]
	}
	image, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		WriteInvalidRequest(w, "image is not valid base64", h.logger)
		return
	}

	result, err := h.generateBatch(r.Context(), req.N, imagegen.Request{
		Prompt:        req.Prompt,
		Model:         req.Model,
		Size:          req.Size,
		Reference:     image,
		ReferenceName: "reference.jpg",
	})
	if err != nil {
		WriteUpstreamError(w, err, h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

// HandleEditsUpload 处理 POST /v1/images/edits/upload（图生图，multipart 文件）
func (h *ImagesHandler) HandleEditsUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		WriteInvalidRequest(w, "invalid multipart form", h.logger)
		return
	}

	prompt := r.FormValue("prompt")
	if prompt == "" {
		WriteInvalidRequest(w, "prompt is required", h.logger)
		return
	}
	model := r.FormValue("model")
	if model == "" {
		model = imagegen.DefaultModel
	}
	size := r.FormValue("size")
	if size == "" {
		size = "1024x1024"
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		WriteInvalidRequest(w, "image file is required", h.logger)
		return
	}
	defer file.Close()

	image, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		WriteInvalidRequest(w, "failed to read image file", h.logger)
		return
	}
	filename := header.Filename
	if filename == "" {
		filename = "reference.jpg"
	}

	h.logger.Info("image edit upload",
		zap.String("model", model),
		zap.String("filename", filename),
		zap.Int("bytes", len(image)))

	result, err := h.images.Generate(r.Context(), imagegen.Request{
		Prompt:        prompt,
		Model:         model,
		Size:          size,
		Reference:     image,
		ReferenceName: filename,
	})
	if err != nil {
		WriteUpstreamError(w, err, h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}
