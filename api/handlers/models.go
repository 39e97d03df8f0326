package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/hanekoo/zaiwen2api/zaiwen"
)

// ModelsHandler 处理 GET /v1/models，返回合成的模型目录。
type ModelsHandler struct {
	logger *zap.Logger
}

// NewModelsHandler 创建模型目录处理器
func NewModelsHandler(logger *zap.Logger) *ModelsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ModelsHandler{logger: logger.With(zap.String("component", "models_handler"))}
}

// HandleList 返回全部模型变体
func (h *ModelsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{
		"object": "list",
		"data":   zaiwen.ListModels(),
	})
}
