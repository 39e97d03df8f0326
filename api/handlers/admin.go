package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/hanekoo/zaiwen2api/account"
	"github.com/hanekoo/zaiwen2api/api"
)

// =============================================================================
// 🔑 凭据池管理接口 Handler
// =============================================================================

// AdminHandler 暴露凭据池的运维操作。
// 列表里的 token 一律脱敏，完整凭据不出库。
type AdminHandler struct {
	pool   *account.Pool
	logger *zap.Logger
}

// NewAdminHandler 创建管理处理器
func NewAdminHandler(pool *account.Pool, logger *zap.Logger) *AdminHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminHandler{
		pool:   pool,
		logger: logger.With(zap.String("component", "admin_handler")),
	}
}

// HandleList 处理 GET /admin/accounts
func (h *AdminHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.pool.List(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "internal_error", "", err.Error(), h.logger)
		return
	}

	views := make([]api.AccountView, 0, len(accounts))
	for i := range accounts {
		views = append(views, api.AccountView{
			ID:         accounts[i].ID,
			Token:      accounts[i].MaskedToken(),
			Status:     string(accounts[i].Status),
			LastUsedAt: accounts[i].LastUsedAt.Format(time.RFC3339),
			CreatedAt:  accounts[i].CreatedAt.Format(time.RFC3339),
		})
	}
	WriteJSON(w, http.StatusOK, map[string]any{"accounts": views})
}

// HandleAdd 处理 POST /admin/accounts，支持单个与批量导入
func (h *AdminHandler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	var req api.AddAccountsRequest
	if !DecodeJSONBody(w, r, &req, h.logger) {
		return
	}

	tokens := req.Tokens
	if req.Token != "" {
		tokens = append(tokens, req.Token)
	}
	if len(tokens) == 0 {
		WriteInvalidRequest(w, "token or tokens is required", h.logger)
		return
	}

	added := 0
	for _, tok := range tokens {
		if tok == "" {
			continue
		}
		if _, err := h.pool.Insert(r.Context(), tok); err != nil {
			WriteError(w, http.StatusInternalServerError, "internal_error", "", err.Error(), h.logger)
			return
		}
		added++
	}

	h.logger.Info("accounts imported", zap.Int("count", added))
	WriteJSON(w, http.StatusOK, map[string]any{"added": added})
}

// HandleDelete 处理 DELETE /admin/accounts/{id}
func (h *AdminHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		WriteInvalidRequest(w, "invalid account id", h.logger)
		return
	}

	if err := h.pool.Delete(r.Context(), uint(id)); err != nil {
		if errors.Is(err, account.ErrAccountNotFound) {
			WriteError(w, http.StatusNotFound, "not_found_error", "", "account not found", h.logger)
			return
		}
		WriteError(w, http.StatusInternalServerError, "internal_error", "", err.Error(), h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"deleted": id})
}

// HandleStats 处理 GET /admin/accounts/stats
func (h *AdminHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.pool.Stats(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "internal_error", "", err.Error(), h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"stats": stats})
}
