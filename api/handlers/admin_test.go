package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanekoo/zaiwen2api/api"
)

func TestAdminAccounts_AddListDelete(t *testing.T) {
	stack := newTestStack(t)

	// 批量导入
	rec := stack.do(t, postJSON(t, "/admin/accounts", api.AddAccountsRequest{
		Tokens: []string{"token-aaaaaaaaaaaa", "token-bbbbbbbbbbbb"},
	}))
	require.Equal(t, http.StatusOK, rec.Code)
	var addResp map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &addResp))
	assert.Equal(t, 2, addResp["added"])

	// 列表返回脱敏 token
	rec = stack.do(t, httptest.NewRequest(http.MethodGet, "/admin/accounts", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var listResp struct {
		Accounts []api.AccountView `json:"accounts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listResp))
	require.Len(t, listResp.Accounts, 2)
	for _, acct := range listResp.Accounts {
		assert.Equal(t, "active", acct.Status)
		assert.Contains(t, acct.Token, "...")
		assert.NotContains(t, acct.Token, "aaaaaaaaaaaa")
	}

	// 删除其中一个
	id := listResp.Accounts[0].ID
	rec = stack.do(t, httptest.NewRequest(http.MethodDelete, fmt.Sprintf("/admin/accounts/%d", id), nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	// 再删同一个 404
	rec = stack.do(t, httptest.NewRequest(http.MethodDelete, fmt.Sprintf("/admin/accounts/%d", id), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminAccounts_AddSingleToken(t *testing.T) {
	stack := newTestStack(t)

	rec := stack.do(t, postJSON(t, "/admin/accounts", api.AddAccountsRequest{Token: "tok-single"}))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = stack.do(t, httptest.NewRequest(http.MethodGet, "/admin/accounts", nil))
	var listResp struct {
		Accounts []api.AccountView `json:"accounts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listResp))
	assert.Len(t, listResp.Accounts, 1)
}

func TestAdminAccounts_AddEmpty(t *testing.T) {
	stack := newTestStack(t)
	rec := stack.do(t, postJSON(t, "/admin/accounts", api.AddAccountsRequest{}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminAccounts_DeleteInvalidID(t *testing.T) {
	stack := newTestStack(t)
	rec := stack.do(t, httptest.NewRequest(http.MethodDelete, "/admin/accounts/not-a-number", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminAccounts_Stats(t *testing.T) {
	stack := newTestStack(t, "tok-a", "tok-b")

	rec := stack.do(t, httptest.NewRequest(http.MethodGet, "/admin/accounts/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Stats map[string]int64 `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(2), resp.Stats["active"])
}
