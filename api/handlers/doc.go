// Package handlers 实现 OpenAI 兼容端点与凭据池管理端点的 HTTP 处理器。
package handlers
