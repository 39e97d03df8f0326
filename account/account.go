package account

import (
	"time"
)

// AccountStatus 表示账号凭据的生命周期状态
type AccountStatus string

const (
	StatusActive    AccountStatus = "active"    // 可被借用
	StatusExhausted AccountStatus = "exhausted" // 额度耗尽（仅由运维人员设置）
	StatusInvalid   AccountStatus = "invalid"   // 上游 401/403 拒绝
	StatusRotated   AccountStatus = "rotated"   // 已被新 token 取代
)

// Account 一个后端账号的凭据记录。
// Token 在全表范围内唯一；核心逻辑从不删除记录，删除只发生在运维接口。
type Account struct {
	ID         uint          `gorm:"primaryKey" json:"id"`
	Token      string        `gorm:"size:500;uniqueIndex;not null" json:"token"`
	Status     AccountStatus `gorm:"size:20;default:active;index" json:"status"`
	LastUsedAt time.Time     `json:"last_used_at"`
	CreatedAt  time.Time     `json:"created_at"`
}

func (Account) TableName() string {
	return "zw_accounts"
}

// MaskedToken 返回脱敏后的 token，仅用于日志输出。
func (a *Account) MaskedToken() string {
	return MaskToken(a.Token)
}

// MaskToken 截断 token 至 8 个字符，避免完整凭据进入日志。
func MaskToken(token string) string {
	if len(token) <= 8 {
		return token
	}
	return token[:8] + "..."
}
