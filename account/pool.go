package account

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrNoActiveAccount 池中没有可借用的 active 记录
	ErrNoActiveAccount = errors.New("no active account available")
	// ErrAccountNotFound 指定 token 不存在
	ErrAccountNotFound = errors.New("account not found")
)

// Pool 凭据池管理器。
//
// 所有写操作（Borrow / Rotate / Invalidate / Insert / Delete）都在一把
// 池级互斥锁下执行读-改-写。凭据数量很小、操作很短，粗粒度锁足够；
// 锁只覆盖登记簿操作，从不跨越后续的网络调用。
type Pool struct {
	mu     sync.Mutex
	db     *gorm.DB
	logger *zap.Logger
}

// NewPool 创建凭据池。
func NewPool(db *gorm.DB, logger *zap.Logger) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		db:     db,
		logger: logger.With(zap.String("component", "account_pool")),
	}
}

// Migrate 建表（幂等）。
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&Account{}); err != nil {
		return fmt.Errorf("migrate accounts: %w", err)
	}
	return nil
}

// Borrow 以 LRU 方式借出一个 active token：
// 选出 last_used_at 最小的记录（并列时按 ID 升序），立即刷新其使用时间。
// 选择与时间戳更新在同一临界区内完成，两个并发借用不会拿到同一条
// 未刷新时间戳的记录。
func (p *Pool) Borrow(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var acct Account
	err := p.db.WithContext(ctx).
		Where("status = ?", StatusActive).
		Order("last_used_at ASC, id ASC").
		First(&acct).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		p.logger.Error("no active tokens available in pool")
		return "", ErrNoActiveAccount
	}
	if err != nil {
		return "", fmt.Errorf("select account: %w", err)
	}

	now := time.Now()
	err = p.db.WithContext(ctx).Model(&Account{}).
		Where("id = ?", acct.ID).
		Update("last_used_at", now).Error
	if err != nil {
		return "", fmt.Errorf("touch account: %w", err)
	}

	p.logger.Debug("token borrowed",
		zap.String("token", acct.MaskedToken()),
		zap.Uint("id", acct.ID))
	return acct.Token, nil
}

// Rotate 处理后端下发的 token 轮换。
//
// oldToken == newToken 时为 no-op。newToken 在池中不存在时，就地改写
// oldToken 所在记录（保留使用历史）；newToken 已存在时，把 oldToken
// 的记录标记为 rotated，已有记录保持权威。重复调用是幂等的。
func (p *Pool) Rotate(ctx context.Context, oldToken, newToken string) error {
	if oldToken == newToken {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var count int64
	if err := p.db.WithContext(ctx).Model(&Account{}).
		Where("token = ?", newToken).
		Count(&count).Error; err != nil {
		return fmt.Errorf("check new token: %w", err)
	}

	if count == 0 {
		err := p.db.WithContext(ctx).Model(&Account{}).
			Where("token = ?", oldToken).
			Updates(map[string]any{
				"token":        newToken,
				"last_used_at": time.Now(),
			}).Error
		if err != nil {
			return fmt.Errorf("rotate token: %w", err)
		}
		p.logger.Info("token rotated",
			zap.String("old", MaskToken(oldToken)),
			zap.String("new", MaskToken(newToken)))
		return nil
	}

	// 新 token 已在池中：旧记录退役即可
	err := p.db.WithContext(ctx).Model(&Account{}).
		Where("token = ? AND status = ?", oldToken, StatusActive).
		Update("status", StatusRotated).Error
	if err != nil {
		return fmt.Errorf("mark rotated: %w", err)
	}
	p.logger.Info("new token already present, old marked rotated",
		zap.String("old", MaskToken(oldToken)))
	return nil
}

// Invalidate 将 token 标记为 invalid（上游 401/403 之后调用）。
// 该状态不会被核心逻辑自动恢复。
func (p *Pool) Invalidate(ctx context.Context, token string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	err := p.db.WithContext(ctx).Model(&Account{}).
		Where("token = ?", token).
		Update("status", StatusInvalid).Error
	if err != nil {
		return fmt.Errorf("invalidate token: %w", err)
	}

	var remaining int64
	p.db.WithContext(ctx).Model(&Account{}).
		Where("status = ?", StatusActive).
		Count(&remaining)
	p.logger.Warn("token invalidated",
		zap.String("token", MaskToken(token)),
		zap.Int64("remaining_active", remaining))
	return nil
}

// Stats 按状态统计记录数。只读快照，依赖存储自身一致性即可。
func (p *Pool) Stats(ctx context.Context) (map[string]int64, error) {
	type row struct {
		Status string
		Count  int64
	}
	var rows []row
	err := p.db.WithContext(ctx).Model(&Account{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}

	stats := make(map[string]int64, len(rows))
	for _, r := range rows {
		stats[r.Status] = r.Count
	}
	return stats, nil
}

// Insert 添加单个 token（运维接口）。token 已存在时直接返回现有记录。
func (p *Pool) Insert(ctx context.Context, token string) (*Account, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.New("empty token")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var existing Account
	err := p.db.WithContext(ctx).Where("token = ?", token).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("lookup token: %w", err)
	}

	acct := Account{Token: token, Status: StatusActive}
	if err := p.db.WithContext(ctx).Create(&acct).Error; err != nil {
		return nil, fmt.Errorf("insert token: %w", err)
	}
	p.logger.Info("token inserted", zap.String("token", acct.MaskedToken()))
	return &acct, nil
}

// List 返回全部记录（运维接口）。
func (p *Pool) List(ctx context.Context) ([]Account, error) {
	var accounts []Account
	err := p.db.WithContext(ctx).Order("id ASC").Find(&accounts).Error
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return accounts, nil
}

// Delete 按 ID 删除记录（运维接口，核心逻辑从不调用）。
func (p *Pool) Delete(ctx context.Context, id uint) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	res := p.db.WithContext(ctx).Delete(&Account{}, id)
	if res.Error != nil {
		return fmt.Errorf("delete account: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	p.logger.Info("account deleted", zap.Uint("id", id))
	return nil
}

// ImportFile 从文本文件批量导入 token，每行一个，按 token 值
// insert-if-absent，可重复执行。文件不存在不算错误。
func (p *Pool) ImportFile(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			p.logger.Warn("token file not found, skipping import", zap.String("path", path))
			return 0, nil
		}
		return 0, fmt.Errorf("open token file: %w", err)
	}
	defer f.Close()

	imported := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		token := strings.TrimSpace(scanner.Text())
		if token == "" {
			continue
		}

		var count int64
		if err := p.db.WithContext(ctx).Model(&Account{}).
			Where("token = ?", token).
			Count(&count).Error; err != nil {
			return imported, fmt.Errorf("check token: %w", err)
		}
		if count > 0 {
			continue
		}
		acct := Account{Token: token, Status: StatusActive}
		if err := p.db.WithContext(ctx).Create(&acct).Error; err != nil {
			p.logger.Error("failed to import token",
				zap.String("token", MaskToken(token)), zap.Error(err))
			continue
		}
		imported++
	}
	if err := scanner.Err(); err != nil {
		return imported, fmt.Errorf("read token file: %w", err)
	}

	if imported > 0 {
		p.logger.Info("tokens imported",
			zap.Int("count", imported), zap.String("path", path))
	}
	return imported, nil
}
