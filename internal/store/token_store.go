package store

import (
	"context"
	"time"

	"todopro/internal/model"

	"gorm.io/gorm"
)

// TokenStore 访问令牌表。
type TokenStore struct {
	db *gorm.DB
}

// Create 保存新签发的令牌记录。
func (s *TokenStore) Create(ctx context.Context, token *model.AccessToken) error {
	return s.db.WithContext(ctx).Create(token).Error
}

// FindByID 按 jti 查询令牌。
func (s *TokenStore) FindByID(ctx context.Context, id string) (*model.AccessToken, error) {
	var token model.AccessToken
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&token).Error; err != nil {
		return nil, notFound(err)
	}
	return &token, nil
}

// Delete 吊销单个令牌，不存在时返回 ErrNotFound。
func (s *TokenStore) Delete(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&model.AccessToken{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteForUser 吊销用户的全部令牌，返回删除数量。
func (s *TokenStore) DeleteForUser(ctx context.Context, userID uint) (int64, error) {
	res := s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&model.AccessToken{})
	return res.RowsAffected, res.Error
}

// Touch 更新最后使用时间。
func (s *TokenStore) Touch(ctx context.Context, id string, at time.Time) error {
	return s.db.WithContext(ctx).Model(&model.AccessToken{}).
		Where("id = ?", id).
		UpdateColumn("last_used_at", at).Error
}

// PruneExpired 删除 now 之前过期的令牌。
func (s *TokenStore) PruneExpired(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("expires_at < ?", now).Delete(&model.AccessToken{})
	return res.RowsAffected, res.Error
}
