package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"onlineshop/internal/domain"
	"onlineshop/internal/feature/user"
)

type ResetTokenRepo struct{ db *gorm.DB }

func NewResetTokenRepo(db *gorm.DB) *ResetTokenRepo { return &ResetTokenRepo{db: db} }

var _ domain.PasswordResetTokenRepository = (*ResetTokenRepo)(nil)

func (r *ResetTokenRepo) Create(ctx context.Context, t *domain.PasswordResetToken) error {
	m := user.TokenFromDomain(t)
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(&m).Error; err != nil {
		return translate(err)
	}
	t.ID, t.CreatedAt = m.ID, m.CreatedAt
	return nil
}

func (r *ResetTokenRepo) FindByHash(ctx context.Context, hash string) (*domain.PasswordResetToken, error) {
	var m user.PasswordResetTokenModel
	err := r.db.WithContext(ctx).Where("token_hash = ?", hash).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m.ToDomain(), nil
}

func (r *ResetTokenRepo) ConsumeForUser(ctx context.Context, userID string, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&user.PasswordResetTokenModel{}).
		Where("user_id = ? AND consumed_at IS NULL", userID).
		Update("consumed_at", at)
	return res.RowsAffected, res.Error
}

func (r *ResetTokenRepo) DeleteStale(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at < ? OR consumed_at < ?", before, before).
		Delete(&user.PasswordResetTokenModel{})
	return res.RowsAffected, res.Error
}
