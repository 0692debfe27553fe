package domain

import (
	"context"
	"time"
)

type TokenStatus string

const (
	TokenValid   TokenStatus = "valid"
	TokenInvalid TokenStatus = "invalid"
	TokenExpired TokenStatus = "expired"
)

// PasswordResetToken only ever holds the hash of the token mailed to the user.
type PasswordResetToken struct {
	ID         uint
	UserID     string
	TokenHash  string
	ExpiresAt  time.Time
	ConsumedAt *time.Time
	CreatedAt  time.Time
}

func (t *PasswordResetToken) Consumed() bool { return t.ConsumedAt != nil }

func (t *PasswordResetToken) ExpiredAt(now time.Time) bool { return !now.Before(t.ExpiresAt) }

type PasswordResetTokenRepository interface {
	Create(ctx context.Context, t *PasswordResetToken) error
	// FindByHash returns (nil, nil) when no row matches.
	FindByHash(ctx context.Context, hash string) (*PasswordResetToken, error)
	// ConsumeForUser marks every unconsumed token of the user as consumed at `at`.
	ConsumeForUser(ctx context.Context, userID string, at time.Time) (int64, error)
	// DeleteStale removes tokens that expired or were consumed before `before`.
	DeleteStale(ctx context.Context, before time.Time) (int64, error)
}
