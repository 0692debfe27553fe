package repo

import (
	"context"

	"gorm.io/gorm"

	"onlineshop/internal/domain"
	"onlineshop/internal/feature/user"
)

// Store hands out repositories bound to one *gorm.DB, which is either the
// pool or an open transaction.
type Store struct {
	db     *gorm.DB
	users  *UserRepo
	tokens *ResetTokenRepo
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, users: NewUserRepo(db), tokens: NewResetTokenRepo(db)}
}

var _ domain.Store = (*Store)(nil)

func (s *Store) Users() domain.UserRepository                     { return s.users }
func (s *Store) ResetTokens() domain.PasswordResetTokenRepository { return s.tokens }

func (s *Store) WithinTx(ctx context.Context, fn func(tx domain.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewStore(tx))
	})
}

// Migrate creates or updates the tables behind the store.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(user.Models()...)
}
