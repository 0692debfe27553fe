package user

import (
	"time"

	"onlineshop/internal/domain"
)

type UserModel struct {
	ID        string  `gorm:"primaryKey;type:varchar(36)"`
	Username  string  `gorm:"uniqueIndex;size:64;not null"`
	Email     string  `gorm:"uniqueIndex;size:191;not null"`
	FirstName string  `gorm:"size:64"`
	LastName  string  `gorm:"size:64"`
	Address   string  `gorm:"size:191"`
	City      string  `gorm:"size:64"`
	Postcode  string  `gorm:"size:16"`
	Phone     *string `gorm:"uniqueIndex;size:32"` // NULL when empty so the index only covers real numbers

	PasswordHash string `gorm:"size:100;not null"`
	Enabled      bool   `gorm:"not null;default:false"`

	Roles []UserRoleModel `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (UserModel) TableName() string { return "users" }

type UserRoleModel struct {
	ID     uint   `gorm:"primaryKey"`
	UserID string `gorm:"type:varchar(36);not null;uniqueIndex:uniq_user_role"`
	Role   string `gorm:"size:32;not null;uniqueIndex:uniq_user_role"`
}

func (UserRoleModel) TableName() string { return "user_roles" }

type PasswordResetTokenModel struct {
	ID         uint       `gorm:"primaryKey"`
	UserID     string     `gorm:"type:varchar(36);not null;index"`
	TokenHash  string     `gorm:"size:64;uniqueIndex;not null"`
	ExpiresAt  time.Time  `gorm:"not null;index"`
	ConsumedAt *time.Time `gorm:"index"`
	CreatedAt  time.Time  `gorm:"autoCreateTime"`

	User UserModel `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}

func (PasswordResetTokenModel) TableName() string { return "password_reset_tokens" }

// Models lists everything AutoMigrate has to create, parents first.
func Models() []any {
	return []any{&UserModel{}, &UserRoleModel{}, &PasswordResetTokenModel{}}
}

func FromDomain(u *domain.User) UserModel {
	m := UserModel{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		Address:      u.Address,
		City:         u.City,
		Postcode:     u.Postcode,
		Phone:        nullable(u.Phone),
		PasswordHash: u.PasswordHash,
		Enabled:      u.Enabled,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
	m.Roles = RoleModels(u.ID, u.Roles)
	return m
}

func RoleModels(userID string, roles domain.RoleSet) []UserRoleModel {
	out := make([]UserRoleModel, 0, roles.Len())
	for _, r := range roles.Slice() {
		out = append(out, UserRoleModel{UserID: userID, Role: string(r)})
	}
	return out
}

func (m *UserModel) ToDomain() *domain.User {
	roles := make([]domain.Role, 0, len(m.Roles))
	for _, r := range m.Roles {
		roles = append(roles, domain.Role(r.Role))
	}
	u := &domain.User{
		ID:           m.ID,
		Username:     m.Username,
		Email:        m.Email,
		FirstName:    m.FirstName,
		LastName:     m.LastName,
		Address:      m.Address,
		City:         m.City,
		Postcode:     m.Postcode,
		PasswordHash: m.PasswordHash,
		Enabled:      m.Enabled,
		Roles:        domain.NewRoleSet(roles...),
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
	if m.Phone != nil {
		u.Phone = *m.Phone
	}
	return u
}

func TokenFromDomain(t *domain.PasswordResetToken) PasswordResetTokenModel {
	return PasswordResetTokenModel{
		ID:         t.ID,
		UserID:     t.UserID,
		TokenHash:  t.TokenHash,
		ExpiresAt:  t.ExpiresAt,
		ConsumedAt: t.ConsumedAt,
		CreatedAt:  t.CreatedAt,
	}
}

func (m *PasswordResetTokenModel) ToDomain() *domain.PasswordResetToken {
	return &domain.PasswordResetToken{
		ID:         m.ID,
		UserID:     m.UserID,
		TokenHash:  m.TokenHash,
		ExpiresAt:  m.ExpiresAt,
		ConsumedAt: m.ConsumedAt,
		CreatedAt:  m.CreatedAt,
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
