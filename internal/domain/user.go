package domain

import (
	"context"
	"encoding/json"
	"sort"
	"time"
)

type Role string

const (
	RoleUser  Role = "ROLE_USER"
	RoleAdmin Role = "ROLE_ADMIN"
)

func (r Role) Valid() bool { return r == RoleUser || r == RoleAdmin }

// RoleSet is fixed at construction; the zero value is the empty set.
type RoleSet struct{ roles []Role }

func NewRoleSet(roles ...Role) RoleSet {
	seen := make(map[Role]struct{}, len(roles))
	out := make([]Role, 0, len(roles))
	for _, r := range roles {
		if r == "" {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return RoleSet{roles: out}
}

func (s RoleSet) Has(r Role) bool {
	for _, x := range s.roles {
		if x == r {
			return true
		}
	}
	return false
}

func (s RoleSet) Len() int { return len(s.roles) }

// Slice returns a copy.
func (s RoleSet) Slice() []Role { return append([]Role(nil), s.roles...) }

func (s RoleSet) Strings() []string {
	out := make([]string, len(s.roles))
	for i, r := range s.roles {
		out[i] = string(r)
	}
	return out
}

func (s RoleSet) MarshalJSON() ([]byte, error) { return json.Marshal(s.Strings()) }

func (s *RoleSet) UnmarshalJSON(b []byte) error {
	var raw []Role
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*s = NewRoleSet(raw...)
	return nil
}

type User struct {
	ID        string  `json:"id"`
	Username  string  `json:"username"`
	Email     string  `json:"email"`
	FirstName string  `json:"firstName"`
	LastName  string  `json:"lastName"`
	Address   string  `json:"address"`
	City      string  `json:"city"`
	Postcode  string  `json:"postcode"`
	Phone     string  `json:"phone"`
	Enabled   bool    `json:"enabled"`
	Roles     RoleSet `json:"roles"`

	PasswordHash string `json:"-"`
	// Input only, never persisted.
	Password             string `json:"-"`
	PasswordConfirmation string `json:"-"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CopyProfile copies every field an ordinary profile update may change.
// Username and roles stay with u.
func (u *User) CopyProfile(from *User) {
	u.Email = from.Email
	u.FirstName = from.FirstName
	u.LastName = from.LastName
	u.Address = from.Address
	u.City = from.City
	u.Postcode = from.Postcode
	u.Phone = from.Phone
}

// UserRepository returns (nil, nil) from finders when no row matches.
type UserRepository interface {
	Create(ctx context.Context, u *User) error
	FindByID(ctx context.Context, id string) (*User, error)
	FindByUsername(ctx context.Context, username string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	ExistsByPhone(ctx context.Context, phone string) (bool, error)
	List(ctx context.Context) ([]User, error)
	// Update writes the mutable columns of an existing row; roles and the
	// password hash are left alone.
	Update(ctx context.Context, u *User) error
	UpdatePassword(ctx context.Context, id, hash string) error
	SetEnabled(ctx context.Context, username string, enabled bool) (bool, error)
	ReplaceRoles(ctx context.Context, id string, roles RoleSet) error
}

// Store groups the repositories that must change together.
type Store interface {
	Users() UserRepository
	ResetTokens() PasswordResetTokenRepository
	WithinTx(ctx context.Context, fn func(tx Store) error) error
}
