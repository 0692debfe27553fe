package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"onlineshop/internal/core/cache"
	"onlineshop/internal/domain"
	"onlineshop/pkg/utils"
)

type UserOptions struct {
	// Cache is optional; nil disables the username lookup cache.
	Cache          *cache.Cache
	CacheTTL       time.Duration
	EnableOnSignup bool
	Policy         *PasswordPolicy
}

type UserService struct {
	store          domain.Store
	log            *zap.Logger
	cache          *cache.Cache
	cacheTTL       time.Duration
	enableOnSignup bool
	policy         PasswordPolicy
}

func NewUserService(store domain.Store, l *zap.Logger, opts UserOptions) *UserService {
	s := &UserService{
		store:          store,
		log:            l.Named("users"),
		cache:          opts.Cache,
		cacheTTL:       opts.CacheTTL,
		enableOnSignup: opts.EnableOnSignup,
		policy:         DefaultPasswordPolicy,
	}
	if opts.Policy != nil {
		s.policy = *opts.Policy
	}
	if s.cacheTTL <= 0 {
		s.cacheTTL = time.Minute
	}
	return s
}

func usernameKey(name string) string { return "user:username:" + name }

func (s *UserService) invalidate(ctx context.Context, usernames ...string) {
	if s.cache == nil {
		return
	}
	keys := make([]string, 0, len(usernames))
	for _, n := range usernames {
		keys = append(keys, usernameKey(n))
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		s.log.Warn("cache invalidate failed", zap.Strings("usernames", usernames), zap.Error(err))
	}
}

// FindByUsername returns (nil, nil) when no user has that name. The result
// may come from the cache and then carries no password hash.
func (s *UserService) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	if s.cache == nil {
		return s.store.Users().FindByUsername(ctx, username)
	}
	return cache.GetOrLoadJSON(s.cache, ctx, usernameKey(username), s.cacheTTL, func(ctx context.Context) (*domain.User, error) {
		return s.store.Users().FindByUsername(ctx, username)
	})
}

func (s *UserService) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.store.Users().FindByEmail(ctx, normalizeEmail(email))
}

func (s *UserService) FindByID(ctx context.Context, id string) (*domain.User, error) {
	return s.store.Users().FindByID(ctx, id)
}

func (s *UserService) CheckUsernameExists(ctx context.Context, username string) (bool, error) {
	return s.store.Users().ExistsByUsername(ctx, username)
}

func (s *UserService) CheckEmailExists(ctx context.Context, email string) (bool, error) {
	return s.store.Users().ExistsByEmail(ctx, normalizeEmail(email))
}

func (s *UserService) CheckPhoneNumberExists(ctx context.Context, phone string) (bool, error) {
	return s.store.Users().ExistsByPhone(ctx, phone)
}

// uniquenessMessages reports which of u's unique fields are already taken.
// self is the stored row being updated, nil for a new user; unchanged fields
// of self are not checked.
func (s *UserService) uniquenessMessages(ctx context.Context, u, self *domain.User) ([]string, error) {
	var out []string
	if self == nil && u.Username != "" {
		taken, err := s.CheckUsernameExists(ctx, u.Username)
		if err != nil {
			return nil, err
		}
		if taken {
			out = append(out, "username already exists")
		}
	}
	if u.Email != "" && (self == nil || self.Email != u.Email) {
		taken, err := s.CheckEmailExists(ctx, u.Email)
		if err != nil {
			return nil, err
		}
		if taken {
			out = append(out, "email already exists")
		}
	}
	if u.Phone != "" && (self == nil || self.Phone != u.Phone) {
		taken, err := s.CheckPhoneNumberExists(ctx, u.Phone)
		if err != nil {
			return nil, err
		}
		if taken {
			out = append(out, "phone number already exists")
		}
	}
	return out, nil
}

// CreateUser validates u, hashes its password and stores it with the given
// roles. Every problem found is reported in one *domain.ValidationError.
func (s *UserService) CreateUser(ctx context.Context, u *domain.User, roles ...domain.Role) (*domain.User, error) {
	normalize(u)
	msgs := checkIdentity(u)
	taken, err := s.uniquenessMessages(ctx, u, nil)
	if err != nil {
		return nil, fmt.Errorf("check uniqueness: %w", err)
	}
	msgs = append(msgs, taken...)
	msgs = append(msgs, CheckEqualityOfPasswords(u)...)
	msgs = append(msgs, s.policy.Check(u.Password)...)
	if err := domain.NewValidationError(msgs...); err != nil {
		return nil, err
	}

	hash, err := utils.HashPassword(u.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	nu := *u
	nu.ID = utils.NewID()
	nu.PasswordHash = hash
	nu.Password, nu.PasswordConfirmation = "", ""
	nu.Enabled = s.enableOnSignup
	nu.Roles = domain.NewRoleSet(roles...)

	err = s.store.WithinTx(ctx, func(tx domain.Store) error {
		return tx.Users().Create(ctx, &nu)
	})
	if errors.Is(err, domain.ErrDuplicate) {
		// 并发注册：唯一索引兜底
		return nil, s.duplicateError(ctx, &nu, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.invalidate(ctx, nu.Username)
	s.log.Info("user created", zap.String("id", nu.ID), zap.String("username", nu.Username), zap.Strings("roles", nu.Roles.Strings()))
	return &nu, nil
}

func (s *UserService) duplicateError(ctx context.Context, u, self *domain.User) error {
	msgs, err := s.uniquenessMessages(ctx, u, self)
	if err != nil || len(msgs) == 0 {
		return domain.NewValidationError("username, email or phone number already in use")
	}
	return domain.NewValidationError(msgs...)
}

// SaveUser inserts u when it has no id and updates its mutable columns
// otherwise. Roles and the stored password hash of an existing row are kept.
func (s *UserService) SaveUser(ctx context.Context, u *domain.User) (*domain.User, error) {
	normalize(u)
	repo := s.store.Users()
	if u.ID != "" {
		err := repo.Update(ctx, u)
		switch {
		case err == nil:
			s.invalidate(ctx, u.Username)
			return u, nil
		case errors.Is(err, domain.ErrDuplicate):
			self, _ := repo.FindByID(ctx, u.ID)
			return nil, s.duplicateError(ctx, u, self)
		case !errors.Is(err, domain.ErrUserNotFound):
			return nil, fmt.Errorf("update user: %w", err)
		}
	} else {
		u.ID = utils.NewID()
	}

	if u.PasswordHash == "" && u.Password != "" {
		hash, err := utils.HashPassword(u.Password)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		u.PasswordHash = hash
	}
	u.Password, u.PasswordConfirmation = "", ""
	if err := repo.Create(ctx, u); err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			return nil, s.duplicateError(ctx, u, nil)
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	s.invalidate(ctx, u.Username)
	return u, nil
}

func (s *UserService) Save(ctx context.Context, u *domain.User) error {
	_, err := s.SaveUser(ctx, u)
	return err
}

// UpdateInfo copies the profile of newUser onto the stored oldUser. Username
// and roles never change here.
func (s *UserService) UpdateInfo(ctx context.Context, oldUser, newUser *domain.User) error {
	cur, err := s.store.Users().FindByID(ctx, oldUser.ID)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	if cur == nil {
		return domain.ErrUserNotFound
	}
	upd := *newUser
	normalize(&upd)
	upd.Username = cur.Username

	msgs := checkIdentity(&upd)
	taken, err := s.uniquenessMessages(ctx, &upd, cur)
	if err != nil {
		return fmt.Errorf("check uniqueness: %w", err)
	}
	if err := domain.NewValidationError(append(msgs, taken...)...); err != nil {
		return err
	}

	before := *cur
	cur.CopyProfile(&upd)
	if err := s.store.Users().Update(ctx, cur); err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			return s.duplicateError(ctx, cur, &before)
		}
		return fmt.Errorf("update user: %w", err)
	}
	oldUser.CopyProfile(cur)
	s.invalidate(ctx, cur.Username)
	return nil
}

func (s *UserService) FindUserList(ctx context.Context) ([]domain.User, error) {
	return s.store.Users().List(ctx)
}

func (s *UserService) EnableUser(ctx context.Context, username string) error {
	return s.setEnabled(ctx, username, true)
}

func (s *UserService) DisableUser(ctx context.Context, username string) error {
	return s.setEnabled(ctx, username, false)
}

func (s *UserService) setEnabled(ctx context.Context, username string, enabled bool) error {
	found, err := s.store.Users().SetEnabled(ctx, username, enabled)
	if err != nil {
		return fmt.Errorf("set enabled: %w", err)
	}
	if !found {
		return domain.ErrUserNotFound
	}
	s.invalidate(ctx, username)
	action := "disable"
	if enabled {
		action = "enable"
	}
	accountStatusChanges.WithLabelValues(action).Inc()
	s.log.Info("account status changed", zap.String("username", username), zap.Bool("enabled", enabled))
	return nil
}

// Authenticate checks the password first so a wrong guess never reveals
// whether the account is disabled.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (*domain.User, error) {
	u, err := s.store.Users().FindByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if u == nil || !utils.CheckPassword(password, u.PasswordHash) {
		return nil, domain.ErrInvalidCredentials
	}
	if !u.Enabled {
		return nil, domain.ErrUserDisabled
	}
	return u, nil
}

// ChangeRoles is the only way to reassign a user's roles after creation.
func (s *UserService) ChangeRoles(ctx context.Context, username string, roles ...domain.Role) (*domain.User, error) {
	var bad []string
	for _, r := range roles {
		if !r.Valid() {
			bad = append(bad, fmt.Sprintf("unknown role %q", r))
		}
	}
	if err := domain.NewValidationError(bad...); err != nil {
		return nil, err
	}
	var out *domain.User
	err := s.store.WithinTx(ctx, func(tx domain.Store) error {
		u, err := tx.Users().FindByUsername(ctx, username)
		if err != nil {
			return err
		}
		if u == nil {
			return domain.ErrUserNotFound
		}
		u.Roles = domain.NewRoleSet(roles...)
		out = u
		return tx.Users().ReplaceRoles(ctx, u.ID, u.Roles)
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, username)
	s.log.Info("roles changed", zap.String("username", username), zap.Strings("roles", out.Roles.Strings()))
	return out, nil
}
