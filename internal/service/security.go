package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"onlineshop/internal/core/mail"
	"onlineshop/internal/domain"
	"onlineshop/pkg/utils"
)

const DefaultResetTokenTTL = 24 * time.Hour

var errTokenGone = errors.New("reset token already used")

type SecurityOptions struct {
	AppName   string
	BaseURL   string        // reset link: BaseURL + "/user/changePassword?id=..&token=.."
	TokenTTL  time.Duration // default 24h
	Retention time.Duration // how long used/expired tokens are kept before purge
	Mailer    mail.Sender
	Templates *mail.Templates
	Now       func() time.Time
}

// SecurityService owns the password-reset-token lifecycle:
// issued -> consumed | expired.
type SecurityService struct {
	store     domain.Store
	users     *UserService
	log       *zap.Logger
	mailer    mail.Sender
	tpl       *mail.Templates
	appName   string
	baseURL   string
	tokenTTL  time.Duration
	retention time.Duration
	now       func() time.Time
}

func NewSecurityService(store domain.Store, users *UserService, l *zap.Logger, opts SecurityOptions) *SecurityService {
	s := &SecurityService{
		store:     store,
		users:     users,
		log:       l.Named("security"),
		mailer:    opts.Mailer,
		tpl:       opts.Templates,
		appName:   opts.AppName,
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		tokenTTL:  opts.TokenTTL,
		retention: opts.Retention,
		now:       opts.Now,
	}
	if s.tokenTTL <= 0 {
		s.tokenTTL = DefaultResetTokenTTL
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.appName == "" {
		s.appName = "onlineshop"
	}
	return s
}

// CreatePasswordResetTokenForUser stores token for u. Earlier open tokens of
// u are consumed in the same transaction, so only the latest one works.
func (s *SecurityService) CreatePasswordResetTokenForUser(ctx context.Context, u *domain.User, token string) error {
	if token == "" {
		return errors.New("empty reset token")
	}
	now := s.now()
	t := &domain.PasswordResetToken{
		UserID:    u.ID,
		TokenHash: utils.HashToken(token),
		ExpiresAt: now.Add(s.tokenTTL),
	}
	err := s.store.WithinTx(ctx, func(tx domain.Store) error {
		n, err := tx.ResetTokens().ConsumeForUser(ctx, u.ID, now)
		if err != nil {
			return err
		}
		if n > 0 {
			s.log.Debug("superseded reset tokens", zap.String("user_id", u.ID), zap.Int64("count", n))
		}
		return tx.ResetTokens().Create(ctx, t)
	})
	if err != nil {
		return fmt.Errorf("create reset token: %w", err)
	}
	resetTokensIssued.Inc()
	s.log.Info("reset token issued", zap.String("user_id", u.ID), zap.Time("expires_at", t.ExpiresAt))
	return nil
}

// ValidatePasswordResetToken never changes state. The returned error is only
// set when storage fails; the verdict itself is the TokenStatus.
func (s *SecurityService) ValidatePasswordResetToken(ctx context.Context, userID, token string) (domain.TokenStatus, error) {
	st, err := s.validate(ctx, userID, token)
	if err != nil {
		return "", err
	}
	resetTokenChecks.WithLabelValues(string(st)).Inc()
	return st, nil
}

func (s *SecurityService) validate(ctx context.Context, userID, token string) (domain.TokenStatus, error) {
	if token == "" {
		return domain.TokenInvalid, nil
	}
	t, err := s.store.ResetTokens().FindByHash(ctx, utils.HashToken(token))
	if err != nil {
		return "", fmt.Errorf("find reset token: %w", err)
	}
	// 属主不符时不透露是否过期
	switch {
	case t == nil, t.Consumed(), t.UserID != userID:
		return domain.TokenInvalid, nil
	case t.ExpiredAt(s.now()):
		return domain.TokenExpired, nil
	}
	return domain.TokenValid, nil
}

// UpdateUserPassword hashes u.Password, stores it and consumes every open
// reset token of u.
func (s *SecurityService) UpdateUserPassword(ctx context.Context, u *domain.User) error {
	return s.applyPassword(ctx, u, false)
}

func (s *SecurityService) applyPassword(ctx context.Context, u *domain.User, requireOpenToken bool) error {
	if err := domain.NewValidationError(s.users.policy.Check(u.Password)...); err != nil {
		return err
	}
	hash, err := utils.HashPassword(u.Password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	now := s.now()
	err = s.store.WithinTx(ctx, func(tx domain.Store) error {
		n, err := tx.ResetTokens().ConsumeForUser(ctx, u.ID, now)
		if err != nil {
			return err
		}
		if requireOpenToken && n == 0 {
			return errTokenGone
		}
		return tx.Users().UpdatePassword(ctx, u.ID, hash)
	})
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	u.Password, u.PasswordConfirmation = "", ""
	passwordChanges.Inc()
	s.users.invalidate(ctx, u.Username)
	s.log.Info("password updated", zap.String("user_id", u.ID))
	return nil
}

// ResetPassword sets a new password for userID if token is valid for it.
// A non-valid status comes back with a nil error; a valid status may come
// with a *domain.ValidationError when the new password is rejected.
func (s *SecurityService) ResetPassword(ctx context.Context, userID, token, newPassword, confirmation string) (domain.TokenStatus, error) {
	st, err := s.ValidatePasswordResetToken(ctx, userID, token)
	if err != nil || st != domain.TokenValid {
		return st, err
	}
	u, err := s.store.Users().FindByID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("load user: %w", err)
	}
	if u == nil {
		return domain.TokenInvalid, nil
	}
	u.Password, u.PasswordConfirmation = newPassword, confirmation
	if err := domain.NewValidationError(CheckEqualityOfPasswords(u)...); err != nil {
		return st, err
	}
	err = s.applyPassword(ctx, u, true)
	if errors.Is(err, errTokenGone) {
		// 并发下另一请求先用掉了 token
		return domain.TokenInvalid, nil
	}
	if err != nil {
		return st, err
	}
	return domain.TokenValid, nil
}

// RequestPasswordReset issues a fresh token for the account behind email and
// mails the reset link to it.
func (s *SecurityService) RequestPasswordReset(ctx context.Context, email string) (*domain.User, error) {
	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if u == nil {
		return nil, domain.ErrUserNotFound
	}
	if !u.Enabled {
		return nil, domain.ErrUserDisabled
	}
	token, err := utils.NewResetToken()
	if err != nil {
		return nil, fmt.Errorf("generate reset token: %w", err)
	}
	if err := s.CreatePasswordResetTokenForUser(ctx, u, token); err != nil {
		return nil, err
	}
	if err := s.sendResetMail(u, token); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *SecurityService) ResetLink(userID, token string) string {
	q := url.Values{}
	q.Set("id", userID)
	q.Set("token", token)
	return s.baseURL + "/user/changePassword?" + q.Encode()
}

func (s *SecurityService) sendResetMail(u *domain.User, token string) error {
	if s.mailer == nil || s.tpl == nil {
		return errors.New("mail dispatch not configured")
	}
	html, text, err := s.tpl.RenderReset(mail.ResetVars{
		AppName:  s.appName,
		Username: u.Username,
		Link:     s.ResetLink(u.ID, token),
		TTL:      s.tokenTTL.String(),
	})
	if err != nil {
		return fmt.Errorf("render reset mail: %w", err)
	}
	if err := s.mailer.Send(u.Email, "Reset your "+s.appName+" password", html, text); err != nil {
		return fmt.Errorf("send reset mail: %w", err)
	}
	return nil
}

// PurgeExpiredTokens deletes tokens that expired or were consumed more than
// the retention period ago.
func (s *SecurityService) PurgeExpiredTokens(ctx context.Context) (int64, error) {
	n, err := s.store.ResetTokens().DeleteStale(ctx, s.now().Add(-s.retention))
	if err != nil {
		return 0, fmt.Errorf("purge reset tokens: %w", err)
	}
	if n > 0 {
		s.log.Info("purged reset tokens", zap.Int64("count", n))
	}
	return n, nil
}

// RunSweeper calls PurgeExpiredTokens every interval until ctx is done.
func (s *SecurityService) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := s.PurgeExpiredTokens(ctx); err != nil && ctx.Err() == nil {
				s.log.Warn("reset token sweep failed", zap.Error(err))
			}
		}
	}
}
