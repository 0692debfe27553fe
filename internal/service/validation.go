package service

import (
	"fmt"
	"net/mail"
	"strings"
	"unicode"

	"onlineshop/internal/domain"
)

const msgPasswordsDiffer = "password and password confirmation do not match"

// CheckEqualityOfPasswords returns one message when the password and its
// confirmation differ and none when they are equal.
func CheckEqualityOfPasswords(u *domain.User) []string {
	if u.Password != u.PasswordConfirmation {
		return []string{msgPasswordsDiffer}
	}
	return nil
}

type PasswordPolicy struct {
	MinLength    int
	RequireUpper bool
	RequireLower bool
	RequireDigit bool
}

var DefaultPasswordPolicy = PasswordPolicy{MinLength: 8, RequireUpper: true, RequireLower: true, RequireDigit: true}

func (p PasswordPolicy) Check(pw string) []string {
	var out []string
	if len([]rune(pw)) < p.MinLength {
		out = append(out, fmt.Sprintf("password must be at least %d characters long", p.MinLength))
	}
	var hasU, hasL, hasD bool
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			hasU = true
		case unicode.IsLower(r):
			hasL = true
		case unicode.IsDigit(r):
			hasD = true
		}
	}
	if p.RequireUpper && !hasU {
		out = append(out, "password must contain an upper-case letter")
	}
	if p.RequireLower && !hasL {
		out = append(out, "password must contain a lower-case letter")
	}
	if p.RequireDigit && !hasD {
		out = append(out, "password must contain a digit")
	}
	return out
}

func normalizeEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func normalize(u *domain.User) {
	u.Username = strings.TrimSpace(u.Username)
	u.Email = normalizeEmail(u.Email)
	u.Phone = strings.TrimSpace(u.Phone)
	u.FirstName = strings.TrimSpace(u.FirstName)
	u.LastName = strings.TrimSpace(u.LastName)
	u.Address = strings.TrimSpace(u.Address)
	u.City = strings.TrimSpace(u.City)
	u.Postcode = strings.TrimSpace(u.Postcode)
}

func checkIdentity(u *domain.User) []string {
	var out []string
	if u.Username == "" {
		out = append(out, "username is required")
	}
	if u.Email == "" {
		out = append(out, "email is required")
	} else if a, err := mail.ParseAddress(u.Email); err != nil || a.Address != u.Email {
		out = append(out, "email is not a valid address")
	}
	return out
}
