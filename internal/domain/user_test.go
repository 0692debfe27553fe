package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoleSet_DedupAndOrder(t *testing.T) {
	s := NewRoleSet(RoleUser, RoleAdmin, RoleUser, "")
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, []Role{RoleAdmin, RoleUser}, s.Slice())
	assert.True(t, s.Has(RoleUser))
	assert.False(t, NewRoleSet().Has(RoleUser))
}

func TestRoleSet_SliceIsCopy(t *testing.T) {
	s := NewRoleSet(RoleUser)
	got := s.Slice()
	got[0] = RoleAdmin
	assert.True(t, s.Has(RoleUser))
	assert.False(t, s.Has(RoleAdmin))
}

func TestRoleSet_JSON(t *testing.T) {
	b, err := json.Marshal(NewRoleSet(RoleUser, RoleAdmin))
	require.NoError(t, err)
	assert.JSONEq(t, `["ROLE_ADMIN","ROLE_USER"]`, string(b))

	var s RoleSet
	require.NoError(t, json.Unmarshal(b, &s))
	assert.True(t, s.Has(RoleAdmin))
	assert.True(t, s.Has(RoleUser))
}

func TestUser_CopyProfileKeepsIdentity(t *testing.T) {
	old := &User{ID: "1", Username: "johndoe", Email: "john@test.com", Roles: NewRoleSet(RoleUser), PasswordHash: "h"}
	upd := &User{ID: "2", Username: "other", Email: "new@test.com", City: "Gdansk", Phone: "700700799", Roles: NewRoleSet(RoleAdmin)}

	old.CopyProfile(upd)

	assert.Equal(t, "1", old.ID)
	assert.Equal(t, "johndoe", old.Username)
	assert.Equal(t, "new@test.com", old.Email)
	assert.Equal(t, "Gdansk", old.City)
	assert.Equal(t, "700700799", old.Phone)
	assert.Equal(t, "h", old.PasswordHash)
	assert.False(t, old.Roles.Has(RoleAdmin))
}

func TestPasswordResetToken_State(t *testing.T) {
	now := time.Now()
	tok := &PasswordResetToken{ExpiresAt: now.Add(time.Hour)}
	assert.False(t, tok.ExpiredAt(now))
	assert.True(t, tok.ExpiredAt(now.Add(time.Hour)))
	assert.False(t, tok.Consumed())
	tok.ConsumedAt = &now
	assert.True(t, tok.Consumed())
}

func TestNewValidationError(t *testing.T) {
	assert.NoError(t, NewValidationError())
	err := NewValidationError("a", "b")
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, []string{"a", "b"}, ve.Messages)
	assert.Equal(t, "a; b", err.Error())
}
