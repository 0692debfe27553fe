package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTer_RoundTrip(t *testing.T) {
	j := &JWTer{Secret: []byte("k"), Issuer: "onlineshop", TTL: time.Hour}
	tok, err := j.Issue("u1", "johndoe", []string{"ROLE_USER"})
	require.NoError(t, err)

	c, err := j.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, "u1", c.UID)
	assert.Equal(t, "johndoe", c.Username)
	assert.True(t, c.HasRole("ROLE_USER"))
	assert.False(t, c.HasRole("ROLE_ADMIN"))
}

func TestJWTer_Rejects(t *testing.T) {
	j := &JWTer{Secret: []byte("k"), Issuer: "onlineshop", TTL: time.Hour}
	tok, err := j.Issue("u1", "johndoe", nil)
	require.NoError(t, err)

	other := &JWTer{Secret: []byte("other"), Issuer: "onlineshop", TTL: time.Hour}
	_, err = other.Parse(tok)
	assert.Error(t, err, "wrong secret")

	wrongIss := &JWTer{Secret: []byte("k"), Issuer: "elsewhere", TTL: time.Hour}
	_, err = wrongIss.Parse(tok)
	assert.Error(t, err, "wrong issuer")

	expired := &JWTer{Secret: []byte("k"), Issuer: "onlineshop", TTL: -2 * time.Minute}
	old, err := expired.Issue("u1", "johndoe", nil)
	require.NoError(t, err)
	_, err = j.Parse(old)
	assert.Error(t, err, "expired beyond leeway")

	_, err = j.Parse("garbage")
	assert.Error(t, err)
}
