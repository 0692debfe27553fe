package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onlineshop/internal/core/auth"
	"onlineshop/internal/domain"
	resp "onlineshop/internal/transport/http/response"
)

func init() { gin.SetMode(gin.TestMode) }

func serve(r *gin.Engine, req *http.Request) (*httptest.ResponseRecorder, resp.Resp) {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var out resp.Resp
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

func TestAuthJWT(t *testing.T) {
	j := &auth.JWTer{Secret: []byte("s"), Issuer: "test", TTL: time.Minute}
	r := gin.New()
	r.GET("/x", AuthJWT(j, "ROLE_ADMIN"), func(c *gin.Context) {
		cl, ok := ClaimsFrom(c)
		require.True(t, ok)
		c.JSON(http.StatusOK, resp.OK(gin.H{"uid": c.GetString(KeyUserID), "name": cl.Username}))
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	_, out := serve(r, req)
	assert.Equal(t, resp.CodeUnauthorized, out.Code)

	userTok, err := j.Issue("1", "john", []string{"ROLE_USER"})
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer "+userTok)
	_, out = serve(r, req)
	assert.Equal(t, resp.CodeForbidden, out.Code)

	adminTok, err := j.Issue("2", "root", []string{"ROLE_USER", "ROLE_ADMIN"})
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer "+adminTok)
	_, out = serve(r, req)
	assert.Equal(t, resp.CodeOK, out.Code)
	assert.Equal(t, map[string]any{"uid": "2", "name": "root"}, out.Data)
}

func TestRateLimitPerIP(t *testing.T) {
	r := gin.New()
	r.Use(RateLimitPerIP(0.001, 2, time.Minute))
	r.GET("/x", func(c *gin.Context) { c.JSON(http.StatusOK, resp.OK(nil)) })

	codes := func(ip string) []int {
		var out []int
		for i := 0; i < 3; i++ {
			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			req.RemoteAddr = ip + ":1234"
			_, body := serve(r, req)
			out = append(out, body.Code)
		}
		return out
	}
	assert.Equal(t, []int{0, 0, resp.CodeTooManyRequests}, codes("10.0.0.1"))
	assert.Equal(t, []int{0, 0, resp.CodeTooManyRequests}, codes("10.0.0.2"))
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(KeyRequestID)) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(KeyRequestID, "abc-123")
	w, _ := serve(r, req)
	assert.Equal(t, "abc-123", w.Header().Get(KeyRequestID))
	assert.Equal(t, "abc-123", w.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(KeyRequestID, strings.Repeat("x", 200))
	w, _ = serve(r, req)
	assert.Len(t, w.Header().Get(KeyRequestID), 36)
}

func TestMaxBodyBytes(t *testing.T) {
	r := gin.New()
	r.Use(MaxBodyBytes(8))
	r.POST("/x", func(c *gin.Context) {
		var in map[string]any
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusOK, resp.Error(resp.CodeBadRequest, err.Error()))
			return
		}
		c.JSON(http.StatusOK, resp.OK(in))
	})

	_, out := serve(r, httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(`{"a":1}`)))
	assert.Equal(t, resp.CodeOK, out.Code)
	_, out = serve(r, httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(`{"a":"too long"}`)))
	assert.Equal(t, resp.CodeBadRequest, out.Code)
	assert.Equal(t, "request body too large", out.Msg)
}

func TestMaskQuery(t *testing.T) {
	got := maskQuery(map[string][]string{"id": {"1"}, "Token": {"secret"}})
	assert.Equal(t, []string{"1"}, got["id"])
	assert.Equal(t, []string{"****"}, got["Token"])
}

func TestActiveUser(t *testing.T) {
	j := &auth.JWTer{Secret: []byte("s"), Issuer: "test", TTL: time.Minute}
	accounts := map[string]*domain.User{
		"1": {ID: "1", Username: "john", Enabled: true, Roles: domain.NewRoleSet(domain.RoleUser)},
		"2": {ID: "2", Username: "root", Enabled: true, Roles: domain.NewRoleSet(domain.RoleAdmin)},
		"3": {ID: "3", Username: "gone", Enabled: false, Roles: domain.NewRoleSet(domain.RoleAdmin)},
	}
	load := func(_ context.Context, id string) (*domain.User, error) {
		if id == "boom" {
			return nil, errors.New("db down")
		}
		return accounts[id], nil
	}
	r := gin.New()
	r.GET("/admin", AuthJWT(j, ""), ActiveUser(load, domain.RoleAdmin), func(c *gin.Context) {
		u, ok := UserFrom(c)
		require.True(t, ok)
		c.JSON(http.StatusOK, resp.OK(gin.H{"name": u.Username}))
	})

	get := func(uid string, roles ...string) resp.Resp {
		tok, err := j.Issue(uid, "x", roles)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		_, out := serve(r, req)
		return out
	}

	out := get("2", "ROLE_ADMIN")
	assert.Equal(t, resp.CodeOK, out.Code)
	assert.Equal(t, map[string]any{"name": "root"}, out.Data)

	// the stored roles win over the roles in the token
	assert.Equal(t, resp.CodeForbidden, get("1", "ROLE_ADMIN").Code)
	assert.Equal(t, resp.CodeForbidden, get("3", "ROLE_ADMIN").Code)
	assert.Equal(t, resp.CodeUnauthorized, get("404", "ROLE_ADMIN").Code)
	assert.Equal(t, resp.CodeServerError, get("boom", "ROLE_ADMIN").Code)
}
