package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"onlineshop/internal/core/auth"
	"onlineshop/internal/core/mail"
	"onlineshop/internal/domain"
	"onlineshop/internal/repo/repotest"
	"onlineshop/internal/service"
	"onlineshop/internal/transport/http/router"
	"onlineshop/pkg/utils"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	utils.HashCost = bcrypt.MinCost
	os.Exit(m.Run())
}

type captured struct {
	mu   sync.Mutex
	text []string
}

func (c *captured) Send(_, _, _, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.text = append(c.text, text)
	return nil
}

func (c *captured) last() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.text) == 0 {
		return ""
	}
	return c.text[len(c.text)-1]
}

type env struct {
	api, admin *gin.Engine
	jwt        *auth.JWTer
	mail       *captured
	users      *service.UserService
	rootToken  string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	l := zap.NewNop()
	st := repotest.OpenStore(t)
	tpl, err := mail.LoadTemplates()
	require.NoError(t, err)

	e := &env{
		jwt:  &auth.JWTer{Secret: []byte("test-secret"), Issuer: "onlineshop", TTL: time.Hour},
		mail: &captured{},
	}
	e.users = service.NewUserService(st, l, service.UserOptions{})
	sec := service.NewSecurityService(st, e.users, l, service.SecurityOptions{
		BaseURL: "http://shop.test", Mailer: e.mail, Templates: tpl,
	})
	o := router.Options{Mode: gin.TestMode}
	e.api = router.NewAPIEngine(l, o, NewUserHandler(e.users, sec, e.jwt, l))
	e.admin = router.NewAdminEngine(l, e.jwt, e.users.FindByID, o, NewAdminHandler(e.users, l))
	return e
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func call(t *testing.T, h http.Handler, method, path, token string, body any) envelope {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var out envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

var johnRegistration = gin.H{
	"username":             "johndoe",
	"email":                "john@test.com",
	"password":             "aaZZa44@",
	"passwordConfirmation": "aaZZa44@",
	"firstName":            "John",
}

// adminToken signs in an enabled ROLE_ADMIN account named root, creating it
// on first use.
func (e *env) adminToken(t *testing.T) string {
	t.Helper()
	if e.rootToken != "" {
		return e.rootToken
	}
	ctx := context.Background()
	root, err := e.users.CreateUser(ctx, &domain.User{
		Username:             "root",
		Email:                "root@test.com",
		Password:             "Root1234",
		PasswordConfirmation: "Root1234",
	}, domain.RoleAdmin, domain.RoleUser)
	require.NoError(t, err)
	require.NoError(t, e.users.EnableUser(ctx, "root"))
	e.rootToken, err = e.jwt.Issue(root.ID, root.Username, root.Roles.Strings())
	require.NoError(t, err)
	return e.rootToken
}

func (e *env) login(t *testing.T, username, password string) string {
	t.Helper()
	r := call(t, e.api, http.MethodPost, "/api/v1/auth/login", "", gin.H{"username": username, "password": password})
	require.Equal(t, 0, r.Code, r.Msg)
	return decode[struct {
		Token string `json:"token"`
	}](t, r.Data).Token
}

func TestRegister(t *testing.T) {
	e := newEnv(t)

	r := call(t, e.api, http.MethodPost, "/api/v1/auth/register", "", johnRegistration)
	require.Equal(t, 0, r.Code, r.Msg)
	u := decode[domain.User](t, r.Data)
	assert.Equal(t, "johndoe", u.Username)
	assert.False(t, u.Enabled)
	assert.True(t, u.Roles.Has(domain.RoleUser))
	assert.NotContains(t, string(r.Data), "aaZZa44@")

	r = call(t, e.api, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"username":             "johndoe",
		"email":                "john@test.com",
		"password":             "aaZZa44@",
		"passwordConfirmation": "nope",
	})
	assert.Equal(t, 400, r.Code)
	errs := decode[struct {
		Errors []string `json:"errors"`
	}](t, r.Data).Errors
	assert.ElementsMatch(t, []string{
		"username already exists",
		"email already exists",
		"password and password confirmation do not match",
	}, errs)
}

func TestLoginAndProfile(t *testing.T) {
	e := newEnv(t)
	require.Equal(t, 0, call(t, e.api, http.MethodPost, "/api/v1/auth/register", "", johnRegistration).Code)

	r := call(t, e.api, http.MethodPost, "/api/v1/auth/login", "", gin.H{"username": "johndoe", "password": "aaZZa44@"})
	assert.Equal(t, 403, r.Code)
	r = call(t, e.api, http.MethodPost, "/api/v1/auth/login", "", gin.H{"username": "johndoe", "password": "bad"})
	assert.Equal(t, 401, r.Code)

	r = call(t, e.admin, http.MethodPost, "/admin/v1/users/johndoe/enable", e.adminToken(t), nil)
	require.Equal(t, 0, r.Code, r.Msg)

	tok := e.login(t, "johndoe", "aaZZa44@")
	r = call(t, e.api, http.MethodGet, "/api/v1/me", tok, nil)
	require.Equal(t, 0, r.Code)
	assert.Equal(t, "john@test.com", decode[domain.User](t, r.Data).Email)

	r = call(t, e.api, http.MethodPut, "/api/v1/user/update", tok, gin.H{"email": "john@test.com", "city": "Springfield"})
	require.Equal(t, 0, r.Code, r.Msg)
	assert.Equal(t, "Springfield", decode[domain.User](t, r.Data).City)

	r = call(t, e.api, http.MethodPost, "/api/v1/user/savePassword", tok, gin.H{"newPassword": "NewPass99", "newPasswordConfirmation": "NewPass98"})
	assert.Equal(t, 400, r.Code)
	r = call(t, e.api, http.MethodPost, "/api/v1/user/savePassword", tok, gin.H{"newPassword": "NewPass99", "newPasswordConfirmation": "NewPass99"})
	require.Equal(t, 0, r.Code, r.Msg)
	e.login(t, "johndoe", "NewPass99")

	r = call(t, e.api, http.MethodPost, "/api/v1/user/remove", tok, nil)
	require.Equal(t, 0, r.Code)
	r = call(t, e.api, http.MethodPost, "/api/v1/auth/login", "", gin.H{"username": "johndoe", "password": "NewPass99"})
	assert.Equal(t, 403, r.Code)

	// a token issued before the account was disabled stops working
	assert.Equal(t, 403, call(t, e.api, http.MethodGet, "/api/v1/me", tok, nil).Code)
	assert.Equal(t, 403, call(t, e.api, http.MethodPut, "/api/v1/user/update", tok, gin.H{"email": "evil@test.com"}).Code)
	assert.Equal(t, 403, call(t, e.api, http.MethodPost, "/api/v1/user/savePassword", tok,
		gin.H{"newPassword": "Other999", "newPasswordConfirmation": "Other999"}).Code)
	u, err := e.users.FindByUsername(context.Background(), "johndoe")
	require.NoError(t, err)
	assert.Equal(t, "john@test.com", u.Email)

	// re-enabled by an admin, the same token works again
	require.Equal(t, 0, call(t, e.admin, http.MethodPost, "/admin/v1/users/johndoe/enable", e.adminToken(t), nil).Code)
	assert.Equal(t, 0, call(t, e.api, http.MethodGet, "/api/v1/me", tok, nil).Code)

	assert.Equal(t, 401, call(t, e.api, http.MethodGet, "/api/v1/me", "", nil).Code)
	assert.Equal(t, 401, call(t, e.api, http.MethodGet, "/api/v1/me", "garbage", nil).Code)
}

var linkRe = regexp.MustCompile(`http://\S+`)

func TestPasswordResetFlow(t *testing.T) {
	e := newEnv(t)
	require.Equal(t, 0, call(t, e.api, http.MethodPost, "/api/v1/auth/register", "", johnRegistration).Code)

	r := call(t, e.api, http.MethodPost, "/api/v1/user/resetPassword", "", gin.H{"email": "john@test.com"})
	assert.Equal(t, 403, r.Code, "disabled accounts get no reset mail")
	r = call(t, e.api, http.MethodPost, "/api/v1/user/resetPassword", "", gin.H{"email": "ghost@test.com"})
	assert.Equal(t, 404, r.Code)

	require.NoError(t, e.users.EnableUser(context.Background(), "johndoe"))
	r = call(t, e.api, http.MethodPost, "/api/v1/user/resetPassword", "", gin.H{"email": "john@test.com"})
	require.Equal(t, 0, r.Code, r.Msg)

	link, err := url.Parse(linkRe.FindString(e.mail.last()))
	require.NoError(t, err)
	id, token := link.Query().Get("id"), link.Query().Get("token")
	require.NotEmpty(t, token)

	check := "/api/v1/user/changePassword?" + link.RawQuery
	r = call(t, e.api, http.MethodGet, check, "", nil)
	require.Equal(t, 0, r.Code, r.Msg)

	r = call(t, e.api, http.MethodGet, "/api/v1/user/changePassword?id="+id+"&token=bogus", "", nil)
	assert.Equal(t, 400, r.Code)
	assert.Equal(t, "invalid token", r.Msg)

	r = call(t, e.api, http.MethodPost, "/api/v1/user/resetPassword/confirm", "", gin.H{
		"id": id, "token": token, "newPassword": "NewPass99", "newPasswordConfirmation": "NewPass99",
	})
	require.Equal(t, 0, r.Code, r.Msg)

	r = call(t, e.api, http.MethodGet, check, "", nil)
	assert.Equal(t, 400, r.Code)
	assert.Equal(t, "invalid token", r.Msg)

	e.login(t, "johndoe", "NewPass99")
}

func TestAdminRoutes(t *testing.T) {
	e := newEnv(t)
	require.Equal(t, 0, call(t, e.api, http.MethodPost, "/api/v1/auth/register", "", johnRegistration).Code)
	admin := e.adminToken(t)

	userTok, err := e.jwt.Issue("u1", "johndoe", []string{string(domain.RoleUser)})
	require.NoError(t, err)
	assert.Equal(t, 403, call(t, e.admin, http.MethodGet, "/admin/v1/users", userTok, nil).Code)
	assert.Equal(t, 401, call(t, e.admin, http.MethodGet, "/admin/v1/users", "", nil).Code)

	r := call(t, e.admin, http.MethodGet, "/admin/v1/users?limit=10", admin, nil)
	require.Equal(t, 0, r.Code)
	list := decode[struct {
		Total int           `json:"total"`
		Items []domain.User `json:"items"`
	}](t, r.Data)
	assert.Equal(t, 2, list.Total)
	require.Len(t, list.Items, 2)
	var names []string
	for _, u := range list.Items {
		names = append(names, u.Username)
	}
	assert.ElementsMatch(t, []string{"johndoe", "root"}, names)

	r = call(t, e.admin, http.MethodGet, "/admin/v1/users?offset=1&limit=10", admin, nil)
	require.Equal(t, 0, r.Code)
	assert.Len(t, decode[listOut](t, r.Data).Items, 1)

	r = call(t, e.admin, http.MethodPut, "/admin/v1/users/johndoe/roles", admin, gin.H{"roles": []string{"ROLE_ADMIN", "ROLE_USER"}})
	require.Equal(t, 0, r.Code, r.Msg)
	assert.True(t, decode[domain.User](t, r.Data).Roles.Has(domain.RoleAdmin))

	r = call(t, e.admin, http.MethodPut, "/admin/v1/users/johndoe/roles", admin, gin.H{"roles": []string{"ROLE_GOD"}})
	assert.Equal(t, 400, r.Code)

	r = call(t, e.admin, http.MethodPost, "/admin/v1/users/ghost/disable", admin, nil)
	assert.Equal(t, 404, r.Code)

	r = call(t, e.admin, http.MethodPost, "/admin/v1/users/johndoe/disable", admin, nil)
	require.Equal(t, 0, r.Code)
	assert.False(t, decode[statusOut](t, r.Data).Enabled)
}

func TestAdminRoutes_FollowStoredAccount(t *testing.T) {
	e := newEnv(t)
	require.Equal(t, 0, call(t, e.api, http.MethodPost, "/api/v1/auth/register", "", johnRegistration).Code)
	root := e.adminToken(t)
	ctx := context.Background()

	// johndoe becomes admin, signs in, and is demoted again
	_, err := e.users.ChangeRoles(ctx, "johndoe", domain.RoleAdmin)
	require.NoError(t, err)
	require.NoError(t, e.users.EnableUser(ctx, "johndoe"))
	johnAdmin := e.login(t, "johndoe", "aaZZa44@")
	require.Equal(t, 0, call(t, e.admin, http.MethodGet, "/admin/v1/users", johnAdmin, nil).Code)

	r := call(t, e.admin, http.MethodPut, "/admin/v1/users/johndoe/roles", root, gin.H{"roles": []string{"ROLE_USER"}})
	require.Equal(t, 0, r.Code, r.Msg)
	assert.Equal(t, 403, call(t, e.admin, http.MethodGet, "/admin/v1/users", johnAdmin, nil).Code)

	// a disabled admin is locked out as well
	require.NoError(t, e.users.DisableUser(ctx, "root"))
	assert.Equal(t, 403, call(t, e.admin, http.MethodGet, "/admin/v1/users", root, nil).Code)

	// a well-signed token for an account that does not exist
	ghost, err := e.jwt.Issue("ghost-id", "ghost", []string{string(domain.RoleAdmin)})
	require.NoError(t, err)
	assert.Equal(t, 401, call(t, e.admin, http.MethodGet, "/admin/v1/users", ghost, nil).Code)
}

func TestHealthAndMetrics(t *testing.T) {
	e := newEnv(t)

	w := httptest.NewRecorder()
	e.api.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	e.admin.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_requests_total")
}
