package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"onlineshop/internal/core/auth"
	"onlineshop/internal/domain"
	"onlineshop/internal/service"
	httpez "onlineshop/internal/transport/http/ez"
	mdw "onlineshop/internal/transport/http/middleware"
)

// UserHandler serves registration, login, password reset and the signed-in
// user's own account under /api/v1.
type UserHandler struct {
	users *service.UserService
	sec   *service.SecurityService
	jwt   *auth.JWTer
	log   *zap.Logger
}

func NewUserHandler(users *service.UserService, sec *service.SecurityService, jwter *auth.JWTer, l *zap.Logger) *UserHandler {
	return &UserHandler{users: users, sec: sec, jwt: jwter, log: l.Named("user_api")}
}

type profileIn struct {
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Address   string `json:"address"`
	City      string `json:"city"`
	Postcode  string `json:"postcode"`
	Phone     string `json:"phone"`
}

func (p profileIn) user() *domain.User {
	return &domain.User{
		Email:     p.Email,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Address:   p.Address,
		City:      p.City,
		Postcode:  p.Postcode,
		Phone:     p.Phone,
	}
}

type registerIn struct {
	Username             string `json:"username"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"passwordConfirmation"`
	profileIn
}

type loginIn struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type loginOut struct {
	Token string       `json:"token"`
	User  *domain.User `json:"user"`
}

type resetRequestIn struct {
	Email string `json:"email" binding:"required"`
}

type tokenQuery struct {
	ID    string `form:"id"    binding:"required"`
	Token string `form:"token" binding:"required"`
}

type resetConfirmIn struct {
	ID                      string `json:"id"    binding:"required"`
	Token                   string `json:"token" binding:"required"`
	NewPassword             string `json:"newPassword"`
	NewPasswordConfirmation string `json:"newPasswordConfirmation"`
}

type savePasswordIn struct {
	NewPassword             string `json:"newPassword"`
	NewPasswordConfirmation string `json:"newPasswordConfirmation"`
}

func (h *UserHandler) MountAPI(api *gin.RouterGroup) {
	pub := httpez.New(api, h.log)

	httpez.RegisterAction(pub, httpez.Action[registerIn, *domain.User]{
		Method: http.MethodPost, Path: "/auth/register", Binder: httpez.BindJSON,
		Handler: h.register,
	})
	httpez.RegisterAction(pub, httpez.Action[loginIn, loginOut]{
		Method: http.MethodPost, Path: "/auth/login", Binder: httpez.BindJSON,
		Handler: h.login,
	})
	httpez.RegisterAction(pub, httpez.Action[resetRequestIn, gin.H]{
		Method: http.MethodPost, Path: "/user/resetPassword", Binder: httpez.BindJSON,
		Handler: h.requestReset,
	})
	httpez.RegisterAction(pub, httpez.Action[tokenQuery, gin.H]{
		Method: http.MethodGet, Path: "/user/changePassword", Binder: httpez.BindQuery,
		Handler: h.checkToken,
	})
	httpez.RegisterAction(pub, httpez.Action[resetConfirmIn, gin.H]{
		Method: http.MethodPost, Path: "/user/resetPassword/confirm", Binder: httpez.BindJSON,
		Handler: h.confirmReset,
	})

	// 鉴权分组（/me 等必须挂这里才能拿到 userId）；停用账号的旧 token 在这里被拒
	authed := api.Group("")
	authed.Use(mdw.AuthJWT(h.jwt, ""), mdw.ActiveUser(h.users.FindByID, ""))
	priv := httpez.New(authed, h.log)

	httpez.RegisterAction(priv, httpez.Action[struct{}, *domain.User]{
		Method: http.MethodGet, Path: "/me", Binder: httpez.BindNone, Auth: true,
		Handler: h.me,
	})
	httpez.RegisterAction(priv, httpez.Action[profileIn, *domain.User]{
		Method: http.MethodPut, Path: "/user/update", Binder: httpez.BindJSON, Auth: true,
		Handler: h.update,
	})
	httpez.RegisterAction(priv, httpez.Action[savePasswordIn, gin.H]{
		Method: http.MethodPost, Path: "/user/savePassword", Binder: httpez.BindJSON, Auth: true,
		Handler: h.savePassword,
	})
	httpez.RegisterAction(priv, httpez.Action[struct{}, gin.H]{
		Method: http.MethodPost, Path: "/user/remove", Binder: httpez.BindNone, Auth: true,
		Handler: h.remove,
	})
}

func (h *UserHandler) register(c *gin.Context, in *registerIn) (*domain.User, error) {
	u := in.user()
	u.Username = in.Username
	u.Password = in.Password
	u.PasswordConfirmation = in.PasswordConfirmation
	return h.users.CreateUser(c.Request.Context(), u, domain.RoleUser)
}

func (h *UserHandler) login(c *gin.Context, in *loginIn) (loginOut, error) {
	u, err := h.users.Authenticate(c.Request.Context(), in.Username, in.Password)
	if err != nil {
		return loginOut{}, err
	}
	tok, err := h.jwt.Issue(u.ID, u.Username, u.Roles.Strings())
	if err != nil {
		return loginOut{}, httpez.Internal("issue token failed", err)
	}
	return loginOut{Token: tok, User: u}, nil
}

func (h *UserHandler) requestReset(c *gin.Context, in *resetRequestIn) (gin.H, error) {
	u, err := h.sec.RequestPasswordReset(c.Request.Context(), in.Email)
	if err != nil {
		return nil, err
	}
	return gin.H{"email": u.Email}, nil
}

func tokenError(st domain.TokenStatus) error {
	switch st {
	case domain.TokenValid:
		return nil
	case domain.TokenExpired:
		return httpez.BadRequest("expired token")
	default:
		return httpez.BadRequest("invalid token")
	}
}

func (h *UserHandler) checkToken(c *gin.Context, in *tokenQuery) (gin.H, error) {
	st, err := h.sec.ValidatePasswordResetToken(c.Request.Context(), in.ID, in.Token)
	if err != nil {
		return nil, err
	}
	if err := tokenError(st); err != nil {
		return nil, err
	}
	return gin.H{"id": in.ID, "status": st}, nil
}

func (h *UserHandler) confirmReset(c *gin.Context, in *resetConfirmIn) (gin.H, error) {
	st, err := h.sec.ResetPassword(c.Request.Context(), in.ID, in.Token, in.NewPassword, in.NewPasswordConfirmation)
	if err != nil {
		return nil, err
	}
	if err := tokenError(st); err != nil {
		return nil, err
	}
	return gin.H{"id": in.ID}, nil
}

// current is the enabled account ActiveUser loaded for this request.
func (h *UserHandler) current(c *gin.Context) (*domain.User, error) {
	u, ok := mdw.UserFrom(c)
	if !ok {
		return nil, httpez.Unauthorized("not signed in")
	}
	if !u.Enabled {
		return nil, domain.ErrUserDisabled
	}
	return u, nil
}

func (h *UserHandler) me(c *gin.Context, _ *struct{}) (*domain.User, error) {
	return h.current(c)
}

func (h *UserHandler) update(c *gin.Context, in *profileIn) (*domain.User, error) {
	u, err := h.current(c)
	if err != nil {
		return nil, err
	}
	if err := h.users.UpdateInfo(c.Request.Context(), u, in.user()); err != nil {
		return nil, err
	}
	return u, nil
}

func (h *UserHandler) savePassword(c *gin.Context, in *savePasswordIn) (gin.H, error) {
	u, err := h.current(c)
	if err != nil {
		return nil, err
	}
	u.Password, u.PasswordConfirmation = in.NewPassword, in.NewPasswordConfirmation
	if err := domain.NewValidationError(service.CheckEqualityOfPasswords(u)...); err != nil {
		return nil, err
	}
	if err := h.sec.UpdateUserPassword(c.Request.Context(), u); err != nil {
		return nil, err
	}
	return gin.H{"id": u.ID}, nil
}

// remove 注销 = 停用自己的账号
func (h *UserHandler) remove(c *gin.Context, _ *struct{}) (gin.H, error) {
	u, err := h.current(c)
	if err != nil {
		return nil, err
	}
	username := u.Username
	if err = h.users.DisableUser(c.Request.Context(), username); err != nil {
		return nil, err
	}
	return gin.H{"username": username, "enabled": false}, nil
}
