package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"onlineshop/internal/domain"
	"onlineshop/internal/service"
	httpez "onlineshop/internal/transport/http/ez"
)

// AdminHandler is mounted on /admin/v1, which already requires ROLE_ADMIN.
type AdminHandler struct {
	users *service.UserService
	log   *zap.Logger
}

func NewAdminHandler(users *service.UserService, l *zap.Logger) *AdminHandler {
	return &AdminHandler{users: users, log: l.Named("admin_api")}
}

type listQ struct {
	Offset int `form:"offset,default=0"`
	Limit  int `form:"limit,default=20"`
}

type listOut struct {
	Total int           `json:"total"`
	Items []domain.User `json:"items"`
}

type statusOut struct {
	Username string `json:"username"`
	Enabled  bool   `json:"enabled"`
}

type rolesIn struct {
	Roles []domain.Role `json:"roles" binding:"required"`
}

func (h *AdminHandler) MountAdmin(admin *gin.RouterGroup) {
	ez := httpez.New(admin, h.log)

	httpez.RegisterAction(ez, httpez.Action[listQ, listOut]{
		Method: http.MethodGet, Path: "/users", Binder: httpez.BindQuery,
		Handler: h.list,
	})
	httpez.RegisterAction(ez, httpez.Action[struct{}, statusOut]{
		Method: http.MethodPost, Path: "/users/:username/enable", Binder: httpez.BindNone,
		Handler: h.setEnabled(true),
	})
	httpez.RegisterAction(ez, httpez.Action[struct{}, statusOut]{
		Method: http.MethodPost, Path: "/users/:username/disable", Binder: httpez.BindNone,
		Handler: h.setEnabled(false),
	})
	httpez.RegisterAction(ez, httpez.Action[rolesIn, *domain.User]{
		Method: http.MethodPut, Path: "/users/:username/roles", Binder: httpez.BindJSON,
		Handler: h.changeRoles,
	})
}

func (h *AdminHandler) list(c *gin.Context, in *listQ) (listOut, error) {
	if in.Limit <= 0 || in.Limit > 100 {
		in.Limit = 20
	}
	if in.Offset < 0 {
		in.Offset = 0
	}
	all, err := h.users.FindUserList(c.Request.Context())
	if err != nil {
		return listOut{}, httpez.Internal("list users failed", err)
	}
	out := listOut{Total: len(all), Items: []domain.User{}}
	if in.Offset < len(all) {
		end := min(in.Offset+in.Limit, len(all))
		out.Items = all[in.Offset:end]
	}
	return out, nil
}

func (h *AdminHandler) setEnabled(enabled bool) func(*gin.Context, *struct{}) (statusOut, error) {
	return func(c *gin.Context, _ *struct{}) (statusOut, error) {
		name := c.Param("username")
		var err error
		if enabled {
			err = h.users.EnableUser(c.Request.Context(), name)
		} else {
			err = h.users.DisableUser(c.Request.Context(), name)
		}
		if err != nil {
			return statusOut{}, err
		}
		return statusOut{Username: name, Enabled: enabled}, nil
	}
}

func (h *AdminHandler) changeRoles(c *gin.Context, in *rolesIn) (*domain.User, error) {
	return h.users.ChangeRoles(c.Request.Context(), c.Param("username"), in.Roles...)
}
