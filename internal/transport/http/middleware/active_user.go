package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"onlineshop/internal/domain"
	resp "onlineshop/internal/transport/http/response"
)

const KeyUser = "user"

// UserLoader returns (nil, nil) when no user has that id.
type UserLoader func(ctx context.Context, id string) (*domain.User, error)

// ActiveUser 挂在 AuthJWT 之后：按 token 里的 uid 重新读库，
// 账号停用或已不存在则拒绝；requireRole 非空时以库里的角色为准
func ActiveUser(load UserLoader, requireRole domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, err := load(c.Request.Context(), c.GetString(KeyUserID))
		if err != nil {
			_ = c.Error(err)
			c.AbortWithStatusJSON(http.StatusOK, resp.Error(resp.CodeServerError, "internal error"))
			return
		}
		if u == nil {
			c.AbortWithStatusJSON(http.StatusOK, resp.Error(resp.CodeUnauthorized, "user not found"))
			return
		}
		if !u.Enabled {
			c.AbortWithStatusJSON(http.StatusOK, resp.Error(resp.CodeForbidden, "account disabled"))
			return
		}
		if requireRole != "" && !u.Roles.Has(requireRole) {
			c.AbortWithStatusJSON(http.StatusOK, resp.Error(resp.CodeForbidden, "forbidden"))
			return
		}
		c.Set(KeyUser, u)
		c.Next()
	}
}

// UserFrom returns the account loaded by ActiveUser.
func UserFrom(c *gin.Context) (*domain.User, bool) {
	v, ok := c.Get(KeyUser)
	if !ok {
		return nil, false
	}
	u, ok := v.(*domain.User)
	return u, ok && u != nil
}
