// Package ez registers typed request handlers on gin groups and maps their
// errors onto the {code,msg,data} envelope.
package ez

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"onlineshop/internal/core/auth"
	"onlineshop/internal/domain"
	mdw "onlineshop/internal/transport/http/middleware"
	resp "onlineshop/internal/transport/http/response"
)

type EZ struct {
	g   *gin.RouterGroup
	log *zap.Logger
}

func New(g *gin.RouterGroup, l *zap.Logger) EZ {
	if l == nil {
		l = zap.NewNop()
	}
	return EZ{g: g, log: l}
}

type Binder string

const (
	BindJSON  Binder = "json"  // 从 JSON 绑定
	BindQuery Binder = "query" // 从 URL ?a=b 绑定
	BindNone  Binder = "none"  // 不绑定，自己从 c.Param 取
)

// AErr 统一错误对象（配合 resp.Error(int, msg)）
type AErr struct {
	Code int
	Msg  string
	Err  error
}

func (e *AErr) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "action error"
}

func (e *AErr) Unwrap() error { return e.Err }

func BadRequest(msg string) error   { return &AErr{Code: resp.CodeBadRequest, Msg: msg} }
func Unauthorized(msg string) error { return &AErr{Code: resp.CodeUnauthorized, Msg: msg} }
func Forbidden(msg string) error    { return &AErr{Code: resp.CodeForbidden, Msg: msg} }
func NotFound(msg string) error     { return &AErr{Code: resp.CodeNotFound, Msg: msg} }
func Internal(msg string, err error) error {
	return &AErr{Code: resp.CodeServerError, Msg: msg, Err: err}
}

// Action 动作定义：I 入参，O 出参
type Action[I any, O any] struct {
	Method  string   // GET | POST | PUT | DELETE
	Path    string   // 例："/auth/login"、"/users/:username/enable"
	Binder  Binder
	Auth    bool     // 要求登录（AuthJWT 已写入 claims）
	Roles   []string // 任一即可
	Handler func(c *gin.Context, in *I) (O, error)
}

func RegisterAction[I any, O any](e EZ, a Action[I, O]) {
	h := func(c *gin.Context) {
		if a.Auth || len(a.Roles) > 0 {
			claims, ok := mdw.ClaimsFrom(c)
			if !ok {
				c.JSON(http.StatusOK, resp.Error(resp.CodeUnauthorized, "unauthorized"))
				return
			}
			if len(a.Roles) > 0 && !hasAnyRole(claims, a.Roles) {
				c.JSON(http.StatusOK, resp.Error(resp.CodeForbidden, "forbidden"))
				return
			}
		}

		var in I
		var bindErr error
		switch a.Binder {
		case BindJSON:
			bindErr = c.ShouldBindJSON(&in)
		case BindQuery:
			bindErr = c.ShouldBindQuery(&in)
		}
		if bindErr != nil {
			c.JSON(http.StatusOK, resp.Error(resp.CodeBadRequest, bindErr.Error()))
			return
		}

		out, err := a.Handler(c, &in)
		if err != nil {
			e.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, resp.OK(out))
	}

	switch strings.ToUpper(a.Method) {
	case http.MethodGet:
		e.g.GET(a.Path, h)
	case http.MethodPut:
		e.g.PUT(a.Path, h)
	case http.MethodDelete:
		e.g.DELETE(a.Path, h)
	default:
		e.g.POST(a.Path, h)
	}
}

func hasAnyRole(c *auth.Claims, roles []string) bool {
	for _, r := range roles {
		if c.HasRole(r) {
			return true
		}
	}
	return false
}

// writeError 统一错误映射
func (e EZ) writeError(c *gin.Context, err error) {
	var (
		ae *AErr
		ve *domain.ValidationError
	)
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusOK, resp.Fail(resp.CodeBadRequest, "validation failed", gin.H{"errors": ve.Messages}))
		return
	case errors.As(err, &ae):
		if ae.Code >= resp.CodeServerError {
			e.log.Error(ae.Msg, zap.String("path", c.FullPath()), zap.Error(ae.Err))
		}
		c.JSON(http.StatusOK, resp.Error(ae.Code, ae.Error()))
		return
	case errors.Is(err, domain.ErrUserNotFound):
		c.JSON(http.StatusOK, resp.Error(resp.CodeNotFound, err.Error()))
		return
	case errors.Is(err, domain.ErrInvalidCredentials):
		c.JSON(http.StatusOK, resp.Error(resp.CodeUnauthorized, err.Error()))
		return
	case errors.Is(err, domain.ErrUserDisabled):
		c.JSON(http.StatusOK, resp.Error(resp.CodeForbidden, err.Error()))
		return
	}
	e.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusOK, resp.Error(resp.CodeServerError, "internal error"))
}
