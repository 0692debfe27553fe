package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	resp "onlineshop/internal/transport/http/response"
)

// MaxBodyBytes rejects a declared oversize body up front and caps reads of
// the rest; binding an over-long chunked body then fails with 400.
func MaxBodyBytes(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > n {
			c.AbortWithStatusJSON(http.StatusOK, resp.Error(resp.CodeBadRequest, "request body too large"))
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		c.Next()
	}
}
