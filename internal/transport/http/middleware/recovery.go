package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"scholarbridge/internal/transport/http/response"
)

func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				slog.Error("panic recovered",
					"error", err,
					"request_id", GetRequestID(c),
					"method", c.Request.Method,
					"path", c.Request.URL.Path,
					"stack", string(debug.Stack()),
				)
				if c.Writer.Written() {
					c.Abort()
					return
				}
				response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "internal server error")
				c.Abort()
			}
		}()

		c.Next()
	}
}
