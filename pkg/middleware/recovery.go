package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/richxcame/giftcard-checkout/pkg/common"
	"github.com/richxcame/giftcard-checkout/pkg/logger"
	"go.uber.org/zap"
)

// Recovery turns a panic into a masked 500. It sits outside the Sentry middleware, which reports and re-panics.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			recovered := recover()
			if recovered == nil {
				return
			}

			logger.WithContext(c.Request.Context()).Error("panic recovered",
				zap.Any("panic", recovered),
				zap.String("method", c.Request.Method),
				zap.String("route", c.FullPath()),
				zap.Stack("stack"),
			)
			if !c.Writer.Written() {
				common.AppErrorResponse(c, common.NewInternalError("internal server error", nil))
			}
			c.Abort()
		}()

		c.Next()
	}
}
