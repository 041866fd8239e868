package middleware

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/qhomebase/contract-renewal/pkg/logctx"
)

// RequestLoggerMiddleware attaches a request-scoped logger enriched with
// trace_id and user_id (if present) to gin.Context and request context.
// Mount it after AuthMiddleware so the user is known.
func RequestLoggerMiddleware(base *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		traceID := logctx.TraceID(ctx)

		fields := []interface{}{"trace_id", traceID}
		if uid := logctx.UserID(ctx); uid != "" {
			fields = append(fields, "user_id", uid)
		}
		reqLogger := base.With(fields...)
		c.Set(logctx.KeyLogger, reqLogger)
		c.Request = c.Request.WithContext(logctx.WithLogger(ctx, reqLogger))

		// mirror trace id to response header when available
		if traceID != "" {
			c.Writer.Header().Set(HeaderRequestID, traceID)
		}

		c.Next()
	}
}
