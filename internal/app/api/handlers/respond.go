package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/qhomebase/contract-renewal/pkg/logctx"
	"github.com/qhomebase/contract-renewal/pkg/response"
)

// fail writes the error envelope. Unexpected errors are logged at error level,
// domain rejections at info.
func fail(c *gin.Context, log *zap.SugaredLogger, err error) {
	code := response.CodeOf(err)
	l := logctx.FromGin(c, log)
	if code == response.APIResponseCodeError || code == response.APIResponseCodeUpstream {
		l.Errorw("request failed", "err", err)
	} else {
		l.Infow("request rejected", "code", code, "err", err)
	}
	_ = c.Error(err)
	c.JSON(http.StatusOK, response.FromError(err))
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
}

func actingUser(c *gin.Context) string {
	return logctx.UserID(c.Request.Context())
}
