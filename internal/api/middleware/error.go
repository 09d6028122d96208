package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/frostdev-ops/pma-solar-go/pkg/errors"
	"github.com/frostdev-ops/pma-solar-go/pkg/utils"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ErrorHandlingMiddleware recovers from panics in handlers and returns a
// uniform error payload. An AppError keeps its status code and message;
// anything else becomes an opaque 500.
func ErrorHandlingMiddleware(logger *logrus.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logger.WithFields(logrus.Fields{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
			"panic":  recovered,
			"stack":  string(debug.Stack()),
		}).Error("Panic recovered in HTTP handler")

		if appErr, ok := recovered.(*errors.AppError); ok {
			utils.SendError(c, appErr.Code, appErr.Message)
		} else if err, ok := recovered.(error); ok {
			utils.SendError(c, errors.GetStatusCode(err), "Internal server error")
		} else {
			utils.SendError(c, http.StatusInternalServerError, "Internal server error")
		}
		c.Abort()
	})
}
