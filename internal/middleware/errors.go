package middleware

import (
	"log/slog"

	"commUnity/internal/pkg"

	"github.com/gin-gonic/gin"
)

// ErrorHandler 统一把 c.Errors 转成 {"message": ...}，内部错误只记录日志不外泄
func ErrorHandler(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err
		appErr := pkg.AsAppError(err)
		if appErr.Kind == pkg.KindInternal {
			logger.ErrorContext(c.Request.Context(), "request failed",
				slog.String("request_id", c.GetString(RequestIDKey)),
				slog.String("method", c.Request.Method),
				slog.String("path", c.FullPath()),
				slog.Any("error", err),
			)
		}
		c.JSON(appErr.Kind.HTTPStatus(), gin.H{"message": appErr.Message})
	}
}
