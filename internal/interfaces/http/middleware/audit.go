// Package middleware 提供 HTTP 中间件
package middleware

import (
	"time"

	"z-genstudio-api/pkg/logger"

	"github.com/gin-gonic/gin"
)

// AccessLog 请求访问日志，钱包与请求 ID 由日志 Context 带出
// 探活路径不记录
func AccessLog(skipPaths []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if skipped(c.Request.URL.Path, skipPaths) {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		args := []any{
			"method", c.Request.Method,
			"route", c.FullPath(),
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
			"ip", c.ClientIP(),
			"body_size", c.Writer.Size(),
		}
		if status >= 500 {
			logger.Warn(c.Request.Context(), "api request failed", args...)
			return
		}
		logger.Info(c.Request.Context(), "api request", args...)
	}
}
