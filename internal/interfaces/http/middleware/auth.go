// Package middleware 提供 HTTP 中间件
package middleware

import (
	"errors"
	"strings"

	apperrors "z-genstudio-api/pkg/errors"
	"z-genstudio-api/pkg/logger"
	"z-genstudio-api/pkg/utils"

	"github.com/gin-gonic/gin"
)

const (
	// WalletIDHeader 关闭认证时从该头读取钱包 ID，仅用于本地开发
	WalletIDHeader = "X-Wallet-ID"
	// UserIDHeader 关闭认证时从该头读取用户 ID
	UserIDHeader = "X-User-ID"

	ctxWalletID = "wallet_id"
	ctxUserID   = "user_id"
)

// AuthConfig 认证配置
type AuthConfig struct {
	Secret    string
	Issuer    string
	SkipPaths []string
	Enabled   bool
}

// Auth 认证中间件
// 解析出的 user_id 与 wallet_id 同时写入 gin Context 与日志 Context
func Auth(cfg AuthConfig) gin.HandlerFunc {
	jwtManager := utils.NewJWTManager(cfg.Secret, cfg.Issuer)

	return func(c *gin.Context) {
		if skipped(c.Request.URL.Path, cfg.SkipPaths) {
			c.Next()
			return
		}

		if !cfg.Enabled {
			bind(c, c.GetHeader(UserIDHeader), c.GetHeader(WalletIDHeader))
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortUnauthorized(c, apperrors.ErrTokenMissing)
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			abortUnauthorized(c, apperrors.ErrTokenInvalid.WithDetail("invalid authorization format"))
			return
		}

		claims, err := jwtManager.ParseToken(parts[1])
		if err != nil {
			appErr := apperrors.ErrTokenInvalid
			if errors.Is(err, utils.ErrExpiredToken) {
				appErr = apperrors.ErrTokenExpired
			}
			abortUnauthorized(c, appErr)
			return
		}

		if claims.Type != utils.TokenTypeAccess {
			abortUnauthorized(c, apperrors.ErrTokenInvalid.WithDetail("invalid token type"))
			return
		}

		bind(c, claims.UserID, claims.WalletID)
		c.Next()
	}
}

func skipped(path string, skip []string) bool {
	for _, p := range skip {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

func bind(c *gin.Context, userID, walletID string) {
	userID, walletID = strings.TrimSpace(userID), strings.TrimSpace(walletID)
	ctx := c.Request.Context()
	if userID != "" {
		c.Set(ctxUserID, userID)
		ctx = logger.WithContext(ctx, logger.UserIDKey, userID)
	}
	if walletID != "" {
		c.Set(ctxWalletID, walletID)
		ctx = logger.WithContext(ctx, logger.WalletIDKey, walletID)
	}
	c.Request = c.Request.WithContext(ctx)
}

// abortUnauthorized 终止请求并返回 401
func abortUnauthorized(c *gin.Context, e *apperrors.AppError) {
	body := gin.H{
		"code":     string(e.Code),
		"message":  e.Message,
		"trace_id": c.GetString("trace_id"),
	}
	if e.Detail != "" {
		body["details"] = e.Detail
	}
	c.AbortWithStatusJSON(e.HTTPStatus, body)
}

// GetWalletIDFromGin 当前请求的钱包 ID，未认证时为空
func GetWalletIDFromGin(c *gin.Context) string {
	return c.GetString(ctxWalletID)
}

// GetUserIDFromGin 当前请求的用户 ID
func GetUserIDFromGin(c *gin.Context) string {
	return c.GetString(ctxUserID)
}

// DefaultSkipPaths 默认跳过认证的路径
var DefaultSkipPaths = []string{
	"/health",
	"/ready",
	"/live",
	"/metrics",
}
