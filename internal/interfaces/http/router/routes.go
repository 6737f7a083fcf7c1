// Package router 提供 HTTP 路由配置
package router

import (
	"github.com/gin-gonic/gin"
)

// RegisterV1Routes 注册 v1 版本路由
func RegisterV1Routes(v1 *gin.RouterGroup, h RouterHandlers) {
	if h.Catalog != nil {
		v1.GET("/catalog", h.Catalog.GetCatalog)
	}
	if h.Usage != nil {
		v1.GET("/usage", h.Usage.ListUsage)
	}

	s := h.Session
	if s == nil {
		return
	}

	sessions := v1.Group("/sessions")
	{
		sessions.POST("", s.CreateSession)
		sessions.GET("/:sid", s.GetSession)
		sessions.DELETE("/:sid", s.DeleteSession)

		// 参考图
		sessions.POST("/:sid/attachments", s.UploadAttachments)
		sessions.DELETE("/:sid/attachments", s.ClearAttachments)
		sessions.DELETE("/:sid/attachments/:idx", s.RemoveAttachment)

		sessions.POST("/:sid/messages", s.SendMessage)
		sessions.GET("/:sid/events", s.StreamEvents) // SSE

		// 动作
		sessions.POST("/:sid/turns/:tid/confirm", s.ConfirmAction)
		sessions.POST("/:sid/turns/:tid/cancel", s.CancelAction)
		sessions.PATCH("/:sid/turns/:tid/params", s.EditAction)
		sessions.POST("/:sid/turns/:tid/retry", s.RetryTurn)
	}
}
