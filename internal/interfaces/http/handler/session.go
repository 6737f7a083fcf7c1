// Package handler 提供 HTTP 请求处理器
package handler

import (
	"io"
	"mime/multipart"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"z-genstudio-api/internal/application/attachment"
	"z-genstudio-api/internal/application/conversation"
	"z-genstudio-api/internal/domain/service"
	"z-genstudio-api/internal/interfaces/http/dto"
	"z-genstudio-api/internal/interfaces/http/middleware"
	"z-genstudio-api/pkg/logger"
)

const (
	eventBuffer       = 8
	heartbeatInterval = 15 * time.Second
	attachmentField   = "files"
)

// SessionHandler 创作会话处理器
type SessionHandler struct {
	registry *conversation.Registry
}

// NewSessionHandler 创建会话处理器
func NewSessionHandler(registry *conversation.Registry) *SessionHandler {
	return &SessionHandler{registry: registry}
}

// CreateSession 创建会话
// @Summary 创建创作会话
// @Description 以当前钱包创建会话，初始余额取自钱包
// @Tags Sessions
// @Produce json
// @Success 201 {object} dto.Response[dto.SessionStateResponse]
// @Failure 401 {object} dto.ErrorResponse
// @Router /v1/sessions [post]
func (h *SessionHandler) CreateSession(c *gin.Context) {
	ctx := c.Request.Context()
	session := service.StaticSession{
		User:     middleware.GetUserIDFromGin(c),
		WalletID: middleware.GetWalletIDFromGin(c),
	}

	o, err := h.registry.Create(ctx, session)
	if err != nil {
		renderError(c, err)
		return
	}

	logger.Info(logger.WithContext(ctx, logger.SessionIDKey, o.ID()), "session created")
	dto.Created(c, dto.NewSessionState(o.ID(), o.State()))
}

// GetSession 获取会话状态
// @Summary 获取会话状态快照
// @Tags Sessions
// @Produce json
// @Param sid path string true "会话 ID"
// @Success 200 {object} dto.Response[dto.SessionStateResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/sessions/{sid} [get]
func (h *SessionHandler) GetSession(c *gin.Context) {
	o, ok := h.session(c)
	if !ok {
		return
	}
	dto.Success(c, dto.NewSessionState(o.ID(), o.State()))
}

// DeleteSession 关闭会话，等待在途生成结束
// @Summary 关闭会话
// @Tags Sessions
// @Param sid path string true "会话 ID"
// @Success 204
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/sessions/{sid} [delete]
func (h *SessionHandler) DeleteSession(c *gin.Context) {
	if err := h.registry.Delete(c.Param("sid"), middleware.GetWalletIDFromGin(c)); err != nil {
		renderError(c, err)
		return
	}
	dto.NoContent(c)
}

// UploadAttachments 导入参考图
// @Summary 上传参考图
// @Description multipart 表单字段 files，可多文件；超出容量的文件被忽略
// @Tags Attachments
// @Accept multipart/form-data
// @Produce json
// @Param sid path string true "会话 ID"
// @Success 200 {object} dto.Response[dto.AttachmentsResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Router /v1/sessions/{sid}/attachments [post]
func (h *SessionHandler) UploadAttachments(c *gin.Context) {
	o, ok := h.session(c)
	if !ok {
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		dto.BadRequest(c, "invalid multipart form: "+err.Error())
		return
	}
	headers := form.File[attachmentField]
	if len(headers) == 0 {
		dto.BadRequest(c, "no files in field "+attachmentField)
		return
	}

	files := make([]attachment.File, 0, len(headers))
	for _, fh := range headers {
		files = append(files, multipartFile(fh))
	}

	report := o.Attachments().Ingest(c.Request.Context(), files)
	dto.Success(c, &dto.AttachmentsResponse{
		Report:      &report,
		Attachments: dto.NewAttachmentViews(o.Attachments().List()),
	})
}

// RemoveAttachment 删除指定槽位
// @Summary 删除参考图
// @Tags Attachments
// @Produce json
// @Param sid path string true "会话 ID"
// @Param idx path int true "槽位索引"
// @Success 200 {object} dto.Response[dto.AttachmentsResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Router /v1/sessions/{sid}/attachments/{idx} [delete]
func (h *SessionHandler) RemoveAttachment(c *gin.Context) {
	o, ok := h.session(c)
	if !ok {
		return
	}
	idx, err := strconv.Atoi(c.Param("idx"))
	if err != nil {
		dto.BadRequest(c, "invalid attachment index")
		return
	}
	if err := o.Attachments().Remove(idx); err != nil {
		renderError(c, err)
		return
	}
	dto.Success(c, &dto.AttachmentsResponse{Attachments: dto.NewAttachmentViews(o.Attachments().List())})
}

// ClearAttachments 清空参考图
// @Summary 清空参考图
// @Tags Attachments
// @Param sid path string true "会话 ID"
// @Success 204
// @Router /v1/sessions/{sid}/attachments [delete]
func (h *SessionHandler) ClearAttachments(c *gin.Context) {
	o, ok := h.session(c)
	if !ok {
		return
	}
	o.Attachments().Clear()
	dto.NoContent(c)
}

// SendMessage 发送消息，等待助手解析结果后返回助手 Turn
// @Summary 发送消息
// @Tags Sessions
// @Accept json
// @Produce json
// @Param sid path string true "会话 ID"
// @Param body body dto.SendMessageRequest true "消息"
// @Success 200 {object} dto.Response[dto.TurnResponse]
// @Failure 409 {object} dto.ErrorResponse
// @Router /v1/sessions/{sid}/messages [post]
func (h *SessionHandler) SendMessage(c *gin.Context) {
	o, ok := h.session(c)
	if !ok {
		return
	}
	var req dto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	turn, err := o.Send(c.Request.Context(), req.Text)
	if err != nil {
		renderError(c, err)
		return
	}
	dto.Success(c, &dto.TurnResponse{Turn: turn})
}

// ConfirmAction 确认提案并进入后台执行
// @Summary 确认动作
// @Description 可在确认时附带最终参数修改，成本按最终参数重算
// @Tags Actions
// @Accept json
// @Produce json
// @Param sid path string true "会话 ID"
// @Param tid path string true "提案 Turn ID"
// @Param body body dto.ConfirmActionRequest false "参数修改"
// @Success 202 {object} dto.Response[dto.TurnResponse]
// @Failure 402 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Router /v1/sessions/{sid}/turns/{tid}/confirm [post]
func (h *SessionHandler) ConfirmAction(c *gin.Context) {
	o, ok := h.session(c)
	if !ok {
		return
	}
	var req dto.ConfirmActionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			dto.BadRequest(c, "invalid request body: "+err.Error())
			return
		}
	}

	turn, err := o.ConfirmAction(c.Request.Context(), c.Param("tid"), req.Edits)
	if err != nil {
		renderError(c, err)
		return
	}
	dto.Accepted(c, &dto.TurnResponse{Turn: turn})
}

// EditAction 修改提案参数，返回新的选择与费用
// @Summary 修改动作参数
// @Description 只影响确认前的工作选择，未知取值返回 400
// @Tags Actions
// @Accept json
// @Produce json
// @Param sid path string true "会话 ID"
// @Param tid path string true "提案 Turn ID"
// @Param body body dto.EditParamRequest true "参数名与取值"
// @Success 200 {object} dto.Response[dto.ActionPreviewResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Router /v1/sessions/{sid}/turns/{tid}/params [patch]
func (h *SessionHandler) EditAction(c *gin.Context) {
	o, ok := h.session(c)
	if !ok {
		return
	}
	var req dto.EditParamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	preview, err := o.EditAction(c.Request.Context(), c.Param("tid"), req.Name, req.Value)
	if err != nil {
		renderError(c, err)
		return
	}
	dto.Success(c, &dto.ActionPreviewResponse{
		Type:             preview.Params.Kind(),
		Params:           preview.Params,
		EstimatedCredits: preview.EstimatedCredits,
	})
}

// CancelAction 取消提案
// @Summary 取消动作
// @Tags Actions
// @Produce json
// @Param sid path string true "会话 ID"
// @Param tid path string true "提案 Turn ID"
// @Success 200 {object} dto.Response[dto.TurnResponse]
// @Failure 409 {object} dto.ErrorResponse
// @Router /v1/sessions/{sid}/turns/{tid}/cancel [post]
func (h *SessionHandler) CancelAction(c *gin.Context) {
	o, ok := h.session(c)
	if !ok {
		return
	}
	turn, err := o.CancelAction(c.Request.Context(), c.Param("tid"))
	if err != nil {
		renderError(c, err)
		return
	}
	dto.Success(c, &dto.TurnResponse{Turn: turn})
}

// RetryTurn 重试传输失败的 Turn
// @Summary 重试
// @Tags Actions
// @Produce json
// @Param sid path string true "会话 ID"
// @Param tid path string true "失败 Turn ID"
// @Success 200 {object} dto.Response[dto.TurnResponse]
// @Failure 409 {object} dto.ErrorResponse
// @Router /v1/sessions/{sid}/turns/{tid}/retry [post]
func (h *SessionHandler) RetryTurn(c *gin.Context) {
	o, ok := h.session(c)
	if !ok {
		return
	}
	turn, err := o.Retry(c.Request.Context(), c.Param("tid"))
	if err != nil {
		renderError(c, err)
		return
	}
	dto.Success(c, &dto.TurnResponse{Turn: turn})
}

// StreamEvents 以 SSE 推送会话状态快照
// @Summary 订阅会话状态
// @Description 连接后立即推送当前状态，之后每次变化推送最新快照
// @Tags Sessions
// @Produce text/event-stream
// @Param sid path string true "会话 ID"
// @Success 200 "SSE stream"
// @Router /v1/sessions/{sid}/events [get]
func (h *SessionHandler) StreamEvents(c *gin.Context) {
	o, ok := h.session(c)
	if !ok {
		return
	}

	states, cancel := o.Subscribe(eventBuffer)
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case s, open := <-states:
			if !open {
				c.SSEvent("closed", gin.H{"session_id": o.ID()})
				return false
			}
			c.SSEvent("state", dto.NewSessionState(o.ID(), s))
			return true

		case <-heartbeat.C:
			c.SSEvent("ping", gin.H{"ts": time.Now().Unix()})
			return true

		case <-c.Request.Context().Done():
			return false
		}
	})
}

// session 按路径参数取当前钱包的会话，失败时已写出响应
func (h *SessionHandler) session(c *gin.Context) (*conversation.Orchestrator, bool) {
	o, err := h.registry.Get(c.Param("sid"), middleware.GetWalletIDFromGin(c))
	if err != nil {
		renderError(c, err)
		return nil, false
	}
	ctx := logger.WithContext(c.Request.Context(), logger.SessionIDKey, o.ID())
	c.Request = c.Request.WithContext(ctx)
	return o, true
}

func multipartFile(fh *multipart.FileHeader) attachment.File {
	return attachment.File{
		Name:        fh.Filename,
		Size:        fh.Size,
		ContentType: fh.Header.Get("Content-Type"),
		Open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}
}
