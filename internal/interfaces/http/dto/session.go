package dto

import (
	"z-genstudio-api/internal/application/attachment"
	"z-genstudio-api/internal/application/conversation"
	"z-genstudio-api/internal/application/params"
	"z-genstudio-api/internal/application/pricing"
	"z-genstudio-api/internal/domain/entity"
)

// SendMessageRequest 发送消息请求
type SendMessageRequest struct {
	Text string `json:"text" binding:"required"`
}

// ConfirmActionRequest 确认动作请求，edits 为确认前的最终参数修改
type ConfirmActionRequest struct {
	Edits map[string]string `json:"edits,omitempty"`
}

// EditParamRequest 修改提案上的单个参数
type EditParamRequest struct {
	Name  string `json:"name" binding:"required"`
	Value string `json:"value" binding:"required"`
}

// ActionPreviewResponse 编辑后的参数与预估费用
type ActionPreviewResponse struct {
	Type             entity.ActionType `json:"type"`
	Params           entity.Params     `json:"params"`
	EstimatedCredits int               `json:"estimated_credits"`
}

// AttachmentView 附件槽位，不回传图片数据
type AttachmentView struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	MIME  string `json:"mime"`
	Size  int64  `json:"size"`
	Base  bool   `json:"base"`
}

// SessionStateResponse 会话状态快照
type SessionStateResponse struct {
	SessionID    string           `json:"session_id"`
	Version      uint64           `json:"version"`
	Balance      int              `json:"balance"`
	IsLoading    bool             `json:"is_loading"`
	IsGenerating bool             `json:"is_generating"`
	Attachments  []AttachmentView `json:"attachments"`
	Turns        []*entity.Turn   `json:"turns"`
}

// AttachmentsResponse 附件导入结果
type AttachmentsResponse struct {
	Report      *attachment.IngestReport `json:"report,omitempty"`
	Attachments []AttachmentView         `json:"attachments"`
}

// TurnResponse 操作产生的 Turn
type TurnResponse struct {
	Turn *entity.Turn `json:"turn"`
}

// CatalogResponse 参数目录与价目表
type CatalogResponse struct {
	Catalog params.Catalog    `json:"catalog"`
	Prices  pricing.PriceList `json:"prices"`
}

// NewSessionState 由编排器快照构造响应
func NewSessionState(sessionID string, s conversation.State) *SessionStateResponse {
	turns := s.Turns
	if turns == nil {
		turns = []*entity.Turn{}
	}
	return &SessionStateResponse{
		SessionID:    sessionID,
		Version:      s.Version,
		Balance:      s.Balance,
		IsLoading:    s.IsLoading,
		IsGenerating: s.IsGenerating,
		Attachments:  NewAttachmentViews(s.Attachments),
		Turns:        turns,
	}
}

// NewAttachmentViews 槽位转视图
func NewAttachmentViews(slots []attachment.Slot) []AttachmentView {
	out := make([]AttachmentView, 0, len(slots))
	for i, s := range slots {
		out = append(out, AttachmentView{
			Index: i,
			Name:  s.Name,
			MIME:  s.MIME,
			Size:  s.Size,
			Base:  s.Base,
		})
	}
	return out
}
