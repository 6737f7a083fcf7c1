package handler

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"

	"z-genstudio-api/internal/domain/entity"
	"z-genstudio-api/internal/domain/repository"
	"z-genstudio-api/internal/interfaces/http/dto"
	"z-genstudio-api/internal/interfaces/http/middleware"
)

// UsageLister 按钱包分页查询结算记录
type UsageLister interface {
	List(ctx context.Context, walletID string, page, pageSize int) (*repository.PagedResult[*entity.GenerationUsageEvent], error)
}

// UsageHandler 生成用量处理器
type UsageHandler struct {
	usage UsageLister
}

// NewUsageHandler 创建用量处理器
func NewUsageHandler(usage UsageLister) *UsageHandler {
	return &UsageHandler{usage: usage}
}

// ListUsage 当前钱包的生成结算记录，按时间倒序
// @Summary 生成用量
// @Tags Usage
// @Produce json
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} dto.Response[[]dto.UsageEventResponse]
// @Router /v1/usage [get]
func (h *UsageHandler) ListUsage(c *gin.Context) {
	walletID := middleware.GetWalletIDFromGin(c)
	if walletID == "" {
		dto.Unauthorized(c, "wallet not identified")
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	res, err := h.usage.List(c.Request.Context(), walletID, page, pageSize)
	if err != nil {
		renderError(c, err)
		return
	}
	dto.SuccessWithPage(c, dto.NewUsageEventResponses(res.Items), dto.NewPageMeta(res.Page, res.PageSize, int(res.Total)))
}
