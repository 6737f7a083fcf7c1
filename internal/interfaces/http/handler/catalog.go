package handler

import (
	"github.com/gin-gonic/gin"

	"z-genstudio-api/internal/application/params"
	"z-genstudio-api/internal/application/pricing"
	"z-genstudio-api/internal/interfaces/http/dto"
)

// CatalogHandler 参数目录处理器
type CatalogHandler struct {
	resolver *params.Resolver
}

// NewCatalogHandler 创建目录处理器
func NewCatalogHandler(resolver *params.Resolver) *CatalogHandler {
	return &CatalogHandler{resolver: resolver}
}

// GetCatalog 获取参数取值范围与价目表
// @Summary 参数目录
// @Tags Catalog
// @Produce json
// @Success 200 {object} dto.Response[dto.CatalogResponse]
// @Router /v1/catalog [get]
func (h *CatalogHandler) GetCatalog(c *gin.Context) {
	dto.Success(c, &dto.CatalogResponse{
		Catalog: h.resolver.Catalog(),
		Prices:  pricing.Prices(),
	})
}
