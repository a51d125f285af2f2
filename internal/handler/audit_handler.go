package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kubeharbor/kubeharbor/internal/service"
	"github.com/kubeharbor/kubeharbor/internal/utils"
	pkgutils "github.com/kubeharbor/kubeharbor/pkg/utils"
)

type AuditHandler struct {
	auditService *service.AuditService
}

func NewAuditHandler(auditService *service.AuditService) *AuditHandler {
	return &AuditHandler{auditService: auditService}
}

// ListEvents 审计事件按时间倒序分页
// GET /api/v1/audit-events
func (h *AuditHandler) ListEvents(c *gin.Context) {
	clusterID := c.Query("cluster_id")
	if clusterID != "" {
		if _, err := utils.ParseUUID(clusterID); err != nil {
			pkgutils.Error(c, utils.ErrCodeInvalidInput, "invalid cluster id: %s", clusterID)
			return
		}
	}

	page := utils.ParseInt(c.DefaultQuery("page", "1"), 1)
	limit := utils.ParseInt(c.DefaultQuery("limit", "50"), 50)

	events, total, err := h.auditService.List(clusterID, page, limit)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	pkgutils.Success(c, http.StatusOK, gin.H{
		"events": events,
		"total":  total,
		"page":   page,
		"limit":  limit,
	})
}
