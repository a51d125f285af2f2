package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kubeharbor/kubeharbor/internal/repository"
	pkgutils "github.com/kubeharbor/kubeharbor/pkg/utils"
)

// InventoryHandler 租户/环境/应用的只读清单接口
type InventoryHandler struct {
	inventoryRepo *repository.InventoryRepository
}

func NewInventoryHandler(inventoryRepo *repository.InventoryRepository) *InventoryHandler {
	return &InventoryHandler{inventoryRepo: inventoryRepo}
}

// GET /api/v1/tenants
func (h *InventoryHandler) ListTenants(c *gin.Context) {
	tenants, err := h.inventoryRepo.ListTenants()
	if err != nil {
		writeServiceError(c, err)
		return
	}
	pkgutils.Success(c, http.StatusOK, gin.H{"tenants": tenants})
}

// GET /api/v1/environments
func (h *InventoryHandler) ListEnvironments(c *gin.Context) {
	environments, err := h.inventoryRepo.ListEnvironments(c.Query("tenant_id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	pkgutils.Success(c, http.StatusOK, gin.H{"environments": environments})
}

// GET /api/v1/applications
func (h *InventoryHandler) ListApplications(c *gin.Context) {
	applications, err := h.inventoryRepo.ListApplications(c.Query("environment_id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	pkgutils.Success(c, http.StatusOK, gin.H{"applications": applications})
}
