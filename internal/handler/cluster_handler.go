package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kubeharbor/kubeharbor/internal/repository"
	"github.com/kubeharbor/kubeharbor/internal/service"
	"github.com/kubeharbor/kubeharbor/internal/utils"
	pkgutils "github.com/kubeharbor/kubeharbor/pkg/utils"
)

type ClusterHandler struct {
	clusterService *service.ClusterService
}

func NewClusterHandler(clusterService *service.ClusterService) *ClusterHandler {
	return &ClusterHandler{clusterService: clusterService}
}

// ListClusters 分页列出集群台账
// GET /api/v1/clusters
func (h *ClusterHandler) ListClusters(c *gin.Context) {
	page := utils.ParseInt(c.DefaultQuery("page", "1"), 1)
	limit := utils.ParseInt(c.DefaultQuery("limit", "20"), 20)

	clusters, total, err := h.clusterService.ListClusters(repository.ListClustersParams{
		Page:   page,
		Limit:  limit,
		Status: c.Query("status"),
		Search: c.Query("search"),
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}

	pkgutils.Success(c, http.StatusOK, gin.H{
		"clusters": clusters,
		"total":    total,
		"page":     page,
		"limit":    limit,
	})
}

// GetCluster 查询单个集群
// GET /api/v1/clusters/:clusterId
func (h *ClusterHandler) GetCluster(c *gin.Context) {
	clusterID, err := utils.ParseUUID(c.Param("clusterId"))
	if err != nil {
		pkgutils.Error(c, utils.ErrCodeInvalidInput, "invalid cluster id: %s", c.Param("clusterId"))
		return
	}

	cluster, err := h.clusterService.GetCluster(clusterID)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	pkgutils.Success(c, http.StatusOK, cluster)
}

type UpdateClusterRequest struct {
	Region          string            `json:"region" binding:"omitempty,max=100"`
	EnvironmentType string            `json:"environment_type" binding:"omitempty,oneof=production staging development test"`
	Labels          map[string]string `json:"labels"`
}

// UpdateCluster 更新描述性字段
// PUT /api/v1/clusters/:clusterId
func (h *ClusterHandler) UpdateCluster(c *gin.Context) {
	clusterID, err := utils.ParseUUID(c.Param("clusterId"))
	if err != nil {
		pkgutils.Error(c, utils.ErrCodeInvalidInput, "invalid cluster id: %s", c.Param("clusterId"))
		return
	}

	var req UpdateClusterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		pkgutils.Error(c, utils.ErrCodeInvalidInput, "invalid request body: %v", err)
		return
	}

	cluster, err := h.clusterService.UpdateCluster(clusterID, req.Region, req.EnvironmentType, req.Labels, actor(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}

	pkgutils.Success(c, http.StatusOK, cluster)
}

// DeleteCluster 软删集群并停用其备份计划
// DELETE /api/v1/clusters/:clusterId
func (h *ClusterHandler) DeleteCluster(c *gin.Context) {
	clusterID, err := utils.ParseUUID(c.Param("clusterId"))
	if err != nil {
		pkgutils.Error(c, utils.ErrCodeInvalidInput, "invalid cluster id: %s", c.Param("clusterId"))
		return
	}

	if err := h.clusterService.DeleteCluster(clusterID, actor(c)); err != nil {
		writeServiceError(c, err)
		return
	}

	pkgutils.Success(c, http.StatusOK, gin.H{"deleted": true})
}
