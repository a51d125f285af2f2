package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/kubeharbor/kubeharbor/internal/service"
	"github.com/kubeharbor/kubeharbor/internal/utils"
	pkgutils "github.com/kubeharbor/kubeharbor/pkg/utils"
	"gorm.io/gorm"
)

// actor 从JWT中间件写入的上下文取请求主体
func actor(c *gin.Context) string {
	if username, ok := c.Get("username"); ok {
		if s, ok := username.(string); ok && s != "" {
			return s
		}
	}
	return "system"
}

// writeServiceError 业务错误分类映射到响应码
func writeServiceError(c *gin.Context, err error) {
	switch {
	case service.IsValidation(err):
		pkgutils.Error(c, utils.ErrCodeValidationFailed, "%s", err.Error())
	case service.IsConflict(err):
		pkgutils.Error(c, utils.ErrCodeConflict, "%s", err.Error())
	case service.IsCredential(err):
		pkgutils.Error(c, utils.ErrCodeInvalidInput, "%s", err.Error())
	case errors.Is(err, gorm.ErrRecordNotFound):
		pkgutils.Error(c, utils.ErrCodeNotFound, "resource not found")
	default:
		pkgutils.Error(c, utils.ErrCodeInternalError, "%s", err.Error())
	}
}
