package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kubeharbor/kubeharbor/internal/service"
	"github.com/kubeharbor/kubeharbor/internal/utils"
	pkgutils "github.com/kubeharbor/kubeharbor/pkg/utils"
)

type AuthHandler struct {
	authService *service.AuthService
}

func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

type TokenRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// IssueToken 用服务账号换取访问令牌
// POST /api/v1/auth/token
func (h *AuthHandler) IssueToken(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		pkgutils.Error(c, utils.ErrCodeInvalidInput, "invalid request body: %v", err)
		return
	}

	token, expiresAt, err := h.authService.IssueToken(req.Username, req.Password)
	if err != nil {
		pkgutils.Error(c, utils.ErrCodeUnauthorized, "invalid credentials")
		return
	}

	pkgutils.Success(c, http.StatusOK, gin.H{
		"token":      token,
		"expires_at": expiresAt,
	})
}
