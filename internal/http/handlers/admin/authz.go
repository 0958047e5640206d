package admin

import (
	"github.com/dujiao-next/voucher-ledger/internal/authz"
	"github.com/dujiao-next/voucher-ledger/internal/http/response"

	"github.com/gin-gonic/gin"
)

// AuthzMeResponse 当前管理员的角色与生效策略
type AuthzMeResponse struct {
	AdminID  uint           `json:"admin_id"`
	Roles    []string       `json:"roles"`
	Policies []authz.Policy `json:"policies"`
}

// GetAuthzMe 查询当前管理员的角色与策略
func (h *Handler) GetAuthzMe(c *gin.Context) {
	adminID, ok := getAdminID(c)
	if !ok {
		return
	}
	if h.AuthzService == nil {
		respondError(c, response.CodeInternal, "authz unavailable", nil)
		return
	}
	roles, err := h.AuthzService.GetAdminRoles(adminID)
	if err != nil {
		respondError(c, response.CodeInternal, "load roles failed", err)
		return
	}
	policies, err := h.AuthzService.GetAdminPolicies(adminID)
	if err != nil {
		respondError(c, response.CodeInternal, "load policies failed", err)
		return
	}
	response.Success(c, AuthzMeResponse{AdminID: adminID, Roles: roles, Policies: policies})
}

// ListAuthzRoles 列出已登记的角色
func (h *Handler) ListAuthzRoles(c *gin.Context) {
	if h.AuthzService == nil {
		respondError(c, response.CodeInternal, "authz unavailable", nil)
		return
	}
	roles, err := h.AuthzService.ListRoles()
	if err != nil {
		respondError(c, response.CodeInternal, "load roles failed", err)
		return
	}
	response.Success(c, roles)
}
