package admin

import (
	"fmt"
	"strings"

	handlershared "github.com/dujiao-next/voucher-ledger/internal/http/handlers/shared"

	"github.com/gin-gonic/gin"
)

const (
	// AdminIDKey 管理员 ID 上下文键
	AdminIDKey = "admin_id"
	// AdminUsernameKey 管理员用户名上下文键
	AdminUsernameKey = "username"
)

func getAdminID(c *gin.Context) (uint, bool) {
	return handlershared.GetContextUint(c, AdminIDKey)
}

// getPerformer 核销操作人：优先用户名，缺省为 admin:<id>
func getPerformer(c *gin.Context) (string, bool) {
	adminID, ok := getAdminID(c)
	if !ok {
		return "", false
	}
	if username := strings.TrimSpace(handlershared.GetContextString(c, AdminUsernameKey)); username != "" {
		return username, true
	}
	return fmt.Sprintf("admin:%d", adminID), true
}

func respondError(c *gin.Context, code int, msg string, err error) {
	handlershared.RespondError(c, code, msg, err)
}

func respondLedgerError(c *gin.Context, err error) {
	handlershared.RespondLedgerError(c, err)
}
