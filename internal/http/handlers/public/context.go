package public

import (
	handlershared "github.com/dujiao-next/voucher-ledger/internal/http/handlers/shared"

	"github.com/gin-gonic/gin"
)

// UserIDKey 用户 ID 上下文键
const UserIDKey = "user_id"

func getUserID(c *gin.Context) (uint, bool) {
	return handlershared.GetContextUint(c, UserIDKey)
}

func respondError(c *gin.Context, code int, msg string, err error) {
	handlershared.RespondError(c, code, msg, err)
}

func respondLedgerError(c *gin.Context, err error) {
	handlershared.RespondLedgerError(c, err)
}
