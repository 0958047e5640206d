package public

import "github.com/dujiao-next/voucher-ledger/internal/provider"

// Handler 用户侧接口处理器入口
// 说明：该处理器仅用于买家（用户 JWT）API。
type Handler struct {
	*provider.Container
}

// New 创建用户侧处理器
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}
