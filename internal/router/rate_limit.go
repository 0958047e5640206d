package router

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	publichandlers "github.com/dujiao-next/voucher-ledger/internal/http/handlers/public"
	"github.com/dujiao-next/voucher-ledger/internal/http/response"
	"github.com/dujiao-next/voucher-ledger/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// RateLimitKeyFunc 生成限流 key 的函数
type RateLimitKeyFunc func(*gin.Context) string

// RateLimitRule 固定窗口限流规则
type RateLimitRule struct {
	Prefix        string
	WindowSeconds int
	MaxRequests   int
	Message       string
}

func (r RateLimitRule) enabled() bool {
	return r.WindowSeconds > 0 && r.MaxRequests > 0
}

// 窗口首次计数时设置过期，返回 {当前计数, 剩余秒数}
var fixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
	redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return {current, redis.call("TTL", KEYS[1])}
`)

var errRateLimitReply = errors.New("unexpected rate limit reply")

// rateVerdict 单次计数后的判定
type rateVerdict struct {
	Count      int64
	RetryAfter int
	Limited    bool
}

func judgeWindow(reply []int64, rule RateLimitRule) (rateVerdict, error) {
	if len(reply) < 2 {
		return rateVerdict{}, errRateLimitReply
	}
	verdict := rateVerdict{Count: reply[0]}
	if verdict.Count <= int64(rule.MaxRequests) {
		return verdict, nil
	}
	verdict.Limited = true
	verdict.RetryAfter = int(reply[1])
	if verdict.RetryAfter < 1 {
		verdict.RetryAfter = max(rule.WindowSeconds, 1)
	}
	return verdict, nil
}

func (r RateLimitRule) key(c *gin.Context, keyFunc RateLimitKeyFunc) string {
	key := ""
	if keyFunc != nil {
		key = strings.TrimSpace(keyFunc(c))
	}
	if key == "" {
		key = c.ClientIP()
	}
	if r.Prefix == "" {
		return key
	}
	return r.Prefix + ":" + key
}

// RateLimitMiddleware Redis 固定窗口限流，Redis 不可用时拒绝请求
func RateLimitMiddleware(client *redis.Client, rule RateLimitRule, keyFunc RateLimitKeyFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if client == nil || !rule.enabled() {
			c.Next()
			return
		}

		key := rule.key(c, keyFunc)
		reply, err := fixedWindowScript.Run(c.Request.Context(), client, []string{key}, rule.WindowSeconds).Int64Slice()
		var verdict rateVerdict
		if err == nil {
			verdict, err = judgeWindow(reply, rule)
		}
		if err != nil {
			logger.Warnw("rate_limit_unavailable", "key", key, "error", err)
			response.Error(c, response.CodeInternal, "rate limit unavailable")
			c.Abort()
			return
		}
		if verdict.Limited {
			msg := strings.TrimSpace(rule.Message)
			if msg == "" {
				msg = "too many requests"
			}
			c.Header("Retry-After", strconv.Itoa(verdict.RetryAfter))
			response.ErrorWithReason(c, response.CodeTooManyRequests, "rate_limited", fmt.Sprintf("%s, retry after %d seconds", msg, verdict.RetryAfter))
			c.Abort()
			return
		}
		c.Next()
	}
}

// KeyByUser 按登录用户限流，未登录时回落到 IP
func KeyByUser(c *gin.Context) string {
	if userID := c.GetUint(publichandlers.UserIDKey); userID != 0 {
		return fmt.Sprintf("user:%d", userID)
	}
	return c.ClientIP()
}
