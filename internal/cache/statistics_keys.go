package cache

import (
	"fmt"
	"strings"
)

// StatisticsKeyPrefix 统计缓存公共前缀，账本写入后按此前缀整体失效
const StatisticsKeyPrefix = "statistics:"

// LeaderboardKey 品牌排行榜缓存键，带窗口时按 UTC 结束日期区分
func LeaderboardKey(metric string, limit, days int, includeInactive bool, endDay string) string {
	return fmt.Sprintf("%sleaderboard:%s:%d:%d:%t:%s", StatisticsKeyPrefix, normalizeKeyPart(metric), limit, days, includeInactive, normalizeKeyPart(endDay))
}

// TrendKey 使用趋势缓存键，按 UTC 日期区分窗口
func TrendKey(days int, brandID uint, includeInactive bool, endDay string) string {
	return fmt.Sprintf("%strend:%d:%d:%t:%s", StatisticsKeyPrefix, days, brandID, includeInactive, normalizeKeyPart(endDay))
}

func normalizeKeyPart(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return "default"
	}
	return value
}
