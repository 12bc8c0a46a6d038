package models

import "time"

// StatsDocID 统计计数器文档的固定 _id（单文档聚合）
const StatsDocID = "forward_stats"

// DayLayout 本地日期标记格式，用于今日计数的跨午夜重置
const DayLayout = "2006-01-02"

// ForwardStats 转发统计计数器
// Today 仅在 Day 与当前本地日期一致时有效，跨天读取视为 0
type ForwardStats struct {
	ID             string    `bson:"_id"`
	TotalForwarded int64     `bson:"total_forwarded"` // 累计成功转发数
	TodayForwarded int64     `bson:"today_forwarded"` // 今日成功转发数
	Day            string    `bson:"day"`             // 本地日期标记，格式 DayLayout
	UpdatedAt      time.Time `bson:"updated_at"`
}

// TodayCount 返回 now 所在日期的今日计数，日期标记不一致时为 0
func (s *ForwardStats) TodayCount(now time.Time) int64 {
	if s.Day != now.Format(DayLayout) {
		return 0
	}
	return s.TodayForwarded
}
