package models

import "time"

// UsageStat holds per-day accepted counts for metered actions, flushed in
// batches from the Redis counters for the admin dashboard.
type UsageStat struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	StatDate  time.Time `gorm:"type:date;not null;index:ux_usage_stats_date_action,unique,priority:1" json:"stat_date"`
	Action    string    `gorm:"type:varchar(32);not null;index:ux_usage_stats_date_action,unique,priority:2" json:"action"`
	Count     int64     `gorm:"not null;default:0" json:"count"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// DailyStats is a generic date/count aggregation row used by admin analytics queries.
type DailyStats struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}
