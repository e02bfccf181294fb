package models

import "time"

// DailyStat is an aggregated per-day counter row flushed from Redis.
type DailyStat struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Date      string    `gorm:"type:char(10);not null;index:ux_daily_stats_date_metric,unique,priority:1" json:"date"`
	Metric    string    `gorm:"type:varchar(50);not null;index:ux_daily_stats_date_metric,unique,priority:2" json:"metric"`
	Count     int64     `gorm:"not null;default:0" json:"count"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// DailyStats is a date/count pair used in admin reporting queries.
type DailyStats struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}
