package domain

import "time"

// EmailUsage 每用户的当日发送计数。
//
// 计数只在跨日后的首次访问时清零，且每个自然日最多清零一次；
// 除清零外计数只增不减。读取-清零-递增序列必须按用户串行化，
// 由 storage 层保证（内存实现用互斥锁，SQL 实现用行锁）。
type EmailUsage struct {
	UserID          string    `json:"userId" gorm:"primaryKey;type:varchar(36)"`
	EmailsSentToday int       `json:"emailsSentToday" gorm:"default:0"`
	LastResetDate   time.Time `json:"lastResetDate"`
}

// SameDay 判断两个时间点是否落在同一个 UTC 自然日。
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// Midnight 返回给定时间所在 UTC 自然日的零点。
func Midnight(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
