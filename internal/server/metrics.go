package server

import "sync/atomic"

// Metrics 服务器计数器
type Metrics struct {
	connections      atomic.Int64 // 当前连接数
	totalConnections atomic.Int64
	matches          atomic.Int64 // 已开始的对局
	relayed          atomic.Int64 // 转发的输入与校验和
	rateLimited      atomic.Int64
	badTickets       atomic.Int64
}

type MetricsSnapshot struct {
	Connections      int64 `json:"connections"`
	TotalConnections int64 `json:"total_connections"`
	Matches          int64 `json:"matches"`
	Relayed          int64 `json:"relayed"`
	RateLimited      int64 `json:"rate_limited"`
	BadTickets       int64 `json:"bad_tickets"`
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Connections:      m.connections.Load(),
		TotalConnections: m.totalConnections.Load(),
		Matches:          m.matches.Load(),
		Relayed:          m.relayed.Load(),
		RateLimited:      m.rateLimited.Load(),
		BadTickets:       m.badTickets.Load(),
	}
}
