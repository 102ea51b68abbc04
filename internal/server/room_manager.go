package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"p2pg/internal/logger"
	"p2pg/pkg/protocol"
)

const (
	MaxRooms         = 1000             // 最大房间数
	MaxRoomName      = 64               // 房间名最大长度
	RoomEmptyTimeout = 60 * time.Second // 房间空置超时
	cleanupInterval  = 30 * time.Second
)

// MatchOptions 开局参数，随 Ready 下发给双方
type MatchOptions struct {
	Peers          int
	DesyncInterval uint32
	Seed           uint64 // 0 表示按对局 id 派生
	InputDelay     uint32 // 各方共用，随 Ready 下发
	BindTimeout    time.Duration
}

type RoomManager struct {
	ctx     context.Context
	opts    MatchOptions
	tickets *TicketIssuer
	metrics *Metrics

	rooms   map[string]*Room  // 房间名 -> 等待队列
	matches map[string]*Match // 对局 id -> 对局
	mu      sync.RWMutex

	wg       sync.WaitGroup
	shutdown chan struct{}
	once     sync.Once
}

func NewRoomManager(ctx context.Context, opts MatchOptions, tickets *TicketIssuer, metrics *Metrics) *RoomManager {
	return &RoomManager{
		ctx:      ctx,
		opts:     opts,
		tickets:  tickets,
		metrics:  metrics,
		rooms:    make(map[string]*Room),
		matches:  make(map[string]*Match),
		shutdown: make(chan struct{}),
	}
}

// Run 启动清理协程
func (m *RoomManager) Run() {
	m.wg.Add(1)
	go m.cleanupLoop()
}

func (m *RoomManager) cleanupLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-m.shutdown:
			return
		case <-ticker.C:
			m.cleanupEmptyRooms(RoomEmptyTimeout)
		}
	}
}

// cleanupEmptyRooms 关闭空置超过 idle 的房间
func (m *RoomManager) cleanupEmptyRooms(idle time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for name, room := range m.rooms {
		if room.Waiting() == 0 && room.IdleFor() >= idle {
			logger.Log.Infof("清理空房间: %s", name)
			room.Shutdown()
			delete(m.rooms, name)
		}
	}
}

func (m *RoomManager) getOrCreateRoom(name string) (*Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if room, exists := m.rooms[name]; exists {
		return room, nil
	}
	if len(m.rooms) >= MaxRooms {
		return nil, fmt.Errorf("房间数已达上限 %d", MaxRooms)
	}

	logger.Log.Infof("创建新房间: %s", name)
	room := NewRoom(m.ctx, name, m.opts.Peers, m.createMatch)
	m.rooms[name] = room

	m.wg.Add(1)
	go room.Run(&m.wg)

	return room, nil
}

// Join 玩家进入房间等待匹配
func (m *RoomManager) Join(session Session, req JoinEvent) error {
	if req.Room == "" || len(req.Room) > MaxRoomName {
		return fmt.Errorf("房间名长度须在 1 到 %d 之间", MaxRoomName)
	}
	if req.Peers != m.opts.Peers {
		return fmt.Errorf("对局人数须为 %d，收到 %d", m.opts.Peers, req.Peers)
	}

	room, err := m.getOrCreateRoom(req.Room)
	if err != nil {
		return err
	}
	return room.Join(session)
}

// LeaveRoom 等待中的玩家断开
func (m *RoomManager) LeaveRoom(name, id string) {
	m.mu.RLock()
	room, exists := m.rooms[name]
	m.mu.RUnlock()

	if exists {
		room.Leave(id)
	}
}

// createMatch 由房间协程调用：创建对局并给每人发 Ready 和票据
func (m *RoomManager) createMatch(roomName string, group []Session) {
	matchID := uuid.NewString()
	peers := make([]string, len(group))
	for i, s := range group {
		peers[i] = s.ID()
	}

	seed := m.opts.Seed
	if seed == 0 {
		seed = xxhash.Sum64String(matchID)
	}

	match := NewMatch(matchID, peers, m.opts.BindTimeout, m.metrics, m.removeMatch)
	m.mu.Lock()
	m.matches[matchID] = match
	m.mu.Unlock()

	logger.Log.Infof("房间 %s 匹配完成: 对局 %s %v", roomName, matchID, peers)

	for i, s := range group {
		ticket, err := m.tickets.Issue(matchID, peers[i])
		if err != nil {
			logger.Log.Errorf("签发票据失败: %v", err)
			_ = s.Send(protocol.NewErrorPacket(protocol.ErrCodeBadTicket, "签发票据失败"))
			continue
		}
		ready := &protocol.Ready{
			MatchID:        matchID,
			PeerID:         peers[i],
			Peers:          peers,
			Ticket:         ticket,
			DesyncInterval: m.opts.DesyncInterval,
			Seed:           seed,
			InputDelay:     m.opts.InputDelay,
		}
		if err := s.Send(protocol.NewPacket(ready)); err != nil {
			logger.Log.Warnf("发送 Ready 到玩家 %s 失败: %v", peers[i], err)
		}
	}
}

func (m *RoomManager) removeMatch(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.matches, id)
}

func (m *RoomManager) match(id string) (*Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	match, exists := m.matches[id]
	if !exists {
		return nil, fmt.Errorf("对局 %s: %w", id, ErrMatchClosed)
	}
	return match, nil
}

// Bind 凭已核销的票据绑定转发连接
func (m *RoomManager) Bind(session Session, claims *TicketClaims) error {
	match, err := m.match(claims.MatchID)
	if err != nil {
		return err
	}
	return match.Bind(claims.PeerID, session)
}

// Relay 转发输入或校验和
func (m *RoomManager) Relay(matchID, from string, ev *ServerEvent) error {
	match, err := m.match(matchID)
	if err != nil {
		return err
	}
	return match.Relay(from, ev)
}

// LeaveMatch 已绑定的玩家断开
func (m *RoomManager) LeaveMatch(matchID, peer, reason string) {
	match, err := m.match(matchID)
	if err != nil {
		return
	}
	match.Leave(peer, reason)
}

// Shutdown 关闭所有房间和对局
func (m *RoomManager) Shutdown() {
	m.once.Do(func() {
		close(m.shutdown)

		m.mu.Lock()
		logger.Log.Infof("关闭 %d 个房间, %d 场对局...", len(m.rooms), len(m.matches))
		for _, room := range m.rooms {
			room.Shutdown()
		}
		matches := make([]*Match, 0, len(m.matches))
		for _, match := range m.matches {
			matches = append(matches, match)
		}
		m.matches = make(map[string]*Match)
		m.mu.Unlock()

		for _, match := range matches {
			match.Close()
		}

		m.wg.Wait()
		logger.Log.Info("所有房间已关闭")
	})
}

// RoomStats 房间统计信息
type RoomStats struct {
	Waiting int     `json:"waiting"`
	IdleSec float64 `json:"idle_sec"`
}

type ManagerStats struct {
	Rooms   map[string]RoomStats `json:"rooms"`
	Matches int                  `json:"matches"`
	Started int                  `json:"started"`
}

func (m *RoomManager) Stats() ManagerStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := ManagerStats{Rooms: make(map[string]RoomStats, len(m.rooms)), Matches: len(m.matches)}
	for name, room := range m.rooms {
		stats.Rooms[name] = RoomStats{Waiting: room.Waiting(), IdleSec: room.IdleFor().Seconds()}
	}
	for _, match := range m.matches {
		if match.Started() {
			stats.Started++
		}
	}
	return stats
}
