package server

import (
	"errors"
	"slices"
	"sync"
	"time"

	"p2pg/internal/logger"
	"p2pg/pkg/protocol"
)

var (
	ErrMatchClosed     = errors.New("对局已结束")
	ErrMatchNotStarted = errors.New("对局尚未开始")
	ErrNotInMatch      = errors.New("不是该对局的玩家")
	ErrAlreadyBound    = errors.New("玩家已绑定")
)

// Match 一场对局的转发通道
// 全部玩家凭票据绑定后发送 Start，之后转发输入和校验和
type Match struct {
	mu      sync.Mutex
	id      string
	peers   []string
	bound   map[string]Session
	started bool
	closed  bool
	timer   *time.Timer

	metrics *Metrics
	onClose func(id string)
}

func NewMatch(id string, peers []string, bindTimeout time.Duration, metrics *Metrics, onClose func(string)) *Match {
	m := &Match{
		id:      id,
		peers:   peers,
		bound:   make(map[string]Session, len(peers)),
		metrics: metrics,
		onClose: onClose,
	}
	m.timer = time.AfterFunc(bindTimeout, m.expire)
	return m
}

func (m *Match) ID() string { return m.id }

func (m *Match) Peers() []string { return slices.Clone(m.peers) }

func (m *Match) Started() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}

// Bind 绑定玩家的转发连接，最后一人绑定时广播 Start
func (m *Match) Bind(peer string, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrMatchClosed
	}
	if !slices.Contains(m.peers, peer) {
		return ErrNotInMatch
	}
	if _, ok := m.bound[peer]; ok {
		return ErrAlreadyBound
	}
	m.bound[peer] = s

	logger.Log.Infof("对局 %s: 玩家 %s 已绑定 (%d/%d)", m.id, peer, len(m.bound), len(m.peers))

	if len(m.bound) < len(m.peers) {
		return nil
	}

	m.started = true
	m.timer.Stop()
	m.metrics.matches.Add(1)

	pkt := protocol.NewStartPacket(m.id, m.peers)
	for _, p := range m.peers {
		if err := m.bound[p].Send(pkt); err != nil {
			logger.Log.Warnf("对局 %s: 发送开始消息到 %s 失败: %v", m.id, p, err)
		}
	}
	logger.Log.Infof("对局 %s 开始: %v", m.id, m.peers)
	return nil
}

// Relay 把输入或校验和转发给其他玩家
// 接收方发送队列满时断开接收方，丢包会让双方永远等不到这一帧
func (m *Match) Relay(from string, ev *ServerEvent) error {
	pkt, err := encodeRelay(from, ev)
	if err != nil {
		return err
	}

	var laggards []Session

	m.mu.Lock()
	switch {
	case m.closed:
		err = ErrMatchClosed
	case !m.started:
		err = ErrMatchNotStarted
	default:
		if _, ok := m.bound[from]; !ok {
			err = ErrNotInMatch
			break
		}
		for _, p := range m.peers {
			if p == from {
				continue
			}
			if sendErr := m.bound[p].Send(pkt); sendErr != nil {
				logger.Log.Warnf("对局 %s: 转发到 %s 失败: %v", m.id, p, sendErr)
				laggards = append(laggards, m.bound[p])
			}
		}
		m.metrics.relayed.Add(1)
	}
	m.mu.Unlock()

	// 关闭会回调 Leave，不能持锁
	for _, s := range laggards {
		s.Close()
	}
	return err
}

// Leave 玩家断开，通知其余玩家并结束对局
func (m *Match) Leave(peer, reason string) {
	m.mu.Lock()
	if m.closed || !slices.Contains(m.peers, peer) {
		m.mu.Unlock()
		return
	}
	delete(m.bound, peer)

	pkt := protocol.NewPeerLeftPacket(peer, reason)
	for p, s := range m.bound {
		if err := s.Send(pkt); err != nil {
			logger.Log.Warnf("对局 %s: 通知 %s 失败: %v", m.id, p, err)
		}
	}
	m.closeLocked()
	m.mu.Unlock()

	logger.Log.Infof("对局 %s 结束: 玩家 %s %s", m.id, peer, reason)
	m.onClose(m.id)
}

// expire 绑定超时，已绑定的玩家收到缺席者的 PeerLeft
func (m *Match) expire() {
	m.mu.Lock()
	if m.closed || m.started {
		m.mu.Unlock()
		return
	}
	for _, missing := range m.peers {
		if _, ok := m.bound[missing]; ok {
			continue
		}
		pkt := protocol.NewPeerLeftPacket(missing, "绑定超时")
		for _, s := range m.bound {
			_ = s.Send(pkt)
		}
	}
	m.closeLocked()
	m.mu.Unlock()

	logger.Log.Infof("对局 %s 绑定超时", m.id)
	m.onClose(m.id)
}

// Close 服务器关闭时调用，不回调 onClose
func (m *Match) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	pkt := protocol.NewErrorPacket(protocol.ErrCodeShutdown, "服务器关闭")
	for _, s := range m.bound {
		_ = s.Send(pkt)
	}
	m.closeLocked()
}

func (m *Match) closeLocked() {
	m.closed = true
	m.timer.Stop()
}
