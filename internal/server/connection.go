package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"p2pg/internal/logger"
	"p2pg/pkg/protocol"
)

const (
	writeTimeout      = 1 * time.Second // 写入超时
	heartbeatInterval = 5 * time.Second
	heartbeatTimeout  = 15 * time.Second
	readTimeout       = heartbeatTimeout // 读取超时
	sendQueueSize     = 256
)

var (
	ErrSendQueueFull    = errors.New("发送队列满")
	ErrConnectionClosed = errors.New("连接已关闭")
)

// Connection 表示一个客户端连接
// 同一条连接可以先在房间里等待，也可以凭票据绑定到对局
type Connection struct {
	conn   protocol.Conn
	server *GameServer
	id     string
	log    *zap.SugaredLogger

	limiter *rate.Limiter

	// 发送队列
	sendChan chan *protocol.Packet
	closeCh  chan struct{}
	closed   bool
	closeMu  sync.Mutex

	// 所在房间与对局
	stateMu sync.Mutex
	room    string
	matchID string
	peer    string

	lastRecvTime atomic.Value
	rtt          atomic.Int64
}

// NewConnection 创建新连接，连接到服务器上
func NewConnection(conn protocol.Conn, server *GameServer) *Connection {
	id := uuid.NewString()
	c := &Connection{
		conn:     conn,
		server:   server,
		id:       id,
		log:      logger.Log.With("conn", id),
		limiter:  rate.NewLimiter(rate.Limit(server.cfg.RateLimit), server.cfg.RateBurst),
		sendChan: make(chan *protocol.Packet, sendQueueSize),
		closeCh:  make(chan struct{}),
	}
	c.lastRecvTime.Store(time.Now())
	return c
}

// ID 连接 id，也是匹配时下发的玩家 id
func (c *Connection) ID() string { return c.id }

// Handle 处理连接
func (c *Connection) Handle(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	c.log.Debugf("连接处理开始: %s", c.conn.RemoteAddr())
	c.server.metrics.connections.Add(1)
	c.server.metrics.totalConnections.Add(1)
	defer c.server.metrics.connections.Add(-1)

	wg.Add(3)
	go c.startHeartbeat(ctx, wg)
	go c.sendLoop(ctx, wg)
	go c.receiveLoop(wg)

	// 等待上下文取消或连接关闭
	select {
	case <-ctx.Done():
	case <-c.closeCh:
	}

	c.Close()
}

// Close 关闭连接并通知房间或对局
func (c *Connection) Close() {
	c.closeWithNotify(true)
}

// CloseWithoutNotify 关闭连接但不触发离开逻辑
func (c *Connection) CloseWithoutNotify() {
	c.closeWithNotify(false)
}

func (c *Connection) closeWithNotify(notify bool) {
	c.closeMu.Lock()
	if c.closed {
		c.closeMu.Unlock()
		return
	}
	c.closed = true
	close(c.closeCh)
	_ = c.conn.Close()
	close(c.sendChan)
	c.closeMu.Unlock()

	// 离开逻辑可能回调其他连接的 Close，放在锁外
	if notify {
		room, matchID, peer := c.state()
		if matchID != "" {
			c.server.manager.LeaveMatch(matchID, peer, "断开连接")
		}
		if room != "" {
			c.server.manager.LeaveRoom(room, c.id)
		}
	}

	c.log.Debug("连接已关闭")
}

// Send 发送数据包（异步）
func (c *Connection) Send(pkt *protocol.Packet) error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	if c.closed {
		return ErrConnectionClosed
	}

	select {
	case c.sendChan <- pkt:
		return nil
	default:
		return ErrSendQueueFull
	}
}

func (c *Connection) sendError(code protocol.ErrorCode, format string, args ...any) {
	_ = c.Send(protocol.NewErrorPacket(code, format, args...))
}

// sendLoop 发送循环
func (c *Connection) sendLoop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case pkt, ok := <-c.sendChan:
			if !ok {
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WritePacket(pkt); err != nil {
				c.log.Warnf("发送数据失败: %v", err)
				c.Close()
				return
			}
		}
	}
}

// receiveLoop 接收循环，连接关闭后 ReadPacket 返回错误退出
func (c *Connection) receiveLoop(wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		_ = c.conn.SetReadDeadline(time.Now().Add(readTimeout))
		pkt, err := c.conn.ReadPacket()
		if err != nil {
			var netErr net.Error
			switch {
			case errors.As(err, &netErr) && netErr.Timeout():
				c.log.Info("读取超时")
			case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
			default:
				c.log.Debugf("读取失败: %v", err)
			}
			c.Close()
			return
		}

		c.onMessageReceived()

		if !c.limiter.Allow() {
			c.server.metrics.rateLimited.Add(1)
			c.log.Warn("发送过快，断开连接")
			c.sendError(protocol.ErrCodeRateLimited, "发送过快")
			c.Close()
			return
		}

		if err := c.handleMessage(pkt); err != nil {
			c.log.Infof("处理消息失败: %v", err)
		}
	}
}

// handleMessage 处理接收到的消息
func (c *Connection) handleMessage(pkt *protocol.Packet) error {
	event, err := DecodePacket(pkt)
	if err != nil {
		// 输入长度错误等协议违规直接断开
		c.sendError(protocol.ErrCodeBadRequest, "%v", err)
		c.Close()
		return err
	}

	switch event.Kind {
	case EventJoin:
		return c.handleJoin(event.Join)

	case EventBind:
		return c.handleBind(event.Bind)

	case EventInput, EventChecksum:
		_, matchID, peer := c.state()
		if matchID == "" {
			c.sendError(protocol.ErrCodeBadRequest, "尚未绑定对局")
			return fmt.Errorf("未绑定时收到 %s", event.Kind)
		}
		return c.server.manager.Relay(matchID, peer, event)

	case EventPing:
		return c.Send(protocol.NewPongPacket(event.Ping.ClientTime, time.Now().UnixMilli()))

	case EventPong:
		c.handlePong(event.Pong)

	default:
		c.sendError(protocol.ErrCodeBadRequest, "未知消息类型 %s", pkt.Type)
		return fmt.Errorf("未知消息类型 %s", pkt.Type)
	}

	return nil
}

func (c *Connection) handleJoin(ev *JoinEvent) error {
	c.stateMu.Lock()
	if c.room != "" || c.matchID != "" {
		c.stateMu.Unlock()
		c.sendError(protocol.ErrCodeBadRequest, "重复加入")
		return fmt.Errorf("重复加入请求")
	}
	// 先记下房间，加入过程中断开也能被移出
	c.room = ev.Room
	c.stateMu.Unlock()

	if err := c.server.manager.Join(c, *ev); err != nil {
		c.setRoom("")
		c.sendError(protocol.ErrCodeBadRequest, "%v", err)
		return fmt.Errorf("处理加入请求失败: %w", err)
	}
	return nil
}

func (c *Connection) handleBind(ev *BindEvent) error {
	claims, err := c.server.tickets.Redeem(ev.Ticket)
	if err != nil {
		c.server.metrics.badTickets.Add(1)
		c.sendError(protocol.ErrCodeBadTicket, "%v", err)
		return err
	}

	c.stateMu.Lock()
	if c.matchID != "" {
		c.stateMu.Unlock()
		c.sendError(protocol.ErrCodeBadRequest, "重复绑定")
		return fmt.Errorf("重复绑定")
	}
	c.matchID, c.peer = claims.MatchID, claims.PeerID
	c.stateMu.Unlock()

	if err := c.server.manager.Bind(c, claims); err != nil {
		c.stateMu.Lock()
		c.matchID, c.peer = "", ""
		c.stateMu.Unlock()
		c.sendError(protocol.ErrCodeBadTicket, "%v", err)
		return fmt.Errorf("绑定失败: %w", err)
	}
	c.log.Infof("绑定到对局 %s，玩家 %s", claims.MatchID, claims.PeerID)
	return nil
}

func (c *Connection) state() (room, matchID, peer string) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.room, c.matchID, c.peer
}

func (c *Connection) setRoom(room string) {
	c.stateMu.Lock()
	c.room = room
	c.stateMu.Unlock()
}

// String 返回连接的字符串表示
func (c *Connection) String() string {
	return fmt.Sprintf("Connection{%s, %s}", c.id, c.conn.RemoteAddr())
}

// RTT 最近一次心跳往返时间
func (c *Connection) RTT() time.Duration {
	return time.Duration(c.rtt.Load()) * time.Millisecond
}

func (c *Connection) startHeartbeat(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closeCh:
			return
		case <-ticker.C:
			lastRecv, _ := c.lastRecvTime.Load().(time.Time)
			if !lastRecv.IsZero() && time.Since(lastRecv) > heartbeatTimeout {
				c.log.Info("心跳超时")
				c.Close()
				return
			}
			_ = c.Send(protocol.NewPingPacket(time.Now().UnixMilli()))
		}
	}
}

func (c *Connection) handlePong(pong *PongEvent) {
	if pong == nil || pong.ClientTime <= 0 {
		return
	}
	c.rtt.Store(time.Now().UnixMilli() - pong.ClientTime)
}

func (c *Connection) onMessageReceived() {
	c.lastRecvTime.Store(time.Now())
}
