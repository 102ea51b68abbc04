package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"p2pg/internal/logger"
	"p2pg/pkg/protocol"
)

const (
	recvQueueSize = 1024
	sendQueueSize = 256
	writeTimeout  = time.Second
)

var ErrSendQueueFull = errors.New("发送队列满")

// Channel 非阻塞的消息通道，由编排器在游戏线程轮询
type Channel interface {
	Send(pkt *protocol.Packet) error
	Receive() (protocol.Message, bool)
	Err() error
	Close()
}

// Opener 建立到会合服务器的通道
type Opener func(ctx context.Context, addr string) (Channel, error)

// NetworkClient 网络客户端：收发各一个 goroutine，游戏线程只读写缓冲通道
type NetworkClient struct {
	addr string
	conn protocol.Conn

	connected atomic.Bool
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once

	recvChan chan protocol.Message
	sendChan chan *protocol.Packet
	errChan  chan error
}

// NewNetworkClient 创建网络客户端
func NewNetworkClient(addr string) *NetworkClient {
	return &NetworkClient{
		addr:     addr,
		recvChan: make(chan protocol.Message, recvQueueSize),
		sendChan: make(chan *protocol.Packet, sendQueueSize),
		errChan:  make(chan error, 1),
	}
}

// OpenNetwork 默认的 Opener
func OpenNetwork(ctx context.Context, addr string) (Channel, error) {
	nc := NewNetworkClient(addr)
	if err := nc.Connect(ctx); err != nil {
		return nil, err
	}
	return nc, nil
}

// Connect 连接到服务器并启动收发循环
func (nc *NetworkClient) Connect(ctx context.Context) error {
	logger.Log.Infof("连接到服务器: %s", nc.addr)

	conn, err := protocol.Dial(ctx, nc.addr)
	if err != nil {
		return fmt.Errorf("连接服务器失败: %w", err)
	}
	nc.conn = conn
	nc.ctx, nc.cancel = context.WithCancel(ctx)
	nc.connected.Store(true)

	logger.Log.Infof("已连接到服务器: %s", conn.RemoteAddr())

	nc.wg.Add(2)
	go nc.receiveLoop()
	go nc.sendLoop()
	return nil
}

// Close 关闭连接并等待收发循环退出
func (nc *NetworkClient) Close() {
	nc.closeOnce.Do(func() {
		nc.connected.Store(false)
		if nc.cancel != nil {
			nc.cancel()
		}
		if nc.conn != nil {
			_ = nc.conn.Close()
		}
		nc.wg.Wait()
		logger.Log.Debugf("网络客户端已关闭: %s", nc.addr)
	})
}

// IsConnected 检查是否已连接
func (nc *NetworkClient) IsConnected() bool {
	return nc.connected.Load()
}

// Send 发送数据包（非阻塞）
func (nc *NetworkClient) Send(pkt *protocol.Packet) error {
	if !nc.connected.Load() {
		return net.ErrClosed
	}
	select {
	case nc.sendChan <- pkt:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// Receive 取出一条消息（非阻塞）
func (nc *NetworkClient) Receive() (protocol.Message, bool) {
	select {
	case m := <-nc.recvChan:
		return m, true
	default:
		return nil, false
	}
}

// Err 收发循环遇到的第一个错误（非阻塞）
// 队列里的消息仍可继续读取
func (nc *NetworkClient) Err() error {
	select {
	case err := <-nc.errChan:
		// 放回去，之后的调用仍能看到
		nc.fail(err)
		return err
	default:
		return nil
	}
}

func (nc *NetworkClient) fail(err error) {
	select {
	case nc.errChan <- err:
	default:
	}
}

// receiveLoop 接收循环；心跳在这里直接回复
func (nc *NetworkClient) receiveLoop() {
	defer nc.wg.Done()

	for {
		pkt, err := nc.conn.ReadPacket()
		if err != nil {
			select {
			case <-nc.ctx.Done():
			default:
				if errors.Is(err, io.EOF) {
					err = io.ErrUnexpectedEOF
				}
				nc.fail(fmt.Errorf("读取失败: %w", err))
			}
			nc.connected.Store(false)
			return
		}

		if pkt.Type == protocol.MessagePing {
			ping, err := protocol.Decode(pkt)
			if err == nil {
				_ = nc.Send(protocol.NewPongPacket(ping.(*protocol.Ping).ClientTime, time.Now().UnixMilli()))
			}
			continue
		}

		m, err := protocol.Decode(pkt)
		if err != nil {
			// 输入长度错误等属于协议违规，整个会话作废
			nc.fail(err)
			nc.connected.Store(false)
			return
		}

		select {
		case nc.recvChan <- m:
		default:
			nc.fail(errors.New("接收队列满"))
			nc.connected.Store(false)
			return
		}
	}
}

// sendLoop 发送循环
func (nc *NetworkClient) sendLoop() {
	defer nc.wg.Done()

	for {
		select {
		case <-nc.ctx.Done():
			return

		case pkt := <-nc.sendChan:
			_ = nc.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := nc.conn.WritePacket(pkt); err != nil {
				nc.fail(fmt.Errorf("发送失败: %w", err))
				nc.connected.Store(false)
				return
			}
		}
	}
}
