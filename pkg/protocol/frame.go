package protocol

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	kcp "github.com/xtaci/kcp-go/v5"
)

const (
	MaxPacketSize = 4096 // 最大消息大小
	dialTimeout   = 5 * time.Second
)

var (
	ErrPacketTooLarge = errors.New("消息过大")
	ErrBadAddress     = errors.New("地址无效")
)

// Conn 按帧收发数据包
// ReadPacket 与 WritePacket 各自只允许一个 goroutine 调用
type Conn interface {
	ReadPacket() (*Packet, error)
	WritePacket(pkt *Packet) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	RemoteAddr() net.Addr
	Close() error
}

// ========== 流式连接（tcp / kcp）：4 字节大端长度前缀 ==========

type streamConn struct {
	conn net.Conn
	hdr  [4]byte
}

// NewStreamConn 包装 tcp 或 kcp 连接
func NewStreamConn(conn net.Conn) Conn {
	return &streamConn{conn: conn}
}

func (c *streamConn) ReadPacket() (*Packet, error) {
	for {
		if _, err := io.ReadFull(c.conn, c.hdr[:]); err != nil {
			return nil, err
		}
		length := binary.BigEndian.Uint32(c.hdr[:])
		if length > MaxPacketSize {
			return nil, fmt.Errorf("%w (%d bytes)", ErrPacketTooLarge, length)
		}
		// 空消息直接跳过
		if length == 0 {
			continue
		}
		data := make([]byte, length)
		if _, err := io.ReadFull(c.conn, data); err != nil {
			return nil, err
		}
		return UnmarshalPacket(data)
	}
}

func (c *streamConn) WritePacket(pkt *Packet) error {
	data, err := MarshalPacket(pkt)
	if err != nil {
		return err
	}
	if len(data) > MaxPacketSize {
		return fmt.Errorf("%w (%d bytes)", ErrPacketTooLarge, len(data))
	}
	buf := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(buf, uint32(len(data)))
	copy(buf[4:], data)
	_, err = c.conn.Write(buf)
	return err
}

func (c *streamConn) SetReadDeadline(t time.Time) error  { return c.conn.SetReadDeadline(t) }
func (c *streamConn) SetWriteDeadline(t time.Time) error { return c.conn.SetWriteDeadline(t) }
func (c *streamConn) RemoteAddr() net.Addr               { return c.conn.RemoteAddr() }
func (c *streamConn) Close() error                       { return c.conn.Close() }

// ========== websocket：一条二进制消息即一个数据包 ==========

type wsConn struct {
	ws *websocket.Conn
}

// NewWebsocketConn 包装 websocket 连接
func NewWebsocketConn(ws *websocket.Conn) Conn {
	ws.SetReadLimit(MaxPacketSize)
	return &wsConn{ws: ws}
}

func (c *wsConn) ReadPacket() (*Packet, error) {
	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			return nil, err
		}
		if kind != websocket.BinaryMessage {
			return nil, fmt.Errorf("websocket 消息类型 %d 不是二进制", kind)
		}
		if len(data) == 0 {
			continue
		}
		return UnmarshalPacket(data)
	}
}

func (c *wsConn) WritePacket(pkt *Packet) error {
	data, err := MarshalPacket(pkt)
	if err != nil {
		return err
	}
	if len(data) > MaxPacketSize {
		return fmt.Errorf("%w (%d bytes)", ErrPacketTooLarge, len(data))
	}
	return c.ws.WriteMessage(websocket.BinaryMessage, data)
}

func (c *wsConn) SetReadDeadline(t time.Time) error  { return c.ws.SetReadDeadline(t) }
func (c *wsConn) SetWriteDeadline(t time.Time) error { return c.ws.SetWriteDeadline(t) }
func (c *wsConn) RemoteAddr() net.Addr               { return c.ws.RemoteAddr() }
func (c *wsConn) Close() error                       { return c.ws.Close() }

// ========== 拨号 ==========

// ParseAddress 解析 scheme://host:port[/path]，支持 tcp、kcp、ws、wss
func ParseAddress(addr string) (*url.URL, error) {
	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadAddress, err)
	}
	switch u.Scheme {
	case "tcp", "kcp", "ws", "wss":
	default:
		return nil, fmt.Errorf("%w: 不支持的协议 %q", ErrBadAddress, u.Scheme)
	}
	if _, port, err := net.SplitHostPort(u.Host); err != nil || port == "" {
		return nil, fmt.Errorf("%w: 缺少端口 %q", ErrBadAddress, u.Host)
	}
	return u, nil
}

// Dial 按地址协议建立连接
func Dial(ctx context.Context, addr string) (Conn, error) {
	u, err := ParseAddress(addr)
	if err != nil {
		return nil, err
	}

	switch u.Scheme {
	case "tcp":
		d := net.Dialer{Timeout: dialTimeout}
		conn, err := d.DialContext(ctx, "tcp", u.Host)
		if err != nil {
			return nil, err
		}
		if tcpConn, ok := conn.(*net.TCPConn); ok {
			_ = tcpConn.SetNoDelay(true)
		}
		return NewStreamConn(conn), nil

	case "kcp":
		conn, err := kcp.DialWithOptions(u.Host, nil, 0, 0)
		if err != nil {
			return nil, err
		}
		conn.SetStreamMode(true)
		conn.SetNoDelay(1, 10, 2, 1)
		return NewStreamConn(conn), nil

	default:
		dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
		ws, _, err := dialer.DialContext(ctx, u.String(), nil)
		if err != nil {
			return nil, err
		}
		return NewWebsocketConn(ws), nil
	}
}
