package server

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	kcp "github.com/xtaci/kcp-go/v5"

	"p2pg/internal/logger"
	"p2pg/pkg/protocol"
)

// ServerListener 接受已完成分帧包装的连接
type ServerListener interface {
	Accept() (protocol.Conn, error)
	Close() error
	Addr() net.Addr
}

func newListener(proto, addr string) (ServerListener, error) {
	switch proto {
	case "tcp":
		listener, err := net.Listen("tcp", addr)
		if err != nil {
			return nil, err
		}
		return &tcpListener{listener: listener}, nil
	case "kcp":
		listener, err := kcp.ListenWithOptions(addr, nil, 0, 0)
		if err != nil {
			return nil, err
		}
		return &kcpListener{listener: listener}, nil
	case "ws":
		return newWSListener(addr)
	default:
		return nil, fmt.Errorf("不支持的协议: %s", proto)
	}
}

type tcpListener struct {
	listener net.Listener
}

func (l *tcpListener) Accept() (protocol.Conn, error) {
	conn, err := l.listener.Accept()
	if err != nil {
		return nil, err
	}
	// 禁用 Nagle，输入包很小
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		_ = tcpConn.SetNoDelay(true)
	}
	return protocol.NewStreamConn(conn), nil
}

func (l *tcpListener) Close() error   { return l.listener.Close() }
func (l *tcpListener) Addr() net.Addr { return l.listener.Addr() }

type kcpListener struct {
	listener *kcp.Listener
}

func (l *kcpListener) Accept() (protocol.Conn, error) {
	session, err := l.listener.AcceptKCP()
	if err != nil {
		return nil, err
	}
	session.SetStreamMode(true)
	session.SetNoDelay(1, 10, 2, 1)
	return protocol.NewStreamConn(session), nil
}

func (l *kcpListener) Close() error   { return l.listener.Close() }
func (l *kcpListener) Addr() net.Addr { return l.listener.Addr() }

// ========== websocket：浏览器和受限网络下的客户端 ==========

const wsPath = "/rendezvous"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type wsListener struct {
	listener net.Listener
	srv      *http.Server
	conns    chan protocol.Conn
	done     chan struct{}
	once     sync.Once
}

func newWSListener(addr string) (*wsListener, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	l := &wsListener{
		listener: listener,
		conns:    make(chan protocol.Conn),
		done:     make(chan struct{}),
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.GET(wsPath, l.upgrade)
	l.srv = &http.Server{Handler: r}

	go func() {
		if err := l.srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Errorf("websocket 服务退出: %v", err)
		}
	}()
	return l, nil
}

func (l *wsListener) upgrade(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Log.Warnf("websocket 升级失败: %v", err)
		return
	}
	select {
	case l.conns <- protocol.NewWebsocketConn(ws):
	case <-l.done:
		_ = ws.Close()
	}
}

func (l *wsListener) Accept() (protocol.Conn, error) {
	select {
	case conn := <-l.conns:
		return conn, nil
	case <-l.done:
		return nil, net.ErrClosed
	}
}

func (l *wsListener) Close() error {
	var err error
	l.once.Do(func() {
		close(l.done)
		err = l.srv.Close()
	})
	return err
}

func (l *wsListener) Addr() net.Addr { return l.listener.Addr() }
