package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"p2pg/internal/config"
	"p2pg/internal/logger"
)

// Peers 每场对局人数
const Peers = 2

// GameServer 会合与转发服务器
type GameServer struct {
	cfg     config.Server
	manager *RoomManager
	tickets *TicketIssuer
	metrics *Metrics

	// 网络
	listeners []ServerListener
	admin     *http.Server

	// 控制
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	shutdown chan struct{}
	once     sync.Once
}

// NewGameServer 创建服务器，配置应已校验
func NewGameServer(cfg config.Server) (*GameServer, error) {
	tickets, err := NewTicketIssuer(cfg.JWTSecret, cfg.BindTimeout)
	if err != nil {
		return nil, err
	}

	gin.SetMode(gin.ReleaseMode)

	ctx, cancel := context.WithCancel(context.Background())
	s := &GameServer{
		cfg:      cfg,
		tickets:  tickets,
		metrics:  &Metrics{},
		ctx:      ctx,
		cancel:   cancel,
		shutdown: make(chan struct{}),
	}
	s.manager = NewRoomManager(ctx, MatchOptions{
		Peers:          Peers,
		DesyncInterval: uint32(cfg.DesyncInterval),
		Seed:           cfg.Seed,
		InputDelay:     uint32(cfg.InputDelay),
		BindTimeout:    cfg.BindTimeout,
	}, tickets, s.metrics)
	return s, nil
}

// Listen 打开全部监听端口
func (s *GameServer) Listen() error {
	listener, err := newListener(s.cfg.Proto, s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("监听失败: %w", err)
	}
	s.listeners = append(s.listeners, listener)
	logger.Log.Infof("服务器监听中: %s://%s", s.cfg.Proto, listener.Addr())

	if s.cfg.WSAddr != "" {
		ws, err := newListener("ws", s.cfg.WSAddr)
		if err != nil {
			s.closeListeners()
			return fmt.Errorf("websocket 监听失败: %w", err)
		}
		s.listeners = append(s.listeners, ws)
		logger.Log.Infof("服务器监听中: ws://%s%s", ws.Addr(), wsPath)
	}

	if s.cfg.AdminAddr != "" {
		ln, err := net.Listen("tcp", s.cfg.AdminAddr)
		if err != nil {
			s.closeListeners()
			return fmt.Errorf("管理端口监听失败: %w", err)
		}
		s.admin = &http.Server{Handler: newAdminHandler(s)}
		go func() {
			if err := s.admin.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Log.Errorf("管理服务退出: %v", err)
			}
		}()
		logger.Log.Infof("管理接口: http://%s", ln.Addr())
	}
	return nil
}

// Serve 接受连接直到 Shutdown
func (s *GameServer) Serve() {
	s.manager.Run()

	for _, l := range s.listeners {
		s.wg.Add(1)
		go s.acceptLoop(l)
	}

	<-s.shutdown
	logger.Log.Info("服务器正在关闭...")
}

// Start 监听并阻塞运行
func (s *GameServer) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}
	s.Serve()
	return nil
}

// Addrs 实际监听地址，按 Listen 的顺序
func (s *GameServer) Addrs() []net.Addr {
	addrs := make([]net.Addr, len(s.listeners))
	for i, l := range s.listeners {
		addrs[i] = l.Addr()
	}
	return addrs
}

// Shutdown 优雅关闭服务器
func (s *GameServer) Shutdown() {
	s.once.Do(func() {
		logger.Log.Info("正在关闭服务器...")

		s.cancel()
		s.manager.Shutdown()
		s.closeListeners()
		if s.admin != nil {
			_ = s.admin.Close()
		}

		close(s.shutdown)
		s.wg.Wait()
		s.tickets.Close()

		logger.Log.Info("服务器已关闭")
	})
}

func (s *GameServer) closeListeners() {
	for _, l := range s.listeners {
		_ = l.Close()
	}
}

// acceptLoop 接受客户端连接
func (s *GameServer) acceptLoop(l ServerListener) {
	defer s.wg.Done()

	for {
		conn, err := l.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			logger.Log.Warnf("接受连接失败: %v", err)
			continue
		}

		logger.Log.Debugf("新连接来自: %s", conn.RemoteAddr())

		connection := NewConnection(conn, s)
		s.wg.Add(1)
		go connection.Handle(s.ctx, &s.wg)
	}
}

// ServerStats 管理接口返回的统计
type ServerStats struct {
	Metrics MetricsSnapshot `json:"metrics"`
	Rooms   ManagerStats    `json:"rooms"`
}

func (s *GameServer) Stats() ServerStats {
	return ServerStats{Metrics: s.metrics.Snapshot(), Rooms: s.manager.Stats()}
}
