package server

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"p2pg/internal/logger"
	"p2pg/pkg/protocol"
)

// Room 同名玩家的等待队列，凑满人数后交给 onMatch 开局
type Room struct {
	ctx    context.Context
	cancel context.CancelFunc

	name    string
	peers   int
	onMatch func(room string, group []Session)

	waiting    []Session
	count      atomic.Int32
	lastActive atomic.Int64

	joinCh  chan joinRequest
	leaveCh chan string
}

type joinRequest struct {
	session Session
	respCh  chan error
}

func NewRoom(parent context.Context, name string, peers int, onMatch func(string, []Session)) *Room {
	ctx, cancel := context.WithCancel(parent)

	r := &Room{
		ctx:     ctx,
		cancel:  cancel,
		name:    name,
		peers:   peers,
		onMatch: onMatch,
		joinCh:  make(chan joinRequest),
		leaveCh: make(chan string, 256),
	}
	r.touch()
	return r
}

func (r *Room) Run(wg *sync.WaitGroup) {
	defer wg.Done()

	logger.Log.Debugf("房间 %s 循环启动", r.name)

	for {
		select {
		case <-r.ctx.Done():
			logger.Log.Debugf("房间 %s 循环停止", r.name)
			return

		case req := <-r.joinCh:
			r.handleJoin(req)

		case id := <-r.leaveCh:
			r.handleLeave(id)
		}
	}
}

func (r *Room) Shutdown() {
	r.cancel()
}

// Join 进入等待队列；返回 nil 不代表已经开局
func (r *Room) Join(session Session) error {
	respCh := make(chan error, 1)

	select {
	case <-r.ctx.Done():
		return fmt.Errorf("房间 %s 已关闭", r.name)
	case r.joinCh <- joinRequest{session: session, respCh: respCh}:
	}

	select {
	case <-r.ctx.Done():
		return fmt.Errorf("房间 %s 已关闭", r.name)
	case err := <-respCh:
		return err
	}
}

func (r *Room) Leave(id string) {
	select {
	case <-r.ctx.Done():
	case r.leaveCh <- id:
	}
}

// Waiting 当前等待人数
func (r *Room) Waiting() int {
	return int(r.count.Load())
}

// IdleFor 房间最近一次变动距今多久
func (r *Room) IdleFor() time.Duration {
	return time.Since(time.Unix(0, r.lastActive.Load()))
}

func (r *Room) touch() {
	r.lastActive.Store(time.Now().UnixNano())
}

func (r *Room) handleJoin(req joinRequest) {
	for _, s := range r.waiting {
		if s.ID() == req.session.ID() {
			req.respCh <- fmt.Errorf("已在房间 %s 中等待", r.name)
			return
		}
	}

	r.waiting = append(r.waiting, req.session)
	r.touch()
	req.respCh <- nil

	logger.Log.Infof("玩家 %s 进入房间 %s (%d/%d)", req.session.ID(), r.name, len(r.waiting), r.peers)

	if len(r.waiting) < r.peers {
		r.count.Store(int32(len(r.waiting)))
		r.broadcastWaiting()
		return
	}

	// 先到先配
	group := slices.Clone(r.waiting[:r.peers])
	r.waiting = slices.Clone(r.waiting[r.peers:])
	r.count.Store(int32(len(r.waiting)))
	r.onMatch(r.name, group)

	if len(r.waiting) > 0 {
		r.broadcastWaiting()
	}
}

func (r *Room) handleLeave(id string) {
	idx := slices.IndexFunc(r.waiting, func(s Session) bool { return s.ID() == id })
	if idx < 0 {
		return
	}
	r.waiting = slices.Delete(r.waiting, idx, idx+1)
	r.count.Store(int32(len(r.waiting)))
	r.touch()

	logger.Log.Infof("玩家 %s 离开房间 %s，剩余 %d", id, r.name, len(r.waiting))
	r.broadcastWaiting()
}

func (r *Room) broadcastWaiting() {
	pkt := protocol.NewWaitingPacket(r.name, len(r.waiting), r.peers)
	for _, s := range r.waiting {
		if err := s.Send(pkt); err != nil {
			logger.Log.Warnf("发送等待消息到玩家 %s 失败: %v", s.ID(), err)
		}
	}
}
