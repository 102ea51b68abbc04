package client

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"p2pg/internal/config"
	"p2pg/internal/logger"
	"p2pg/pkg/core"
	"p2pg/pkg/input"
	"p2pg/pkg/protocol"
	"p2pg/pkg/rollback"
)

// Peers 每场对局人数
const Peers = 2

var (
	// ErrTransportNotReady 仍在等待匹配或对局开始，下一帧再轮询
	ErrTransportNotReady = errors.New("会话尚未就绪")
	// ErrPeerDisconnected 对手或服务器断开，回到大厅
	ErrPeerDisconnected = errors.New("对手已断开")
	ErrNotConnecting    = errors.New("未在连接中")
	ErrAlreadyConnected = errors.New("已在连接或对局中")
)

// State 编排器状态：Idle → Connecting → Active → Ended → Idle
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateActive
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateEnded:
		return "ended"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// LifecycleKind 给界面的会话事件
type LifecycleKind int

const (
	LifecycleConnecting LifecycleKind = iota + 1
	LifecycleReady
	LifecycleDisconnected
	LifecycleDesynced
	LifecycleFailed
)

func (k LifecycleKind) String() string {
	switch k {
	case LifecycleConnecting:
		return "connecting"
	case LifecycleReady:
		return "ready"
	case LifecycleDisconnected:
		return "disconnected"
	case LifecycleDesynced:
		return "desynced"
	case LifecycleFailed:
		return "failed"
	}
	return "unknown"
}

type LifecycleEvent struct {
	Kind LifecycleKind
	Err  error
}

// Session 一场对局的参数，开局后不再变化
type Session struct {
	MatchID        string
	Roster         []string // 按 id 升序，下标即槽位
	LocalID        string
	LocalSlot      int
	InputDelay     int
	DesyncInterval int
	Seed           uint64
}

// BuildRoster 把 id 升序排列，双方得到相同的槽位分配
func BuildRoster(peers []string, self string) ([]string, int, error) {
	roster := slices.Clone(peers)
	slices.Sort(roster)
	if len(slices.Compact(slices.Clone(roster))) != len(roster) {
		return nil, -1, fmt.Errorf("玩家 id 重复: %v", peers)
	}
	slot := slices.Index(roster, self)
	if slot < 0 {
		return nil, -1, fmt.Errorf("本地 id %s 不在名单 %v 中", self, peers)
	}
	return roster, slot, nil
}

// Orchestrator 会话编排：会合、开局、驱动回滚引擎、处理断开与不同步
// 所有方法都在游戏线程调用，不阻塞
type Orchestrator struct {
	cfg  config.Client
	open Opener
	step *core.StepContext

	state  State
	ctx    context.Context
	cancel context.CancelFunc
	signal Channel
	relay  Channel

	// 后台拨号的结果；Ready 之前是会合连接，之后是转发连接
	dialing chan dialResult

	// 预测超限时没送进引擎的输入，下一帧并入
	pending    input.PlayerInput
	hasPending bool

	ready   *protocol.Ready
	session *Session
	slots   map[string]int
	engine  *rollback.Engine[core.World]

	events []LifecycleEvent
}

// NewOrchestrator open 为空时使用真实网络
func NewOrchestrator(cfg config.Client, open Opener) *Orchestrator {
	if open == nil {
		open = OpenNetwork
	}
	return &Orchestrator{
		cfg:  cfg,
		open: open,
		step: core.NewStepContext(),
	}
}

func (o *Orchestrator) State() State { return o.state }

// Session 对局参数，未开局时为 nil
func (o *Orchestrator) Session() *Session { return o.session }

// Engine 回滚引擎，未开局时为 nil
func (o *Orchestrator) Engine() *rollback.Engine[core.World] { return o.engine }

func (o *Orchestrator) Arena() *core.Arena { return o.step.Arena }

// World 当前世界（只读），未开局时为 nil
func (o *Orchestrator) World() *core.World {
	if o.engine == nil {
		return nil
	}
	return o.engine.World()
}

// ConfirmedFrame 双方输入都已确认的帧，一次性特效以此为准
func (o *Orchestrator) ConfirmedFrame() int32 {
	if o.engine == nil {
		return -1
	}
	return o.engine.ConfirmedFrame()
}

// Events 取出并清空会话事件
func (o *Orchestrator) Events() []LifecycleEvent {
	events := o.events
	o.events = nil
	return events
}

func (o *Orchestrator) emit(kind LifecycleKind, err error) {
	o.events = append(o.events, LifecycleEvent{Kind: kind, Err: err})
}

type dialResult struct {
	ch  Channel
	err error
}

// Connect 在后台连接会合服务器，连上后由 PollReady 发出加入请求
// 地址或房间非法时返回 *config.ConfigurationError；连接失败由 PollReady 报告
func (o *Orchestrator) Connect(ctx context.Context) error {
	if o.state == StateConnecting || o.state == StateActive {
		return ErrAlreadyConnected
	}
	if err := o.cfg.Validate(); err != nil {
		return err
	}

	o.ctx, o.cancel = context.WithCancel(ctx)
	o.dial()

	o.state = StateConnecting
	o.emit(LifecycleConnecting, nil)
	logger.Log.Infof("连接会合服务器 %s", o.cfg.Rendezvous)
	return nil
}

// dial 拨号放到后台协程，游戏线程只在 pollDial 里非阻塞地取结果
func (o *Orchestrator) dial() {
	done := make(chan dialResult, 1)
	o.dialing = done

	ctx, open, addr := o.ctx, o.open, o.cfg.Rendezvous
	go func() {
		ch, err := open(ctx, addr)
		done <- dialResult{ch: ch, err: err}
	}()
}

// pollDial 拨号仍在进行时返回 nil, nil
func (o *Orchestrator) pollDial() (Channel, error) {
	select {
	case r := <-o.dialing:
		o.dialing = nil
		return r.ch, r.err
	default:
		return nil, nil
	}
}

// abandonDial 会话已结束，拨号晚到的连接直接关掉
func (o *Orchestrator) abandonDial() {
	if o.dialing == nil {
		return
	}
	go func(done <-chan dialResult) {
		if r := <-done; r.ch != nil {
			r.ch.Close()
		}
	}(o.dialing)
	o.dialing = nil
}

// PollReady 非阻塞地推进会合流程，开局后返回 true
// 仍在等待时返回 ErrTransportNotReady
func (o *Orchestrator) PollReady() (bool, error) {
	switch o.state {
	case StateActive:
		return true, nil
	case StateConnecting:
	default:
		return false, ErrNotConnecting
	}

	if err := o.pollConnecting(); err != nil {
		o.end(err)
		return false, err
	}
	if o.engine == nil {
		return false, ErrTransportNotReady
	}

	o.state = StateActive
	o.emit(LifecycleReady, nil)
	logger.Log.Infof("对局 %s 开始，槽位 %d，名单 %v", o.session.MatchID, o.session.LocalSlot, o.session.Roster)
	return true, nil
}

func (o *Orchestrator) pollConnecting() error {
	if o.dialing != nil {
		ch, err := o.pollDial()
		switch {
		case err != nil && o.ready == nil:
			return fmt.Errorf("连接会合服务器失败: %w", err)
		case err != nil:
			return fmt.Errorf("建立转发连接失败: %w", err)
		case ch != nil:
			if err := o.attach(ch); err != nil {
				return err
			}
		}
	}

	for o.signal != nil {
		m, ok := o.signal.Receive()
		if !ok {
			if err := o.signal.Err(); err != nil {
				return fmt.Errorf("会合连接断开: %w", err)
			}
			break
		}
		switch m := m.(type) {
		case *protocol.Waiting:
			logger.Log.Infof("房间 %s: %d/%d", m.Room, m.Joined, m.Needed)
		case *protocol.Ready:
			if err := o.handleReady(m); err != nil {
				return err
			}
		case *protocol.Error:
			return m
		}
	}

	if o.relay == nil {
		return nil
	}
	return o.pumpRelay()
}

// attach 拨号完成：Ready 之前发加入请求，之后出示票据
func (o *Orchestrator) attach(ch Channel) error {
	if o.ready == nil {
		o.signal = ch
		if err := ch.Send(protocol.NewJoinPacket(o.cfg.Room, Peers)); err != nil {
			return fmt.Errorf("发送加入请求失败: %w", err)
		}
		logger.Log.Infof("加入房间 %s，等待对手", o.cfg.Room)
		return nil
	}

	o.relay = ch
	if err := ch.Send(protocol.NewBindPacket(o.ready.Ticket)); err != nil {
		return fmt.Errorf("发送票据失败: %w", err)
	}
	return nil
}

// handleReady 关闭会合连接，在后台建立转发连接
func (o *Orchestrator) handleReady(m *protocol.Ready) error {
	if len(m.Peers) != Peers || !slices.Contains(m.Peers, m.PeerID) {
		return fmt.Errorf("匹配结果非法: %v / %s", m.Peers, m.PeerID)
	}
	if int(m.InputDelay) > rollback.MaxInputDelay {
		return fmt.Errorf("服务器下发的输入延迟 %d 超过 %d", m.InputDelay, rollback.MaxInputDelay)
	}
	o.ready = m
	o.signal.Close()
	o.signal = nil

	o.dial()
	logger.Log.Infof("匹配完成: 对局 %s，本地 id %s，输入延迟 %d", m.MatchID, m.PeerID, m.InputDelay)
	return nil
}

// start 收到 Start 后建立会话和回滚引擎
func (o *Orchestrator) start(m *protocol.Start) error {
	if o.ready == nil || m.MatchID != o.ready.MatchID {
		return fmt.Errorf("未知对局 %s", m.MatchID)
	}
	roster, slot, err := BuildRoster(m.Peers, o.ready.PeerID)
	if err != nil {
		return err
	}

	s := &Session{
		MatchID:        m.MatchID,
		Roster:         roster,
		LocalID:        o.ready.PeerID,
		LocalSlot:      slot,
		InputDelay:     int(o.ready.InputDelay),
		DesyncInterval: int(o.ready.DesyncInterval),
		Seed:           o.ready.Seed,
	}
	world := core.NewWorld(o.step.Arena, len(roster), s.Seed)
	engine, err := rollback.NewEngine(rollback.Config{
		Players:        len(roster),
		LocalSlot:      slot,
		InputDelay:     s.InputDelay,
		DesyncInterval: s.DesyncInterval,
		MaxPrediction:  o.cfg.MaxPrediction,
	}, core.NewRegistry(), world, o.step.Step, o)
	if err != nil {
		return err
	}

	o.slots = make(map[string]int, len(roster))
	for i, id := range roster {
		o.slots[id] = i
	}
	o.session = s
	o.engine = engine
	return nil
}

// pumpRelay 取出转发连接上的全部消息
func (o *Orchestrator) pumpRelay() error {
	for {
		m, ok := o.relay.Receive()
		if !ok {
			break
		}
		switch m := m.(type) {
		case *protocol.Start:
			if err := o.start(m); err != nil {
				return err
			}
		case *protocol.Input:
			if o.engine == nil {
				return fmt.Errorf("开局前收到输入")
			}
			slot, ok := o.slots[m.Peer]
			if !ok {
				return fmt.Errorf("未知玩家 %s 的输入", m.Peer)
			}
			if err := o.engine.AddRemoteInput(slot, m.Frame, m.Input); err != nil {
				return err
			}
		case *protocol.Checksum:
			if o.engine != nil {
				o.engine.AddRemoteChecksum(m.Frame, m.Sum)
			}
		case *protocol.PeerLeft:
			return fmt.Errorf("%w: %s %s", ErrPeerDisconnected, m.Peer, m.Reason)
		case *protocol.Error:
			return m
		}
	}

	if err := o.relay.Err(); err != nil {
		var decodeErr *input.InputDecodeError
		if errors.As(err, &decodeErr) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrPeerDisconnected, err)
	}
	return nil
}

// Tick 每帧调用一次：收远端数据，推进引擎
// 预测帧数超限时本帧跳过并返回 nil，输入留到下一帧；断开或不同步时结束会话并返回错误
func (o *Orchestrator) Tick(local input.PlayerInput) error {
	if o.state != StateActive {
		return nil
	}
	if err := o.pumpRelay(); err != nil {
		o.end(err)
		return err
	}

	if o.hasPending {
		local = carryOver(o.pending, local)
	}
	err := o.engine.Advance(local)
	switch {
	case errors.Is(err, rollback.ErrPredictionThreshold):
		o.pending, o.hasPending = local, true
	case err != nil:
		o.end(err)
		return err
	default:
		o.hasPending = false
	}

	for _, ev := range o.engine.Events() {
		switch ev.Kind {
		case rollback.EventRollback:
			logger.Log.Debugf("回滚: 从第 %d 帧重算 %d 帧", ev.Frame, ev.Frames)
		case rollback.EventDesync:
			logger.Log.Errorf("%v", ev.Desync)
			o.end(ev.Desync)
			return ev.Desync
		}
	}
	return nil
}

// carryOver 上一帧被跳过的射击不能丢，触控点按只出现在一帧里
func carryOver(pending, next input.PlayerInput) input.PlayerInput {
	if pending.Firing() && !next.Firing() {
		next.Buttons |= input.ButtonFire
		next.Aim = pending.Aim
	}
	return next
}

// SendInput 实现 rollback.Transport
func (o *Orchestrator) SendInput(frame int32, in input.PlayerInput) error {
	if o.relay == nil {
		return ErrPeerDisconnected
	}
	return o.relay.Send(protocol.NewInputPacket(o.session.LocalID, frame, in))
}

// SendChecksum 实现 rollback.Transport
func (o *Orchestrator) SendChecksum(frame int32, sum uint64) error {
	if o.relay == nil {
		return ErrPeerDisconnected
	}
	return o.relay.Send(protocol.NewChecksumPacket(o.session.LocalID, frame, sum))
}

// Leave 主动离开，任何状态都回到 Idle
func (o *Orchestrator) Leave() {
	if o.state == StateConnecting || o.state == StateActive {
		o.teardown(LifecycleDisconnected, nil)
	}
	o.state = StateIdle
}

func (o *Orchestrator) end(err error) {
	var desync *rollback.DesyncError
	switch {
	case errors.As(err, &desync):
		o.teardown(LifecycleDesynced, err)
	case errors.Is(err, ErrPeerDisconnected):
		o.teardown(LifecycleDisconnected, err)
	default:
		o.teardown(LifecycleFailed, err)
	}
}

// teardown 关闭连接、销毁会话
func (o *Orchestrator) teardown(kind LifecycleKind, err error) {
	o.abandonDial()
	if o.signal != nil {
		o.signal.Close()
		o.signal = nil
	}
	if o.relay != nil {
		o.relay.Close()
		o.relay = nil
	}
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	o.ready = nil
	o.session = nil
	o.slots = nil
	o.engine = nil
	o.hasPending = false

	o.state = StateEnded
	o.emit(kind, err)
	if err != nil {
		logger.Log.Warnf("会话结束 (%s): %v", kind, err)
	} else {
		logger.Log.Infof("会话结束 (%s)", kind)
	}
}
