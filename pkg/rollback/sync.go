package rollback

import (
	"errors"
	"fmt"

	"p2pg/pkg/input"
)

// ErrInvalidConfig 引擎参数非法
var ErrInvalidConfig = errors.New("回滚参数非法")

const (
	MaxInputDelay        = 16
	DefaultMaxPrediction = 8
	// 校验和最多保留多少帧等待对端
	checksumRetention = 600
)

// Config 回滚引擎参数
type Config struct {
	Players        int // 玩家数
	LocalSlot      int // 本地玩家槽位
	InputDelay     int // 本地输入延迟帧数
	DesyncInterval int // 校验间隔帧数，0 表示关闭
	MaxPrediction  int // 最多领先确认帧多少帧
}

// Validate 检查参数
func (c Config) Validate() error {
	switch {
	case c.Players < 1:
		return fmt.Errorf("%w: 玩家数 %d", ErrInvalidConfig, c.Players)
	case c.LocalSlot < 0 || c.LocalSlot >= c.Players:
		return fmt.Errorf("%w: 本地槽位 %d", ErrInvalidConfig, c.LocalSlot)
	case c.InputDelay < 0 || c.InputDelay > MaxInputDelay:
		return fmt.Errorf("%w: 输入延迟 %d", ErrInvalidConfig, c.InputDelay)
	case c.DesyncInterval < 0:
		return fmt.Errorf("%w: 校验间隔 %d", ErrInvalidConfig, c.DesyncInterval)
	case c.MaxPrediction < 1:
		return fmt.Errorf("%w: 最大预测帧数 %d", ErrInvalidConfig, c.MaxPrediction)
	}
	return nil
}

// Transport 引擎向对端发送数据的通道
type Transport interface {
	SendInput(frame int32, in input.PlayerInput) error
	SendChecksum(frame int32, sum uint64) error
}

// StepFunc 确定性模拟一帧
type StepFunc[W any] func(w *W, inputs []input.PlayerInput)

type slotInput struct {
	in input.PlayerInput
	ok bool
}

type frameRecord struct {
	snap   Snapshot
	inputs []input.PlayerInput
	sum    uint64
	hasSum bool
}

// Engine 锁步回滚引擎
// 非并发安全，所有方法应在同一个逻辑线程调用
type Engine[W any] struct {
	cfg       Config
	reg       *Registry[W]
	world     *W
	step      StepFunc[W]
	transport Transport

	frame         int32 // 下一个待模拟的帧
	inputs        []*Window[slotInput]
	lastConfirmed []int32 // 每个槽位连续确认到的帧
	history       *Window[frameRecord]
	incorrect     int32 // 需要回滚的最早帧，-1 表示无

	nextCheck  int32
	localSums  map[int32]uint64
	remoteSums map[int32]uint64

	events []Event
	stats  Stats
}

// NewEngine 创建引擎，world 为第 0 帧之前的状态
func NewEngine[W any](cfg Config, reg *Registry[W], world *W, step StepFunc[W], transport Transport) (*Engine[W], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if reg == nil || world == nil || step == nil {
		return nil, fmt.Errorf("%w: 缺少状态清单、世界或模拟函数", ErrInvalidConfig)
	}

	e := &Engine[W]{
		cfg:           cfg,
		reg:           reg,
		world:         world,
		step:          step,
		transport:     transport,
		inputs:        make([]*Window[slotInput], cfg.Players),
		lastConfirmed: make([]int32, cfg.Players),
		history:       NewWindow[frameRecord](cfg.MaxPrediction+cfg.InputDelay+8, 0),
		incorrect:     -1,
		nextCheck:     int32(cfg.DesyncInterval),
		localSums:     make(map[int32]uint64),
		remoteSums:    make(map[int32]uint64),
	}

	size := 2*(cfg.MaxPrediction+cfg.InputDelay) + 16
	for slot := range e.inputs {
		e.inputs[slot] = NewWindow[slotInput](size, 0)
		// 延迟期内所有人的输入都为空
		for f := int32(0); f < int32(cfg.InputDelay); f++ {
			_ = e.inputs[slot].Set(f, slotInput{ok: true})
		}
		e.lastConfirmed[slot] = int32(cfg.InputDelay) - 1
	}
	return e, nil
}

// World 当前（可能是预测的）状态，只读
func (e *Engine[W]) World() *W {
	return e.world
}

// Frame 下一个待模拟的帧，等于已模拟帧数
func (e *Engine[W]) Frame() int32 {
	return e.frame
}

// LocalSlot 本地玩家槽位
func (e *Engine[W]) LocalSlot() int {
	return e.cfg.LocalSlot
}

// ConfirmedFrame 所有玩家输入都已确认的最大帧，-1 表示尚无
func (e *Engine[W]) ConfirmedFrame() int32 {
	lowest := e.lastConfirmed[0]
	for _, f := range e.lastConfirmed[1:] {
		if f < lowest {
			lowest = f
		}
	}
	return lowest
}

// Stats 运行统计
func (e *Engine[W]) Stats() Stats {
	return e.stats
}

// Events 取出并清空待处理事件
func (e *Engine[W]) Events() []Event {
	events := e.events
	e.events = nil
	return events
}

// AddRemoteInput 写入远端玩家某帧的确认输入
// 与预测值不同时标记回滚，在下一次 Advance 开始时重算
func (e *Engine[W]) AddRemoteInput(slot int, frame int32, in input.PlayerInput) error {
	if slot < 0 || slot >= e.cfg.Players || slot == e.cfg.LocalSlot {
		return fmt.Errorf("%w: %d", ErrInvalidSlot, slot)
	}
	w := e.inputs[slot]
	if frame < w.Start() {
		return nil
	}
	prev, err := w.Get(frame)
	if err != nil {
		return fmt.Errorf("远端输入: %w", err)
	}
	if prev.ok {
		return nil
	}
	_ = w.Set(frame, slotInput{in: in, ok: true})

	for {
		next, err := w.Get(e.lastConfirmed[slot] + 1)
		if err != nil || !next.ok {
			break
		}
		e.lastConfirmed[slot]++
	}

	if frame < e.frame {
		rec, err := e.history.Get(frame)
		if err == nil && slot < len(rec.inputs) && rec.inputs[slot] != in {
			if e.incorrect < 0 || frame < e.incorrect {
				e.incorrect = frame
			}
		}
	}
	return nil
}

// AddRemoteChecksum 写入对端某检查点的校验和
func (e *Engine[W]) AddRemoteChecksum(frame int32, sum uint64) {
	e.remoteSums[frame] = sum
	e.compare(frame)
}

// Advance 推进一帧：先处理回滚，再登记本地输入并模拟
// 返回 ErrPredictionThreshold 时本帧未推进，本地输入被丢弃
func (e *Engine[W]) Advance(local input.PlayerInput) error {
	if err := e.rollback(); err != nil {
		return err
	}

	if e.frame-e.ConfirmedFrame() > int32(e.cfg.MaxPrediction) {
		e.stats.Stalls++
		return ErrPredictionThreshold
	}

	target := e.frame + int32(e.cfg.InputDelay)
	slot := e.cfg.LocalSlot
	if err := e.inputs[slot].Set(target, slotInput{in: local, ok: true}); err != nil {
		return fmt.Errorf("本地输入: %w", err)
	}
	if target > e.lastConfirmed[slot] {
		e.lastConfirmed[slot] = target
	}
	if e.transport != nil {
		if err := e.transport.SendInput(target, local); err != nil {
			return fmt.Errorf("发送输入失败: %w", err)
		}
	}

	if err := e.simulate(); err != nil {
		return err
	}
	if err := e.checkDesync(); err != nil {
		return err
	}
	e.prune()
	return nil
}

func (e *Engine[W]) rollback() error {
	if e.incorrect < 0 {
		return nil
	}
	from := e.incorrect
	e.incorrect = -1

	rec, err := e.history.Get(from)
	if err != nil {
		return fmt.Errorf("回滚到第 %d 帧失败: %w", from, err)
	}
	if err := e.reg.Restore(e.world, rec.snap); err != nil {
		return fmt.Errorf("回滚到第 %d 帧失败: %w", from, err)
	}

	to := e.frame
	e.frame = from
	for e.frame < to {
		if err := e.simulate(); err != nil {
			return err
		}
	}

	e.stats.Rollbacks++
	e.stats.Resimulated += int(to - from)
	e.events = append(e.events, Event{Kind: EventRollback, Frame: from, Frames: to - from})
	return nil
}

func (e *Engine[W]) simulate() error {
	f := e.frame
	rec := frameRecord{
		snap:   e.reg.Save(e.world),
		inputs: e.frameInputs(f),
	}
	if e.cfg.DesyncInterval > 0 && f > 0 && f%int32(e.cfg.DesyncInterval) == 0 {
		rec.sum = e.reg.Checksum(e.world)
		rec.hasSum = true
	}
	if err := e.history.Set(f, rec); err != nil {
		return fmt.Errorf("保存第 %d 帧快照失败: %w", f, err)
	}
	e.step(e.world, rec.inputs)
	e.frame++
	return nil
}

// frameInputs 已确认的用确认值，否则重复该玩家最后一次确认的输入
func (e *Engine[W]) frameInputs(f int32) []input.PlayerInput {
	ins := make([]input.PlayerInput, e.cfg.Players)
	for slot := range ins {
		if si, err := e.inputs[slot].Get(f); err == nil && si.ok {
			ins[slot] = si.in
			continue
		}
		if lc := e.lastConfirmed[slot]; lc >= 0 {
			if si, err := e.inputs[slot].Get(lc); err == nil {
				ins[slot] = si.in
			}
		}
	}
	return ins
}

// checkDesync 检查点之前的输入全部确认后发送本地校验和
func (e *Engine[W]) checkDesync() error {
	if e.cfg.DesyncInterval <= 0 {
		return nil
	}
	confirmed := e.ConfirmedFrame()
	for e.nextCheck <= confirmed+1 && e.nextCheck < e.frame {
		s := e.nextCheck
		e.nextCheck += int32(e.cfg.DesyncInterval)

		rec, err := e.history.Get(s)
		if err != nil || !rec.hasSum {
			continue
		}
		e.stats.Checks++
		e.localSums[s] = rec.sum
		if e.transport != nil {
			if err := e.transport.SendChecksum(s, rec.sum); err != nil {
				return fmt.Errorf("发送校验和失败: %w", err)
			}
		}
		e.compare(s)
	}
	return nil
}

func (e *Engine[W]) compare(frame int32) {
	local, ok := e.localSums[frame]
	if !ok {
		return
	}
	remote, ok := e.remoteSums[frame]
	if !ok {
		return
	}
	delete(e.localSums, frame)
	delete(e.remoteSums, frame)
	if local != remote {
		e.events = append(e.events, Event{
			Kind:   EventDesync,
			Frame:  frame,
			Desync: &DesyncError{Frame: frame, Local: local, Remote: remote},
		})
	}
}

func (e *Engine[W]) prune() {
	confirmed := e.ConfirmedFrame()
	keep := confirmed + 1
	if keep > e.frame {
		keep = e.frame
	}
	if keep > 0 {
		e.history.AdvanceTo(keep)
	}

	inStart := confirmed
	if inStart > keep {
		inStart = keep
	}
	if inStart > 0 {
		for _, w := range e.inputs {
			w.AdvanceTo(inStart)
		}
	}

	horizon := e.frame - checksumRetention
	for f := range e.localSums {
		if f < horizon {
			delete(e.localSums, f)
		}
	}
	for f := range e.remoteSums {
		if f < horizon {
			delete(e.remoteSums, f)
		}
	}
}
