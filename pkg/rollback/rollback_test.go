package rollback

import (
	"errors"
	"testing"

	"github.com/davecgh/go-spew/spew"

	"p2pg/pkg/input"
)

// toyWorld 两个玩家在一条线上移动，带一个历史切片用于验证深拷贝
type toyWorld struct {
	Pos   [2]int64
	Trail []int64
	Frame int32
}

func toyRegistry() *Registry[toyWorld] {
	reg := NewRegistry[toyWorld]()
	Track(reg, KindComponent, "pos", func(w *toyWorld) *[2]int64 { return &w.Pos }, nil,
		func(h *Hasher, v [2]int64) {
			h.Int64(v[0])
			h.Int64(v[1])
		})
	Track(reg, KindComponent, "trail", func(w *toyWorld) *[]int64 { return &w.Trail },
		func(v []int64) []int64 { return append([]int64(nil), v...) },
		func(h *Hasher, v []int64) {
			h.Int(len(v))
			for _, x := range v {
				h.Int64(x)
			}
		})
	Track(reg, KindResource, "frame", func(w *toyWorld) *int32 { return &w.Frame }, nil,
		func(h *Hasher, v int32) { h.Int64(int64(v)) })
	return reg
}

func toyStep(w *toyWorld, inputs []input.PlayerInput) {
	for i, in := range inputs {
		if in.Moving() {
			w.Pos[i] += int64(in.Direction) - 128
		}
		if in.Firing() {
			w.Trail = append(w.Trail, w.Pos[i])
		}
	}
	w.Frame++
}

func scripted(slot int, frame int32) input.PlayerInput {
	f := int(frame)
	in := input.PlayerInput{Aim: uint8(f * 7)}
	if (f/5+slot)%3 != 0 {
		in.Buttons |= input.ButtonMove
		in.Direction = uint8((f*13 + slot*101) % 256)
	}
	if (f+slot)%11 == 0 {
		in.Buttons |= input.ButtonFire
	}
	return in
}

func TestRegistry_SaveRestore(t *testing.T) {
	reg := toyRegistry()
	w := &toyWorld{Pos: [2]int64{1, 2}, Trail: []int64{5}}
	snap := reg.Save(w)
	sum := reg.Checksum(w)

	w.Pos[0] = 99
	w.Trail[0] = 42
	w.Trail = append(w.Trail, 7)
	if reg.Checksum(w) == sum {
		t.Fatalf("expected checksum to change with state")
	}

	if err := reg.Restore(w, snap); err != nil {
		t.Fatalf("Restore returned error: %v", err)
	}
	if w.Pos != [2]int64{1, 2} || len(w.Trail) != 1 || w.Trail[0] != 5 {
		t.Fatalf("unexpected restored state: %s", spew.Sdump(w))
	}
	if reg.Checksum(w) != sum {
		t.Fatalf("expected checksum to match after restore")
	}

	// 快照不受恢复后修改影响
	w.Trail[0] = 1
	_ = reg.Restore(w, snap)
	if w.Trail[0] != 5 {
		t.Fatalf("snapshot shares memory with world")
	}
}

func TestRegistry_Names(t *testing.T) {
	reg := toyRegistry()
	names := reg.Names()
	if len(names) != 3 || names[0] != "pos" || names[2] != "frame" {
		t.Fatalf("unexpected names: %v", names)
	}
	if !reg.Tracked("trail") || reg.Tracked("camera") {
		t.Fatalf("unexpected Tracked result")
	}

	defer func() {
		if recover() == nil {
			t.Fatalf("expected duplicate registration to panic")
		}
	}()
	Track(reg, KindResource, "pos", func(w *toyWorld) *int32 { return &w.Frame }, nil, func(*Hasher, int32) {})
}

func TestWindow(t *testing.T) {
	w := NewWindow[int](4, 10)
	for pos := w.Start(); pos < w.End(); pos++ {
		if err := w.Set(pos, int(pos)); err != nil {
			t.Fatalf("Set(%d) returned error: %v", pos, err)
		}
	}
	w.Advance()
	w.Advance()
	if w.Start() != 12 || w.End() != 16 {
		t.Fatalf("unexpected bounds [%d, %d)", w.Start(), w.End())
	}
	if v, _ := w.Get(12); v != 12 {
		t.Fatalf("expected 12, got %d", v)
	}
	if v, _ := w.Get(15); v != 0 {
		t.Fatalf("expected vacated slot to be zero, got %d", v)
	}
	if _, err := w.Get(11); !errors.Is(err, ErrOutOfWindow) {
		t.Fatalf("expected ErrOutOfWindow, got %v", err)
	}
	if err := w.Set(16, 1); !errors.Is(err, ErrOutOfWindow) {
		t.Fatalf("expected ErrOutOfWindow, got %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	bad := []Config{
		{Players: 0, MaxPrediction: 8},
		{Players: 2, LocalSlot: 2, MaxPrediction: 8},
		{Players: 2, InputDelay: -1, MaxPrediction: 8},
		{Players: 2, InputDelay: MaxInputDelay + 1, MaxPrediction: 8},
		{Players: 2, DesyncInterval: -1, MaxPrediction: 8},
		{Players: 2},
	}
	for _, cfg := range bad {
		if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("expected ErrInvalidConfig for %+v, got %v", cfg, err)
		}
	}
}

// pipe 内存中的单向通道，消息在 latency 帧后送达
type packet struct {
	due      int
	frame    int32
	in       input.PlayerInput
	sum      uint64
	checksum bool
}

type pipe struct {
	now     *int
	latency int
	queue   []packet
}

func (p *pipe) SendInput(frame int32, in input.PlayerInput) error {
	p.queue = append(p.queue, packet{due: *p.now + p.latency, frame: frame, in: in})
	return nil
}

func (p *pipe) SendChecksum(frame int32, sum uint64) error {
	p.queue = append(p.queue, packet{due: *p.now + p.latency, frame: frame, sum: sum, checksum: true})
	return nil
}

func (p *pipe) deliver(t *testing.T, e *Engine[toyWorld], slot int) {
	rest := p.queue[:0]
	for _, pk := range p.queue {
		if pk.due > *p.now {
			rest = append(rest, pk)
			continue
		}
		if pk.checksum {
			e.AddRemoteChecksum(pk.frame, pk.sum)
			continue
		}
		if err := e.AddRemoteInput(slot, pk.frame, pk.in); err != nil {
			t.Fatalf("AddRemoteInput(%d, %d) returned error: %v", slot, pk.frame, err)
		}
	}
	p.queue = rest
}

type peerPair struct {
	now    int
	a, b   *Engine[toyWorld]
	ab, ba *pipe
}

func newPeerPair(t *testing.T, delay, latency int) *peerPair {
	p := &peerPair{}
	p.ab = &pipe{now: &p.now, latency: latency}
	p.ba = &pipe{now: &p.now, latency: latency}
	var err error
	p.a, err = NewEngine(Config{Players: 2, LocalSlot: 0, InputDelay: delay, DesyncInterval: 10, MaxPrediction: 8},
		toyRegistry(), &toyWorld{}, toyStep, p.ab)
	if err != nil {
		t.Fatalf("NewEngine returned error: %v", err)
	}
	p.b, err = NewEngine(Config{Players: 2, LocalSlot: 1, InputDelay: delay, DesyncInterval: 10, MaxPrediction: 8},
		toyRegistry(), &toyWorld{}, toyStep, p.ba)
	if err != nil {
		t.Fatalf("NewEngine returned error: %v", err)
	}
	return p
}

func (p *peerPair) tick(t *testing.T, until int32) {
	p.ab.deliver(t, p.b, 0)
	p.ba.deliver(t, p.a, 1)
	for i, e := range []*Engine[toyWorld]{p.a, p.b} {
		if e.Frame() >= until {
			continue
		}
		// 本地输入按本地帧号取值，与对端无关
		err := e.Advance(scripted(i, e.Frame()))
		if err != nil && !errors.Is(err, ErrPredictionThreshold) {
			t.Fatalf("peer %d Advance returned error: %v", i, err)
		}
		for _, ev := range e.Events() {
			if ev.Kind == EventDesync {
				t.Fatalf("peer %d reported desync: %v", i, ev.Desync)
			}
		}
	}
	p.now++
}

// reference 直接用真实输入模拟 n 帧
func reference(delay int, n int32) *toyWorld {
	w := &toyWorld{}
	for f := int32(0); f < n; f++ {
		ins := make([]input.PlayerInput, 2)
		if int(f) >= delay {
			for slot := range ins {
				ins[slot] = scripted(slot, f-int32(delay))
			}
		}
		toyStep(w, ins)
	}
	return w
}

func TestEngine_PeersConverge(t *testing.T) {
	for _, c := range []struct{ delay, latency int }{{0, 0}, {2, 1}, {2, 4}, {0, 6}} {
		p := newPeerPair(t, c.delay, c.latency)
		const frames = 300
		for i := 0; i < 2000 && (p.a.Frame() < frames || p.b.Frame() < frames); i++ {
			p.tick(t, frames)
		}
		// 排空在途输入，让最后的预测得到纠正
		for i := 0; i < 20; i++ {
			p.ab.deliver(t, p.b, 0)
			p.ba.deliver(t, p.a, 1)
			p.now++
		}
		_ = p.a.rollback()
		_ = p.b.rollback()

		want := reference(c.delay, frames)
		reg := toyRegistry()
		if reg.Checksum(p.a.World()) != reg.Checksum(want) || reg.Checksum(p.b.World()) != reg.Checksum(want) {
			t.Fatalf("delay=%d latency=%d: peers diverged\nA: %s\nB: %s\nwant: %s",
				c.delay, c.latency, spew.Sdump(p.a.World()), spew.Sdump(p.b.World()), spew.Sdump(want))
		}
		if c.latency > c.delay && p.a.Stats().Rollbacks == 0 {
			t.Fatalf("delay=%d latency=%d: expected rollbacks under latency", c.delay, c.latency)
		}
		if p.a.Stats().Checks == 0 || p.b.Stats().Checks == 0 {
			t.Fatalf("expected checksums to be exchanged")
		}
	}
}

func TestEngine_LateInputRollsBack(t *testing.T) {
	reg := toyRegistry()
	e, err := NewEngine(Config{Players: 2, LocalSlot: 0, MaxPrediction: 8}, reg, &toyWorld{}, toyStep, nil)
	if err != nil {
		t.Fatalf("NewEngine returned error: %v", err)
	}

	move := input.PlayerInput{Direction: 138, Buttons: input.ButtonMove}
	for f := 0; f < 5; f++ {
		if err := e.Advance(input.PlayerInput{}); err != nil {
			t.Fatalf("Advance returned error: %v", err)
		}
	}
	// 预测远端静止，实际第 0 帧起一直在移动
	for f := int32(0); f < 5; f++ {
		if err := e.AddRemoteInput(1, f, move); err != nil {
			t.Fatalf("AddRemoteInput returned error: %v", err)
		}
	}
	if err := e.Advance(input.PlayerInput{}); err != nil {
		t.Fatalf("Advance returned error: %v", err)
	}

	events := e.Events()
	if len(events) != 1 || events[0].Kind != EventRollback || events[0].Frame != 0 || events[0].Frames != 5 {
		t.Fatalf("unexpected events: %s", spew.Sdump(events))
	}
	// 第 5 帧预测为最后确认的输入
	if got := e.World().Pos[1]; got != 6*10 {
		t.Fatalf("expected remote position 60 after correction, got %d", got)
	}
	if e.ConfirmedFrame() != 4 {
		t.Fatalf("expected confirmed frame 4, got %d", e.ConfirmedFrame())
	}
}

func TestEngine_PredictionStall(t *testing.T) {
	e, err := NewEngine(Config{Players: 2, LocalSlot: 0, MaxPrediction: 3}, toyRegistry(), &toyWorld{}, toyStep, nil)
	if err != nil {
		t.Fatalf("NewEngine returned error: %v", err)
	}
	// 最多预测 3 帧
	for i := 0; i < 3; i++ {
		if err := e.Advance(input.PlayerInput{}); err != nil {
			t.Fatalf("Advance %d returned error: %v", i, err)
		}
	}
	if err := e.Advance(input.PlayerInput{}); !errors.Is(err, ErrPredictionThreshold) {
		t.Fatalf("expected ErrPredictionThreshold, got %v", err)
	}
	if e.Frame() != 3 {
		t.Fatalf("expected stalled engine to stay on frame 3, got %d", e.Frame())
	}

	_ = e.AddRemoteInput(1, 0, input.PlayerInput{})
	if err := e.Advance(input.PlayerInput{}); err != nil {
		t.Fatalf("expected engine to resume, got %v", err)
	}
	if e.Stats().Stalls != 1 {
		t.Fatalf("expected one stall, got %d", e.Stats().Stalls)
	}
}

func TestEngine_DetectsDesync(t *testing.T) {
	e, err := NewEngine(Config{Players: 2, LocalSlot: 0, DesyncInterval: 2, MaxPrediction: 8}, toyRegistry(), &toyWorld{}, toyStep, nil)
	if err != nil {
		t.Fatalf("NewEngine returned error: %v", err)
	}
	e.AddRemoteChecksum(2, 0xdead)
	for f := int32(0); f < 4; f++ {
		_ = e.AddRemoteInput(1, f, input.PlayerInput{})
		if err := e.Advance(input.PlayerInput{}); err != nil {
			t.Fatalf("Advance returned error: %v", err)
		}
	}

	var desync *DesyncError
	for _, ev := range e.Events() {
		if ev.Kind == EventDesync {
			desync = ev.Desync
		}
	}
	if desync == nil || desync.Frame != 2 || desync.Remote != 0xdead {
		t.Fatalf("expected desync at frame 2, got %v", desync)
	}
}

func TestEngine_RejectsLocalSlot(t *testing.T) {
	e, _ := NewEngine(Config{Players: 2, LocalSlot: 1, MaxPrediction: 8}, toyRegistry(), &toyWorld{}, toyStep, nil)
	if err := e.AddRemoteInput(1, 0, input.PlayerInput{}); !errors.Is(err, ErrInvalidSlot) {
		t.Fatalf("expected ErrInvalidSlot, got %v", err)
	}
	if err := e.AddRemoteInput(2, 0, input.PlayerInput{}); !errors.Is(err, ErrInvalidSlot) {
		t.Fatalf("expected ErrInvalidSlot, got %v", err)
	}
}
