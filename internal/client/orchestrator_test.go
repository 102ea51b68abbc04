package client

import (
	"context"
	"errors"
	"net"
	"slices"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"

	"p2pg/internal/config"
	"p2pg/pkg/core"
	"p2pg/pkg/input"
	"p2pg/pkg/protocol"
)

// hub 内存中的会合/转发服务器，单线程驱动
type hub struct {
	ids     []string // 依次分配给加入者
	joined  []*memChannel
	bound   map[string]*memChannel
	roster  []string
	desync  uint32
	seed    uint64
	delay   uint32
	started bool

	sent map[string][]input.PlayerInput // 每人发出的输入，按发送顺序
}

func newHub(ids ...string) *hub {
	return &hub{
		ids:    ids,
		bound:  make(map[string]*memChannel),
		desync: 30,
		seed:   99,
		delay:  2,
		sent:   make(map[string][]input.PlayerInput),
	}
}

func (h *hub) open(ctx context.Context, addr string) (Channel, error) {
	return &memChannel{hub: h}, nil
}

type memChannel struct {
	hub    *hub
	peer   string
	inbox  []protocol.Message
	err    error
	closed bool
}

func (c *memChannel) Send(pkt *protocol.Packet) error {
	if c.closed {
		return net.ErrClosed
	}
	return c.hub.handle(c, pkt)
}

func (c *memChannel) Receive() (protocol.Message, bool) {
	if len(c.inbox) == 0 {
		return nil, false
	}
	m := c.inbox[0]
	c.inbox = c.inbox[1:]
	return m, true
}

func (c *memChannel) Err() error { return c.err }

func (c *memChannel) Close() {
	if c.closed {
		return
	}
	c.closed = true
	c.hub.disconnect(c)
}

// deliver 经过一次编解码，和真实网络一样
func (c *memChannel) deliver(pkt *protocol.Packet) {
	data, err := protocol.MarshalPacket(pkt)
	if err != nil {
		c.err = err
		return
	}
	back, err := protocol.UnmarshalPacket(data)
	if err != nil {
		c.err = err
		return
	}
	m, err := protocol.Decode(back)
	if err != nil {
		c.err = err
		return
	}
	c.inbox = append(c.inbox, m)
}

func (h *hub) handle(c *memChannel, pkt *protocol.Packet) error {
	m, err := protocol.Decode(pkt)
	if err != nil {
		return err
	}
	switch m := m.(type) {
	case *protocol.Join:
		c.peer = h.ids[len(h.joined)]
		h.joined = append(h.joined, c)
		if len(h.joined) < int(m.Peers) {
			c.deliver(protocol.NewWaitingPacket(m.Room, len(h.joined), int(m.Peers)))
			return nil
		}
		for _, j := range h.joined {
			h.roster = append(h.roster, j.peer)
		}
		for _, j := range h.joined {
			j.deliver(protocol.NewPacket(&protocol.Ready{
				MatchID:        "match",
				PeerID:         j.peer,
				Peers:          h.roster,
				Ticket:         "ticket-" + j.peer,
				DesyncInterval: h.desync,
				Seed:           h.seed,
				InputDelay:     h.delay,
			}))
		}

	case *protocol.Bind:
		c.peer = strings.TrimPrefix(m.Ticket, "ticket-")
		h.bound[c.peer] = c
		if len(h.bound) == len(h.roster) {
			h.started = true
			for _, p := range h.roster {
				h.bound[p].deliver(protocol.NewStartPacket("match", h.roster))
			}
		}

	case *protocol.Input:
		h.sent[c.peer] = append(h.sent[c.peer], m.Input)
		h.relay(c, protocol.NewInputPacket(c.peer, m.Frame, m.Input))

	case *protocol.Checksum:
		h.relay(c, protocol.NewChecksumPacket(c.peer, m.Frame, m.Sum))
	}
	return nil
}

func (h *hub) relay(from *memChannel, pkt *protocol.Packet) {
	for p, c := range h.bound {
		if p != from.peer {
			c.deliver(pkt)
		}
	}
}

func (h *hub) disconnect(c *memChannel) {
	if h.bound[c.peer] != c {
		return
	}
	delete(h.bound, c.peer)
	for _, other := range h.bound {
		other.deliver(protocol.NewPeerLeftPacket(c.peer, "断开连接"))
	}
}

func testClientConfig() config.Client {
	return config.Client{
		Rendezvous:    "tcp://127.0.0.1:9998",
		Room:          "duel",
		MaxPrediction: 8,
	}
}

// waitFor 拨号在后台完成，轮询直到 cond 成立
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

// pollPair 两边轮流 PollReady，直到都开局
func pollPair(t *testing.T, a, b *Orchestrator) {
	t.Helper()
	waitFor(t, "both peers active", func() bool {
		okA, errA := a.PollReady()
		okB, errB := b.PollReady()
		if errA != nil && !errors.Is(errA, ErrTransportNotReady) {
			t.Fatalf("poll a: %v", errA)
		}
		if errB != nil && !errors.Is(errB, ErrTransportNotReady) {
			t.Fatalf("poll b: %v", errB)
		}
		return okA && okB
	})
}

// connectPair 让两个编排器完成会合
func connectPair(t *testing.T, h *hub) (*Orchestrator, *Orchestrator) {
	t.Helper()
	return connectPairWith(t, h, testClientConfig(), testClientConfig())
}

func connectPairWith(t *testing.T, h *hub, cfgA, cfgB config.Client) (*Orchestrator, *Orchestrator) {
	t.Helper()
	a := NewOrchestrator(cfgA, h.open)
	b := NewOrchestrator(cfgB, h.open)

	// a 先进房间，b 再加入，保证 id 分配顺序
	if err := a.Connect(t.Context()); err != nil {
		t.Fatalf("connect a: %v", err)
	}
	waitFor(t, "a to join", func() bool {
		if ok, err := a.PollReady(); ok || !errors.Is(err, ErrTransportNotReady) {
			t.Fatalf("a should still be waiting: %v %v", ok, err)
		}
		return len(h.joined) == 1
	})
	if err := b.Connect(t.Context()); err != nil {
		t.Fatalf("connect b: %v", err)
	}

	pollPair(t, a, b)
	return a, b
}

func eventKinds(events []LifecycleEvent) []LifecycleKind {
	kinds := make([]LifecycleKind, len(events))
	for i, ev := range events {
		kinds[i] = ev.Kind
	}
	return kinds
}

func TestBuildRosterIdenticalAcrossPeers(t *testing.T) {
	peers := []string{"zeta", "alpha"}

	rosterA, slotA, err := BuildRoster(peers, "zeta")
	if err != nil {
		t.Fatalf("roster a: %v", err)
	}
	rosterB, slotB, err := BuildRoster(slices.Clone([]string{"alpha", "zeta"}), "alpha")
	if err != nil {
		t.Fatalf("roster b: %v", err)
	}
	if !slices.Equal(rosterA, rosterB) || !slices.Equal(rosterA, []string{"alpha", "zeta"}) {
		t.Fatalf("rosters differ: %v %v", rosterA, rosterB)
	}
	if slotA != 1 || slotB != 0 {
		t.Fatalf("unexpected slots %d %d", slotA, slotB)
	}
	if !slices.Equal(peers, []string{"zeta", "alpha"}) {
		t.Fatalf("input slice modified: %v", peers)
	}

	if _, _, err := BuildRoster([]string{"a", "a"}, "a"); err == nil {
		t.Fatalf("duplicate ids should fail")
	}
	if _, _, err := BuildRoster([]string{"a", "b"}, "c"); err == nil {
		t.Fatalf("missing self should fail")
	}
}

func TestConnectRejectsBadConfig(t *testing.T) {
	cfg := testClientConfig()
	cfg.Rendezvous = "udp://127.0.0.1:9998"
	o := NewOrchestrator(cfg, newHub("a").open)

	var cfgErr *config.ConfigurationError
	if err := o.Connect(t.Context()); !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
	if o.State() != StateIdle {
		t.Fatalf("state should stay idle, got %s", o.State())
	}

	cfg = testClientConfig()
	cfg.Room = " "
	if err := NewOrchestrator(cfg, nil).Connect(t.Context()); !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError for room, got %v", err)
	}
}

func TestPollReadyBeforeConnect(t *testing.T) {
	o := NewOrchestrator(testClientConfig(), newHub("a").open)
	if _, err := o.PollReady(); !errors.Is(err, ErrNotConnecting) {
		t.Fatalf("expected ErrNotConnecting, got %v", err)
	}
	if err := o.Tick(input.PlayerInput{}); err != nil {
		t.Fatalf("tick while idle: %v", err)
	}
}

func TestSessionAssignment(t *testing.T) {
	// 加入顺序与 id 顺序相反
	a, b := connectPair(t, newHub("peer-z", "peer-a"))

	sa, sb := a.Session(), b.Session()
	if !slices.Equal(sa.Roster, sb.Roster) || !slices.Equal(sa.Roster, []string{"peer-a", "peer-z"}) {
		t.Fatalf("rosters differ: %s %s", spew.Sdump(sa), spew.Sdump(sb))
	}
	if sa.LocalID != "peer-z" || sa.LocalSlot != 1 || sb.LocalSlot != 0 {
		t.Fatalf("unexpected slots: %s %s", spew.Sdump(sa), spew.Sdump(sb))
	}
	if sa.DesyncInterval != 30 || sa.Seed != 99 || sa.InputDelay != 2 {
		t.Fatalf("unexpected session: %s", spew.Sdump(sa))
	}
	if a.World().Rng != b.World().Rng {
		t.Fatalf("worlds seeded differently")
	}

	want := []LifecycleKind{LifecycleConnecting, LifecycleReady}
	if got := eventKinds(a.Events()); !slices.Equal(got, want) {
		t.Fatalf("unexpected events for a: %v", got)
	}
	if got := eventKinds(b.Events()); !slices.Equal(got, want) {
		t.Fatalf("unexpected events for b: %v", got)
	}
}

// scripted 随帧变化的输入，定期改变方向并射击
func scripted(slot, n int) input.PlayerInput {
	in := input.PlayerInput{
		Direction: uint8((n/7)*37 + slot*90),
		Buttons:   input.ButtonMove,
		Aim:       uint8(n*11 + slot*128),
	}
	if (n/5)%4 == slot {
		in.Buttons |= input.ButtonFire
	}
	return in
}

func TestPeersStayInSyncWithRollbacks(t *testing.T) {
	a, b := connectPair(t, newHub("peer-a", "peer-b"))
	a.Events()
	b.Events()

	// a 每轮连走 3 帧，会预测 b 的输入并在之后回滚
	n := 0
	for round := 0; round < 100; round++ {
		for range 3 {
			if err := a.Tick(scripted(a.Session().LocalSlot, n)); err != nil {
				t.Fatalf("a tick %d: %v", n, err)
			}
			n++
		}
		for i := range 3 {
			if err := b.Tick(scripted(b.Session().LocalSlot, n-3+i)); err != nil {
				t.Fatalf("b tick %d: %v", n, err)
			}
		}
	}

	// 轮流单步，让双方都确认到同一帧
	for range 20 {
		if err := a.Tick(input.PlayerInput{}); err != nil {
			t.Fatalf("a flush: %v", err)
		}
		if err := b.Tick(input.PlayerInput{}); err != nil {
			t.Fatalf("b flush: %v", err)
		}
	}

	for _, o := range []*Orchestrator{a, b} {
		for _, ev := range o.Events() {
			if ev.Kind == LifecycleDesynced {
				t.Fatalf("desync reported: %v", ev.Err)
			}
		}
	}

	statsA, statsB := a.Engine().Stats(), b.Engine().Stats()
	if statsA.Checks == 0 || statsB.Checks == 0 {
		t.Fatalf("no checksums compared: %s %s", spew.Sdump(statsA), spew.Sdump(statsB))
	}
	if statsA.Rollbacks+statsB.Rollbacks == 0 {
		t.Fatalf("expected rollbacks: %s %s", spew.Sdump(statsA), spew.Sdump(statsB))
	}

	ea, eb := a.Engine(), b.Engine()
	if ea.Frame() == eb.Frame() && ea.ConfirmedFrame() >= ea.Frame()-1 && eb.ConfirmedFrame() >= eb.Frame()-1 {
		reg := core.NewRegistry()
		if reg.Checksum(a.World()) != reg.Checksum(b.World()) {
			t.Fatalf("confirmed worlds differ:\n%s\n%s", spew.Sdump(a.World()), spew.Sdump(b.World()))
		}
	}
}

func TestPeerLeftEndsSession(t *testing.T) {
	a, b := connectPair(t, newHub("peer-a", "peer-b"))
	a.Events()

	b.Leave()
	if b.State() != StateIdle {
		t.Fatalf("leaver should be idle, got %s", b.State())
	}

	err := a.Tick(input.PlayerInput{})
	if !errors.Is(err, ErrPeerDisconnected) {
		t.Fatalf("expected ErrPeerDisconnected, got %v", err)
	}
	if a.State() != StateEnded || a.Session() != nil || a.Engine() != nil {
		t.Fatalf("session not torn down: %s", a.State())
	}
	if got := eventKinds(a.Events()); !slices.Equal(got, []LifecycleKind{LifecycleDisconnected}) {
		t.Fatalf("unexpected events: %v", got)
	}

	a.Leave()
	if a.State() != StateIdle {
		t.Fatalf("expected idle after leave, got %s", a.State())
	}
}

func TestServerErrorFailsConnect(t *testing.T) {
	h := newHub("peer-a")
	o := NewOrchestrator(testClientConfig(), h.open)
	if err := o.Connect(t.Context()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	waitFor(t, "join", func() bool {
		_, _ = o.PollReady()
		return len(h.joined) == 1
	})
	sig := h.joined[0]
	sig.inbox = append(sig.inbox, &protocol.Error{Code: protocol.ErrCodeRateLimited, Message: "slow down"})

	_, err := o.PollReady()
	var srvErr *protocol.Error
	if !errors.As(err, &srvErr) || srvErr.Code != protocol.ErrCodeRateLimited {
		t.Fatalf("expected server error, got %v", err)
	}
	events := o.Events()
	if last := events[len(events)-1]; last.Kind != LifecycleFailed {
		t.Fatalf("expected failed event, got %s", spew.Sdump(events))
	}
	if !sig.closed {
		t.Fatalf("signalling channel left open")
	}
}

func TestSessionUsesServerInputDelay(t *testing.T) {
	h := newHub("peer-a", "peer-b")
	h.delay = 5

	// 两边本地配置不同，输入延迟仍以服务器下发为准
	cfgB := testClientConfig()
	cfgB.MaxPrediction = 12
	a, b := connectPairWith(t, h, testClientConfig(), cfgB)

	if a.Session().InputDelay != 5 || b.Session().InputDelay != 5 {
		t.Fatalf("delay not taken from ready: %s %s", spew.Sdump(a.Session()), spew.Sdump(b.Session()))
	}

	for n := range 120 {
		if err := a.Tick(scripted(a.Session().LocalSlot, n)); err != nil {
			t.Fatalf("a tick %d: %v", n, err)
		}
		if err := b.Tick(scripted(b.Session().LocalSlot, n)); err != nil {
			t.Fatalf("b tick %d: %v", n, err)
		}
	}

	ea, eb := a.Engine(), b.Engine()
	if ea.Frame() != 120 || eb.Frame() != 120 {
		t.Fatalf("peers stalled: a at %d, b at %d", ea.Frame(), eb.Frame())
	}
	if sa, sb := ea.Stats(), eb.Stats(); sa.Stalls != 0 || sb.Stalls != 0 {
		t.Fatalf("unexpected stalls: %s %s", spew.Sdump(sa), spew.Sdump(sb))
	}
	if ea.ConfirmedFrame() < 110 || eb.ConfirmedFrame() < 110 {
		t.Fatalf("confirmed frame lagging: %d %d", ea.ConfirmedFrame(), eb.ConfirmedFrame())
	}
}

func TestReadyRejectsOversizedDelay(t *testing.T) {
	h := newHub("peer-a", "peer-b")
	h.delay = 99
	a := NewOrchestrator(testClientConfig(), h.open)
	b := NewOrchestrator(testClientConfig(), h.open)
	if err := a.Connect(t.Context()); err != nil {
		t.Fatalf("connect a: %v", err)
	}
	if err := b.Connect(t.Context()); err != nil {
		t.Fatalf("connect b: %v", err)
	}

	var errA error
	waitFor(t, "ready to be rejected", func() bool {
		_, errA = a.PollReady()
		_, _ = b.PollReady()
		return errA != nil && !errors.Is(errA, ErrTransportNotReady)
	})
	if !strings.Contains(errA.Error(), "输入延迟") || a.State() != StateEnded {
		t.Fatalf("expected delay error, got %v in %s", errA, a.State())
	}
}

// stubChannel 只记录是否被关闭
type stubChannel struct {
	closed atomic.Bool
}

func (c *stubChannel) Send(*protocol.Packet) error        { return nil }
func (c *stubChannel) Receive() (protocol.Message, bool) { return nil, false }
func (c *stubChannel) Err() error                        { return nil }
func (c *stubChannel) Close()                            { c.closed.Store(true) }

func TestConnectDoesNotBlockOnSlowDial(t *testing.T) {
	release := make(chan struct{})
	late := &stubChannel{}
	o := NewOrchestrator(testClientConfig(), func(ctx context.Context, addr string) (Channel, error) {
		<-release
		return late, nil
	})

	start := time.Now()
	if err := o.Connect(t.Context()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	for range 10 {
		if ok, err := o.PollReady(); ok || !errors.Is(err, ErrTransportNotReady) {
			t.Fatalf("expected not ready while dialing, got %v %v", ok, err)
		}
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("connect and poll blocked for %s", elapsed)
	}

	// 放弃后晚到的连接要被关掉
	o.Leave()
	close(release)
	waitFor(t, "late channel to close", late.closed.Load)
}

func TestRelayDialDoesNotBlockPoll(t *testing.T) {
	h := newHub("peer-a", "peer-b")
	release := make(chan struct{})
	var calls atomic.Int32
	slow := func(ctx context.Context, addr string) (Channel, error) {
		// 第二次拨号是转发连接
		if calls.Add(1) == 2 {
			select {
			case <-release:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		return h.open(ctx, addr)
	}

	a := NewOrchestrator(testClientConfig(), h.open)
	b := NewOrchestrator(testClientConfig(), slow)
	if err := a.Connect(t.Context()); err != nil {
		t.Fatalf("connect a: %v", err)
	}
	waitFor(t, "a to join", func() bool {
		_, _ = a.PollReady()
		return len(h.joined) == 1
	})
	if err := b.Connect(t.Context()); err != nil {
		t.Fatalf("connect b: %v", err)
	}
	waitFor(t, "b to receive ready", func() bool {
		_, _ = a.PollReady()
		if _, err := b.PollReady(); !errors.Is(err, ErrTransportNotReady) {
			t.Fatalf("poll b: %v", err)
		}
		return calls.Load() == 2
	})

	start := time.Now()
	for range 10 {
		if _, err := b.PollReady(); !errors.Is(err, ErrTransportNotReady) {
			t.Fatalf("expected not ready while relay dials, got %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("poll blocked for %s", elapsed)
	}

	close(release)
	pollPair(t, a, b)
}

func TestDialFailureReportedByPoll(t *testing.T) {
	o := NewOrchestrator(testClientConfig(), func(ctx context.Context, addr string) (Channel, error) {
		return nil, errors.New("connection refused")
	})
	if err := o.Connect(t.Context()); err != nil {
		t.Fatalf("connect should not dial inline: %v", err)
	}

	var err error
	waitFor(t, "dial failure", func() bool {
		_, err = o.PollReady()
		return !errors.Is(err, ErrTransportNotReady)
	})
	if err == nil || !strings.Contains(err.Error(), "connection refused") || o.State() != StateEnded {
		t.Fatalf("expected dial error, got %v in %s", err, o.State())
	}
}

func TestStalledFireIsCarriedOver(t *testing.T) {
	h := newHub("peer-a", "peer-b")
	a, b := connectPair(t, h)

	// b 不动，a 很快超过预测上限
	for range 12 {
		if err := a.Tick(input.PlayerInput{}); err != nil {
			t.Fatalf("a tick: %v", err)
		}
	}
	if a.Engine().Stats().Stalls == 0 {
		t.Fatalf("a should be stalled: %s", spew.Sdump(a.Engine().Stats()))
	}

	shot := input.PlayerInput{Buttons: input.ButtonFire, Aim: 64}
	if err := a.Tick(shot); err != nil {
		t.Fatalf("a fire tick: %v", err)
	}
	if err := a.Tick(input.PlayerInput{}); err != nil {
		t.Fatalf("a tick: %v", err)
	}
	for _, in := range h.sent["peer-a"] {
		if in.Firing() {
			t.Fatalf("fire sent while stalled")
		}
	}

	for n := range 6 {
		if err := b.Tick(input.PlayerInput{}); err != nil {
			t.Fatalf("b tick %d: %v", n, err)
		}
	}
	if err := a.Tick(input.PlayerInput{}); err != nil {
		t.Fatalf("a resume: %v", err)
	}
	sent := h.sent["peer-a"]
	if last := sent[len(sent)-1]; !last.Firing() || last.Aim != 64 {
		t.Fatalf("stalled fire was dropped: %s", spew.Sdump(sent))
	}

	if err := a.Tick(input.PlayerInput{}); err != nil {
		t.Fatalf("a tick: %v", err)
	}
	sent = h.sent["peer-a"]
	if last := sent[len(sent)-1]; last.Firing() {
		t.Fatalf("fire carried over twice")
	}
}

func TestCarryOverKeepsPendingShot(t *testing.T) {
	pending := input.PlayerInput{Buttons: input.ButtonFire, Aim: 10}
	next := input.PlayerInput{Buttons: input.ButtonMove, Direction: 50, Aim: 200}

	got := carryOver(pending, next)
	if !got.Firing() || !got.Moving() || got.Aim != 10 || got.Direction != 50 {
		t.Fatalf("unexpected merge: %s", got)
	}

	// 新一帧自己在射击时以新一帧为准
	fresh := input.PlayerInput{Buttons: input.ButtonFire, Aim: 99}
	if got := carryOver(pending, fresh); got != fresh {
		t.Fatalf("fresh shot overridden: %s", got)
	}
	if got := carryOver(input.PlayerInput{Buttons: input.ButtonMove}, next); got != next {
		t.Fatalf("move-only pending should not change input: %s", got)
	}
}
