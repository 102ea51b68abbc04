package client

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hajimehoshi/ebiten/v2"

	"p2pg/internal/config"
	"p2pg/internal/logger"
	"p2pg/pkg/core"
	"p2pg/pkg/rollback"
)

// 常量重新导出
const (
	ScreenWidth  = core.ScreenWidth
	ScreenHeight = core.ScreenHeight
	FPS          = core.FPS
)

// 会合失败后的自动重试
const (
	maxRetries = 3
	retryDelay = 2 * FPS // 帧
)

type gameScreen int

const (
	screenLobby gameScreen = iota
	screenConnecting
	screenCombat
)

// Game 客户端主结构（Ebiten 游戏循环）
type Game struct {
	ctx  context.Context
	cfg  config.Client
	orch *Orchestrator

	screen  gameScreen
	keys    keyTracker
	capture *InputCapture
	cam     *Camera
	render  *Renderer
	ticks   int

	lastError  string
	lastResult string
	retries    int
	retryIn    int // 距下次重试的帧数，0 表示不重试
	scores     []int32
}

// NewGame 创建客户端，open 为空时使用真实网络
func NewGame(ctx context.Context, cfg config.Client, open Opener) *Game {
	orch := NewOrchestrator(cfg, open)
	cam := NewCamera(orch.Arena())
	return &Game{
		ctx:     ctx,
		cfg:     cfg,
		orch:    orch,
		capture: NewInputCapture(),
		cam:     cam,
		render:  NewRenderer(orch.Arena(), cam),
	}
}

// Update 逻辑帧
func (g *Game) Update() error {
	g.ticks++
	defer g.drainEvents()

	switch g.screen {
	case screenLobby:
		return g.updateLobby()
	case screenConnecting:
		g.updateConnecting()
	case screenCombat:
		g.updateCombat()
	}
	return nil
}

// Draw 绘制当前界面
func (g *Game) Draw(screen *ebiten.Image) {
	switch g.screen {
	case screenLobby:
		g.drawLobby(screen)
	case screenConnecting:
		g.drawConnecting(screen)
	case screenCombat:
		w := g.orch.World()
		if w == nil {
			return
		}
		slot := 0
		if s := g.orch.Session(); s != nil {
			slot = s.LocalSlot
		}
		g.render.Draw(screen, w, slot, g.orch.ConfirmedFrame(), g.capture.Touch())
	}
}

// Layout 固定逻辑分辨率
func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return ScreenWidth, ScreenHeight
}

func (g *Game) updateLobby() error {
	if g.keys.JustPressed(ebiten.KeyEscape) {
		return ebiten.Termination
	}
	if g.keys.JustPressed(ebiten.KeyEnter) {
		g.retries = 0
		g.retryIn = 0
		g.connect()
		return nil
	}
	if g.retryIn > 0 {
		g.retryIn--
		if g.retryIn == 0 {
			g.connect()
		}
	}
	return nil
}

func (g *Game) connect() {
	if err := g.orch.Connect(g.ctx); err != nil {
		g.fail(err)
		return
	}
	g.lastError = ""
	g.screen = screenConnecting
}

func (g *Game) updateConnecting() {
	if g.keys.JustPressed(ebiten.KeyEscape) {
		g.orch.Leave()
		g.retryIn = 0
		g.screen = screenLobby
		return
	}

	ready, err := g.orch.PollReady()
	if errors.Is(err, ErrTransportNotReady) {
		return
	}
	if err != nil {
		g.fail(err)
		return
	}
	if ready {
		g.retries = 0
		g.capture.Reset()
		g.screen = screenCombat
	}
}

func (g *Game) updateCombat() {
	if g.keys.JustPressed(ebiten.KeyEscape) {
		g.finish()
		g.orch.Leave()
		return
	}

	w := g.orch.World()
	s := g.orch.Session()
	if w == nil || s == nil {
		g.screen = screenLobby
		return
	}

	// 用上一帧的位置计算瞄准
	g.cam.Follow(worldPoint(w.Positions[s.LocalSlot]))
	in := g.capture.Sample(g.cam, worldPoint(w.Positions[s.LocalSlot]))
	if err := g.orch.Tick(in); err != nil {
		g.endCombat(err)
		return
	}

	w = g.orch.World()
	g.scores = append(g.scores[:0], w.Scores...)
	g.render.Update(w)
	g.cam.Follow(worldPoint(w.Positions[s.LocalSlot]))
}

// fail 会合阶段失败，配置错误以外的失败自动重试
func (g *Game) fail(err error) {
	g.screen = screenLobby
	g.lastError = err.Error()

	var cfgErr *config.ConfigurationError
	if errors.As(err, &cfgErr) || g.retries >= maxRetries {
		g.retryIn = 0
		return
	}
	g.retries++
	g.retryIn = retryDelay
	logger.Log.Warnf("会合失败，%d 帧后第 %d 次重试: %v", retryDelay, g.retries, err)
}

// endCombat 对手断开或不同步只记日志，大厅的错误提示留给会合失败
func (g *Game) endCombat(err error) {
	var desync *rollback.DesyncError
	if errors.As(err, &desync) {
		logger.Log.Errorf("对局不同步，已结束: %v", err)
	} else {
		logger.Log.Warnf("对局结束: %v", err)
	}
	g.finish()
}

// finish 对局结束，记录比分回到大厅
func (g *Game) finish() {
	g.screen = screenLobby
	g.lastError = ""
	g.retryIn = 0
	g.capture.Reset()
	if len(g.scores) > 0 {
		g.lastResult = "Last match: " + formatScores(g.scores)
	}
	g.scores = g.scores[:0]
}

// drainEvents 把会话事件写入日志
func (g *Game) drainEvents() {
	for _, ev := range g.orch.Events() {
		if ev.Err != nil {
			logger.Log.Infof("会话事件 %s: %v", ev.Kind, ev.Err)
		} else {
			logger.Log.Infof("会话事件 %s", ev.Kind)
		}
	}
}

func formatScores(scores []int32) string {
	parts := make([]string, len(scores))
	for slot, s := range scores {
		parts[slot] = fmt.Sprintf("%s %d", styleFor(slot).Name, s)
	}
	return strings.Join(parts, " - ")
}
