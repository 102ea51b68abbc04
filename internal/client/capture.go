package client

import (
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"p2pg/pkg/input"
)

// hudHeight 顶部状态栏高度，指针在其上时不射击
const hudHeight = 16

// InputCapture 每帧从 ebiten 读取键鼠与触控，合成本地玩家输入
type InputCapture struct {
	sampler input.Sampler
	touch   *input.TouchMovement
	fingers map[ebiten.TouchID]bool

	// 出现过触控后才把触控作为输入来源
	touchSeen bool

	ids []ebiten.TouchID
}

func NewInputCapture() *InputCapture {
	return &InputCapture{
		touch:   input.NewTouchMovement(),
		fingers: make(map[ebiten.TouchID]bool),
	}
}

// Touch 触控状态，用于绘制虚拟摇杆
func (c *InputCapture) Touch() *input.TouchMovement {
	return c.touch
}

// Sample 采样一帧输入；cam 为空时返回零输入
func (c *InputCapture) Sample(cam *Camera, player input.Point) input.PlayerInput {
	c.pollTouches()

	src := input.Sources{
		Desktop: desktopState(cam),
		Player:  player,
	}
	if cam != nil {
		src.ToWorld = cam.ScreenToWorld
	}
	if c.touchSeen {
		src.Touch = c.touch
	}
	return c.sampler.Sample(src)
}

// Reset 离开对局时丢弃未处理的手势
func (c *InputCapture) Reset() {
	for id := range c.fingers {
		c.touch.Cancel(input.TouchID(id))
	}
	clear(c.fingers)
	c.touch.Drain(0, func(p input.Point) input.Point { return p }, input.Point{})
}

// pollTouches 把 ebiten 的触点变化转成手势事件
func (c *InputCapture) pollTouches() {
	c.ids = inpututil.AppendJustPressedTouchIDs(c.ids[:0])
	for _, id := range c.ids {
		c.touchSeen = true
		c.fingers[id] = true
		c.touch.Start(input.TouchID(id), touchPoint(ebiten.TouchPosition(id)))
	}

	c.ids = ebiten.AppendTouchIDs(c.ids[:0])
	for _, id := range c.ids {
		c.touch.Move(input.TouchID(id), touchPoint(ebiten.TouchPosition(id)))
	}

	c.ids = inpututil.AppendJustReleasedTouchIDs(c.ids[:0])
	for _, id := range c.ids {
		if !c.fingers[id] {
			continue
		}
		delete(c.fingers, id)
		// 松开后当前位置已不可读，用上一帧的位置
		c.touch.End(input.TouchID(id), touchPoint(inpututil.TouchPositionInPreviousTick(id)))
	}

	// 失去焦点时系统可能吞掉松开事件
	if !ebiten.IsFocused() && len(c.fingers) > 0 {
		for id := range c.fingers {
			c.touch.Cancel(input.TouchID(id))
		}
		clear(c.fingers)
	}
}

func touchPoint(x, y int) input.Point {
	return input.Point{X: float64(x), Y: float64(y)}
}

// desktopState 读取键盘、鼠标与窗口焦点
func desktopState(cam *Camera) input.DesktopState {
	d := input.DesktopState{
		Up:      ebiten.IsKeyPressed(ebiten.KeyW) || ebiten.IsKeyPressed(ebiten.KeyArrowUp),
		Down:    ebiten.IsKeyPressed(ebiten.KeyS) || ebiten.IsKeyPressed(ebiten.KeyArrowDown),
		Left:    ebiten.IsKeyPressed(ebiten.KeyA) || ebiten.IsKeyPressed(ebiten.KeyArrowLeft),
		Right:   ebiten.IsKeyPressed(ebiten.KeyD) || ebiten.IsKeyPressed(ebiten.KeyArrowRight),
		Primary: ebiten.IsMouseButtonPressed(ebiten.MouseButtonLeft),
		Focused: ebiten.IsFocused(),
	}

	x, y := ebiten.CursorPosition()
	if cam != nil && x >= 0 && y >= 0 && x < ScreenWidth && y < ScreenHeight {
		d.HasPointer = true
		d.Pointer = cam.ScreenToWorld(input.Point{X: float64(x), Y: float64(y)})
		d.PointerOverUI = y < hudHeight
	}
	return d
}
