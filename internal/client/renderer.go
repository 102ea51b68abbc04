package client

import (
	"fmt"
	"image/color"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/vector"
	"golang.org/x/image/math/fixed"

	"p2pg/pkg/core"
	"p2pg/pkg/input"
)

// slotStyle 每个槽位的配色
type slotStyle struct {
	Name    string
	Body    color.RGBA
	Outline color.RGBA
	Bow     color.RGBA
}

var slotStyles = []slotStyle{
	{
		Name:    "RED",
		Body:    color.RGBA{255, 80, 80, 255},
		Outline: color.RGBA{150, 0, 0, 255},
		Bow:     color.RGBA{255, 200, 100, 255},
	},
	{
		Name:    "BLUE",
		Body:    color.RGBA{100, 180, 255, 255},
		Outline: color.RGBA{0, 50, 150, 255},
		Bow:     color.RGBA{150, 220, 255, 255},
	},
}

func styleFor(slot int) slotStyle {
	return slotStyles[slot%len(slotStyles)]
}

var (
	floorColor  = color.RGBA{34, 40, 49, 255}
	wallColor   = color.RGBA{96, 104, 116, 255}
	wallEdge    = color.RGBA{0, 0, 0, 100}
	arrowColor  = color.RGBA{240, 230, 200, 255}
	hudColor    = color.RGBA{10, 12, 18, 220}
	healthColor = color.RGBA{120, 230, 120, 255}
	stickColor  = color.RGBA{255, 255, 255, 90}
)

// walkAnim 行走动画，只用于显示，不参与回滚
type walkAnim struct {
	Frame int
	Ticks int
}

// 每 9 帧切换一次
const walkAnimTicks = 9

func (a *walkAnim) update(moving bool) {
	if !moving {
		a.Frame, a.Ticks = 0, 0
		return
	}
	a.Ticks++
	if a.Ticks >= walkAnimTicks {
		a.Ticks = 0
		a.Frame = (a.Frame + 1) % 2
	}
}

// Renderer 绘制对局画面
type Renderer struct {
	cam   *Camera
	arena *core.Arena
	anims []walkAnim
}

func NewRenderer(arena *core.Arena, cam *Camera) *Renderer {
	return &Renderer{cam: cam, arena: arena}
}

// Update 每个逻辑帧推进一次显示状态
func (r *Renderer) Update(w *core.World) {
	if len(r.anims) != w.Players() {
		r.anims = make([]walkAnim, w.Players())
	}
	for i := range r.anims {
		v := w.Velocities[i]
		r.anims[i].update(v.X != 0 || v.Y != 0)
	}
}

// Draw 绘制地图、玩家、箭矢与状态栏
func (r *Renderer) Draw(screen *ebiten.Image, w *core.World, localSlot int, confirmed int32, touch *input.TouchMovement) {
	screen.Fill(floorColor)
	r.drawArena(screen)

	for _, a := range w.Arrows {
		r.drawArrow(screen, &a)
	}
	for slot := range w.Positions {
		r.drawPlayer(screen, w, slot, slot == localSlot)
	}

	if touch != nil {
		drawStick(screen, touch)
	}
	r.drawHUD(screen, w, localSlot, confirmed)
}

func worldPoint(p fixed.Point52_12) input.Point {
	return input.Point{X: core.ToFloat(p.X), Y: core.ToFloat(p.Y)}
}

// rectOnScreen 世界矩形转成屏幕上的左上角与尺寸
func (r *Renderer) rectOnScreen(rect fixed.Rectangle52_12) (x, y, w, h float32) {
	x, y = r.cam.WorldToScreen(input.Point{X: core.ToFloat(rect.Min.X), Y: core.ToFloat(rect.Max.Y)})
	w = float32(core.ToFloat(rect.Max.X - rect.Min.X))
	h = float32(core.ToFloat(rect.Max.Y - rect.Min.Y))
	return x, y, w, h
}

func (r *Renderer) drawArena(screen *ebiten.Image) {
	for ty := 0; ty < r.arena.Height; ty++ {
		for tx := 0; tx < r.arena.Width; tx++ {
			if r.arena.GetTile(tx, ty) != core.TileWall {
				continue
			}
			x, y, w, h := r.rectOnScreen(core.TileRect(tx, ty))
			if x+w < 0 || y+h < 0 || x > ScreenWidth || y > ScreenHeight {
				continue
			}
			vector.DrawFilledRect(screen, x, y, w, h, wallColor, false)
			vector.StrokeRect(screen, x, y, w, h, 1, wallEdge, false)
		}
	}
}

func (r *Renderer) drawPlayer(screen *ebiten.Image, w *core.World, slot int, local bool) {
	style := styleFor(slot)
	x, y, bw, bh := r.rectOnScreen(core.PlayerRect(w.Positions[slot]))

	// 走路时身体上下晃动
	bob := float32(0)
	if slot < len(r.anims) && r.anims[slot].Frame == 1 {
		bob = 1
	}
	vector.DrawFilledRect(screen, x, y-bob, bw, bh, style.Body, false)
	vector.StrokeRect(screen, x, y-bob, bw, bh, 1, style.Outline, false)
	if local {
		vector.StrokeRect(screen, x-2, y-bob-2, bw+4, bh+4, 1, color.White, false)
	}

	// 弓指向瞄准方向
	cx, cy := r.cam.WorldToScreen(worldPoint(w.Positions[slot]))
	dx, dy := input.AngleToVec(input.DecodeAngle(w.Aims[slot]))
	vector.StrokeLine(screen, cx, cy, cx+float32(dx*9), cy-float32(dy*9), 1, style.Bow, false)
	if w.Cooldowns[slot].CanShoot {
		vector.DrawFilledCircle(screen, cx+float32(dx*9), cy-float32(dy*9), 1.5, style.Bow, false)
	}

	for i := int32(0); i < w.Health[slot]; i++ {
		vector.DrawFilledRect(screen, x+float32(i)*3, y-bob-5, 2, 2, healthColor, false)
	}
}

func (r *Renderer) drawArrow(screen *ebiten.Image, a *core.Arrow) {
	if !a.Alive() {
		return
	}
	hx, hy := r.cam.WorldToScreen(worldPoint(a.Pos))
	dx, dy := core.ToFloat(a.Dir.X), core.ToFloat(a.Dir.Y)
	vector.StrokeLine(screen, hx-float32(dx*5), hy+float32(dy*5), hx, hy, 1, arrowColor, false)
}

// drawStick 有摇杆手指时绘制虚拟摇杆
func drawStick(screen *ebiten.Image, touch *input.TouchMovement) {
	center, knob, ok := touch.Stick()
	if !ok {
		return
	}
	vector.StrokeCircle(screen, float32(center.X), float32(center.Y), input.StickRadius, 1, stickColor, false)
	vector.DrawFilledCircle(screen, float32(knob.X), float32(knob.Y), 8, stickColor, false)
}

func (r *Renderer) drawHUD(screen *ebiten.Image, w *core.World, localSlot int, confirmed int32) {
	vector.DrawFilledRect(screen, 0, 0, ScreenWidth, hudHeight, hudColor, false)

	x := 4
	for slot, score := range w.Scores {
		label := fmt.Sprintf("%s %d", styleFor(slot).Name, score)
		if slot == localSlot {
			label = "*" + label
		}
		drawText(screen, x, 1, label, styleFor(slot).Body)
		x += 72
	}
	drawText(screen, ScreenWidth-132, 1, fmt.Sprintf("F %d C %d", w.Frame, confirmed), color.RGBA{180, 190, 200, 255})
}
