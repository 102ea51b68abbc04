package client

import (
	"p2pg/pkg/core"
	"p2pg/pkg/input"
)

// Camera 跟随本地玩家的视口
// 世界坐标 Y 向上，屏幕坐标 Y 向下；视口不超出竞技场
type Camera struct {
	center         input.Point
	viewW, viewH   float64
	arenaW, arenaH float64
}

// NewCamera 视口大小与竞技场大小均以像素计
func NewCamera(arena *core.Arena) *Camera {
	c := &Camera{
		viewW:  ScreenWidth,
		viewH:  ScreenHeight,
		arenaW: float64(arena.Width * core.TileSize),
		arenaH: float64(arena.Height * core.TileSize),
	}
	c.center = input.Point{X: c.arenaW / 2, Y: c.arenaH / 2}
	return c
}

// Follow 把视口中心移到目标，贴边时停住
func (c *Camera) Follow(target input.Point) {
	c.center = input.Point{
		X: clampView(target.X, c.viewW, c.arenaW),
		Y: clampView(target.Y, c.viewH, c.arenaH),
	}
}

// Center 视口中心的世界坐标
func (c *Camera) Center() input.Point {
	return c.center
}

// ScreenToWorld 屏幕坐标转世界坐标
func (c *Camera) ScreenToWorld(p input.Point) input.Point {
	return input.Point{
		X: p.X + c.center.X - c.viewW/2,
		Y: c.center.Y - (p.Y - c.viewH/2),
	}
}

// WorldToScreen 世界坐标转屏幕坐标
func (c *Camera) WorldToScreen(p input.Point) (float32, float32) {
	x := p.X - c.center.X + c.viewW/2
	y := c.center.Y - p.Y + c.viewH/2
	return float32(x), float32(y)
}

// 竞技场比视口小时居中
func clampView(v, view, size float64) float64 {
	if size <= view {
		return size / 2
	}
	lo, hi := view/2, size-view/2
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
