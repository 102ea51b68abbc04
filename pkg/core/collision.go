package core

import "golang.org/x/image/math/fixed"

// push 四个方向上的最大推出量，与墙体遍历顺序无关
type push struct {
	up, down, left, right fixed.Int52_12
}

func (p *push) add(player, wall fixed.Rectangle52_12) {
	ix := player.Intersect(wall)
	if ix.Empty() {
		return
	}
	w := ix.Max.X - ix.Min.X
	h := ix.Max.Y - ix.Min.Y

	pc := player.Min.Add(player.Max)
	wc := wall.Min.Add(wall.Max)
	if w <= h {
		if pc.X < wc.X {
			p.left = max(p.left, w)
		} else {
			p.right = max(p.right, w)
		}
		return
	}
	if pc.Y < wc.Y {
		p.down = max(p.down, h)
	} else {
		p.up = max(p.up, h)
	}
}

func (p *push) offset() fixed.Point52_12 {
	return fixed.Point52_12{X: p.right - p.left, Y: p.up - p.down}
}

// resolvePlayer 把玩家推出所有重叠的墙体
func resolvePlayer(arena *Arena, pos fixed.Point52_12) fixed.Point52_12 {
	r := PlayerRect(pos)
	var p push
	for _, wall := range arena.WallsOverlapping(r) {
		p.add(r, wall)
	}
	return pos.Add(p.offset())
}

// arrowHitsWall 箭矢命中圆是否碰到墙
func arrowHitsWall(arena *Arena, a *Arrow) bool {
	for _, wall := range arena.WallsOverlapping(a.Bounds()) {
		if circleHitsRect(a.Pos, ArrowRadius, wall) {
			return true
		}
	}
	return false
}

// arrowHitsPlayer 箭矢命中圆是否碰到玩家
func arrowHitsPlayer(a *Arrow, pos fixed.Point52_12) bool {
	return circleHitsRect(a.Pos, ArrowRadius, PlayerRect(pos))
}
