package ai

import (
	"math"

	"p2pg/pkg/core"
)

// dangerHorizon 只预测未来这么多帧内的箭矢轨迹
const dangerHorizon = 45

const noDanger = int32(math.MaxInt32)

// DangerField 每个格子最早被敌方箭矢扫过的帧偏移
type DangerField struct {
	width, height int
	earliest      []int32
}

// Update 沿敌方箭矢的直线轨迹标记格子，碰墙即止
func (df *DangerField) Update(arena *core.Arena, w *core.World, slot int) {
	n := arena.Width * arena.Height
	if len(df.earliest) != n {
		df.earliest = make([]int32, n)
	}
	df.width, df.height = arena.Width, arena.Height
	for i := range df.earliest {
		df.earliest[i] = noDanger
	}

	// 箭矢中心进入玩家碰撞盒外扩后的区域即视为危险
	margin := core.I(core.PlayerHalfSize) + core.ArrowRadius
	for i := range w.Arrows {
		a := &w.Arrows[i]
		if !a.Alive() || a.Owner == slot {
			continue
		}
		step := a.Dir.Mul(core.ArrowSpeed)
		pos := a.Pos
		frames := min(a.Lifetime, dangerHorizon)
		for k := int32(0); k <= frames; k++ {
			if x, y := core.ToGrid(pos); arena.GetTile(x, y) == core.TileWall {
				break
			}
			x0, y0 := core.ToGrid(pos.Sub(pointXY(margin)))
			x1, y1 := core.ToGrid(pos.Add(pointXY(margin)))
			for gy := y0; gy <= y1; gy++ {
				for gx := x0; gx <= x1; gx++ {
					df.mark(gx, gy, k)
				}
			}
			pos = pos.Add(step)
		}
	}
}

func (df *DangerField) mark(x, y int, frame int32) {
	if x < 0 || x >= df.width || y < 0 || y >= df.height {
		return
	}
	i := y*df.width + x
	if frame < df.earliest[i] {
		df.earliest[i] = frame
	}
}

// Earliest 格子最早的危险帧偏移，安全时返回 MaxInt32
func (df *DangerField) Earliest(x, y int) int32 {
	if x < 0 || x >= df.width || y < 0 || y >= df.height {
		return noDanger
	}
	return df.earliest[y*df.width+x]
}

func (df *DangerField) InDanger(x, y int) bool {
	return df.Earliest(x, y) != noDanger
}
