package ai

import (
	"container/list"

	"golang.org/x/image/math/fixed"

	"p2pg/pkg/core"
	"p2pg/pkg/input"
)

// maxSearch 单次寻路最多展开的格子数
const maxSearch = 512

type stepNode struct {
	Pos   core.GridPos
	Prev  *stepNode
	Depth int
}

// 上、下、左、右（世界坐标 Y 向上）
var neighbours = []core.GridPos{{GridX: 0, GridY: 1}, {GridX: 0, GridY: -1}, {GridX: -1, GridY: 0}, {GridX: 1, GridY: 0}}

func pointOf(p fixed.Point52_12) input.Point {
	return input.Point{X: core.ToFloat(p.X), Y: core.ToFloat(p.Y)}
}

func pointXY(v fixed.Int52_12) fixed.Point52_12 {
	return fixed.Point52_12{X: v, Y: v}
}

func gridOf(p input.Point) core.GridPos {
	x, y := core.ToGrid(fixed.Point52_12{X: fixed.Int52_12(p.X * 4096), Y: fixed.Int52_12(p.Y * 4096)})
	return core.GridPos{GridX: x, GridY: y}
}

func cellCenter(g core.GridPos) input.Point {
	return pointOf(core.TileCenter(g.GridX, g.GridY))
}

func isWalkable(arena *core.Arena, g core.GridPos) bool {
	return arena.GetTile(g.GridX, g.GridY) != core.TileWall
}

// bfs 从 start 广度优先搜索第一个满足 goal 的格子
func bfs(arena *core.Arena, start core.GridPos, goal func(core.GridPos) bool) *stepNode {
	queue := list.New()
	visited := map[core.GridPos]bool{start: true}
	queue.PushBack(&stepNode{Pos: start})

	for expanded := 0; queue.Len() > 0 && expanded < maxSearch; expanded++ {
		n := queue.Remove(queue.Front()).(*stepNode)
		if goal(n.Pos) {
			return n
		}
		for _, d := range neighbours {
			next := core.GridPos{GridX: n.Pos.GridX + d.GridX, GridY: n.Pos.GridY + d.GridY}
			if visited[next] || !isWalkable(arena, next) {
				continue
			}
			visited[next] = true
			queue.PushBack(&stepNode{Pos: next, Prev: n, Depth: n.Depth + 1})
		}
	}
	return nil
}

// firstStep 沿搜索结果回溯到起点后的第一步
func firstStep(n *stepNode, start core.GridPos) core.GridPos {
	for n.Prev != nil && n.Prev.Pos != start {
		n = n.Prev
	}
	return n.Pos
}

// nextStepToward 朝目标走的下一个格子
func nextStepToward(arena *core.Arena, start, target core.GridPos) (core.GridPos, bool) {
	if start == target {
		return start, true
	}
	n := bfs(arena, start, func(g core.GridPos) bool { return g == target })
	if n == nil {
		return core.GridPos{}, false
	}
	return firstStep(n, start), true
}

// findSafe 最近的不在危险中的格子
func findSafe(arena *core.Arena, danger *DangerField, start core.GridPos) (core.GridPos, bool) {
	n := bfs(arena, start, func(g core.GridPos) bool { return !danger.InDanger(g.GridX, g.GridY) })
	if n == nil {
		return core.GridPos{}, false
	}
	return n.Pos, true
}

// lineOfSight 线段上每 4 像素采样一次，碰到墙即被遮挡
func lineOfSight(arena *core.Arena, from, to input.Point) bool {
	d := to.Sub(from)
	steps := int(d.Len()/4) + 1
	for i := 1; i < steps; i++ {
		t := float64(i) / float64(steps)
		p := input.Point{X: from.X + d.X*t, Y: from.Y + d.Y*t}
		if !isWalkable(arena, gridOf(p)) {
			return false
		}
	}
	return true
}
