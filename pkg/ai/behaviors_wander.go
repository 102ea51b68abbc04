package ai

import (
	"p2pg/pkg/ai/bt"
	"p2pg/pkg/core"
)

// 游荡目标最多追这么多次决策
const wanderDecisions = 30

// actWander 随机挑一个安全的相邻格子走过去
func actWander(bb *Blackboard) bt.Status {
	if bb.WanderTo != nil && bb.WanderFrames > 0 {
		bb.WanderFrames--
		if !bb.Danger.InDanger(bb.WanderTo.GridX, bb.WanderTo.GridY) && !moveToward(bb, cellCenter(*bb.WanderTo)) {
			return bt.StatusRunning
		}
	}

	here := gridOf(bb.Self)
	options := safeNeighbours(bb, here)
	if len(options) == 0 {
		bb.WanderTo = nil
		return bt.StatusRunning
	}
	to := options[bb.Rng.NextUsize(0, len(options))]
	bb.WanderTo = &to
	bb.WanderFrames = wanderDecisions
	moveToward(bb, cellCenter(to))
	return bt.StatusRunning
}

// safeNeighbours 可行走且安全的相邻格子
func safeNeighbours(bb *Blackboard, pos core.GridPos) []core.GridPos {
	result := make([]core.GridPos, 0, len(neighbours))
	for _, d := range neighbours {
		g := core.GridPos{GridX: pos.GridX + d.GridX, GridY: pos.GridY + d.GridY}
		if isWalkable(bb.Arena, g) && !bb.Danger.InDanger(g.GridX, g.GridY) {
			result = append(result, g)
		}
	}
	return result
}
