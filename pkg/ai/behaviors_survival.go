package ai

import (
	"p2pg/pkg/ai/bt"
	"p2pg/pkg/input"
)

// arriveDistance 距格子中心小于该值（像素）视为到达
const arriveDistance = 1.5

func condInDanger(bb *Blackboard) bool {
	g := gridOf(bb.Self)
	return bb.Danger.InDanger(g.GridX, g.GridY)
}

// actFindSafe 目标仍然安全就沿用，否则重新搜索
func actFindSafe(bb *Blackboard) bt.Status {
	if t := bb.EscapeTo; t != nil && !bb.Danger.InDanger(t.GridX, t.GridY) {
		return bt.StatusSuccess
	}
	safe, ok := findSafe(bb.Arena, bb.Danger, gridOf(bb.Self))
	if !ok {
		bb.EscapeTo = nil
		return bt.StatusFailure
	}
	bb.EscapeTo = &safe
	return bt.StatusSuccess
}

func actMoveToSafe(bb *Blackboard) bt.Status {
	if bb.EscapeTo == nil {
		return bt.StatusFailure
	}
	next, ok := nextStepToward(bb.Arena, gridOf(bb.Self), *bb.EscapeTo)
	if !ok {
		bb.EscapeTo = nil
		return bt.StatusFailure
	}
	if moveToward(bb, cellCenter(next)) {
		bb.EscapeTo = nil
		return bt.StatusSuccess
	}
	return bt.StatusRunning
}

// moveToward 朝目标点移动，已到达时返回 true 且不移动
func moveToward(bb *Blackboard, target input.Point) bool {
	if target.Sub(bb.Self).Len() < arriveDistance {
		return true
	}
	bb.NextInput.Buttons |= input.ButtonMove
	bb.NextInput.Direction = input.AimAt(bb.Self, target)
	return false
}
