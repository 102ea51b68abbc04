package ai

import (
	"p2pg/pkg/core"
	"p2pg/pkg/input"
	"p2pg/pkg/rng"
)

// Blackboard 一次决策中各节点共享的数据
type Blackboard struct {
	Arena  *core.Arena
	World  *core.World
	Slot   int
	Danger *DangerField
	Config *BotConfig
	Rng    *rng.Rng

	Self  input.Point
	Enemy int // 目标槽位，-1 表示没有

	EscapeTo  *core.GridPos
	NextInput input.PlayerInput

	// 游荡目标，跨决策保持
	WanderTo     *core.GridPos
	WanderFrames int
}

// ResetFrame 每次决策前刷新世界视图
func (bb *Blackboard) ResetFrame(arena *core.Arena, w *core.World) {
	bb.Arena = arena
	bb.World = w
	bb.Self = pointOf(w.Positions[bb.Slot])
	bb.Enemy = -1
	// EscapeTo 与 WanderTo 不在这里清空，保持目标的连续性
	bb.NextInput = input.PlayerInput{Aim: w.Aims[bb.Slot]}
}
