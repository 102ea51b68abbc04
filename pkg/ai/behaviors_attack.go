package ai

import (
	"p2pg/pkg/ai/bt"
	"p2pg/pkg/core"
	"p2pg/pkg/input"
)

// condHasEnemy 选出最近的存活对手
func condHasEnemy(bb *Blackboard) bool {
	best := -1.0
	for slot, pos := range bb.World.Positions {
		if slot == bb.Slot || bb.World.Health[slot] <= 0 {
			continue
		}
		d := pointOf(pos).Sub(bb.Self).Len()
		if best < 0 || d < best {
			best, bb.Enemy = d, slot
		}
	}
	return bb.Enemy >= 0
}

func enemyPoint(bb *Blackboard) input.Point {
	return pointOf(bb.World.Positions[bb.Enemy])
}

// actAim 瞄准对手，带随机误差
func actAim(bb *Blackboard) bt.Status {
	aim := int32(input.AimAt(bb.Self, enemyPoint(bb)))
	if j := bb.Config.AimJitter; j > 0 {
		aim += bb.Rng.NextI32(-j, j+1)
	}
	bb.NextInput.Aim = uint8(aim)
	return bt.StatusSuccess
}

func condCanHit(bb *Blackboard) bool {
	target := enemyPoint(bb)
	if target.Sub(bb.Self).Len() > bb.Config.FireRange {
		return false
	}
	return lineOfSight(bb.Arena, bb.Self, target)
}

// actShoot 弓就绪时射击；未就绪时保持瞄准等待
func actShoot(bb *Blackboard) bt.Status {
	cd := bb.World.Cooldowns[bb.Slot]
	if !cd.CanShoot || cd.SinceLast < core.ShootCooldown {
		return bt.StatusRunning
	}
	bb.NextInput.Buttons |= input.ButtonFire
	return bt.StatusSuccess
}

// actApproach 沿路径接近对手
func actApproach(bb *Blackboard) bt.Status {
	next, ok := nextStepToward(bb.Arena, gridOf(bb.Self), gridOf(enemyPoint(bb)))
	if !ok {
		return bt.StatusFailure
	}
	moveToward(bb, cellCenter(next))
	return bt.StatusRunning
}
