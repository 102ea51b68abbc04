package core

import (
	"slices"

	"golang.org/x/image/math/fixed"

	"p2pg/pkg/input"
	"p2pg/pkg/rng"
)

// StepContext 模拟一帧所需的只读数据
type StepContext struct {
	Arena *Arena
}

// NewStepContext 使用默认竞技场
func NewStepContext() *StepContext {
	return &StepContext{Arena: NewArena()}
}

// Step 确定性地推进一帧，inputs 按槽位排列
// 结果只取决于 w 的登记状态和 inputs
func (c *StepContext) Step(w *World, inputs []input.PlayerInput) {
	inputAt := func(i int) input.PlayerInput {
		if i < len(inputs) {
			return inputs[i]
		}
		return input.PlayerInput{}
	}

	// 探测墙体
	for i, pos := range w.Positions {
		w.Walls[i] = senseWalls(c.Arena, pos)
	}

	// 移动
	for i := range w.Positions {
		w.Velocities[i] = moveVelocity(inputAt(i), w.Walls[i])
		w.Positions[i] = w.Positions[i].Add(w.Velocities[i])
	}
	for i := range w.Arrows {
		a := &w.Arrows[i]
		a.Pos = a.Pos.Add(a.Dir.Mul(ArrowSpeed))
	}

	// 碰撞
	for i, pos := range w.Positions {
		w.Positions[i] = resolvePlayer(c.Arena, pos)
	}
	for i := range w.Arrows {
		if arrowHitsWall(c.Arena, &w.Arrows[i]) {
			w.Arrows[i].Lifetime = 0
		}
	}

	// 朝向
	for i := range w.Facings {
		w.Aims[i] = inputAt(i).Aim
		w.Facings[i] = FacingFromAim(w.Aims[i])
	}

	c.shoot(w, inputAt)
	c.damage(w)

	// 计时
	for i := range w.Cooldowns {
		cd := &w.Cooldowns[i]
		if cd.SinceLast < cooldownCap {
			cd.SinceLast++
		}
		if !inputAt(i).Firing() {
			cd.CanShoot = true
		}
	}
	for i := range w.Arrows {
		if w.Arrows[i].Lifetime > 0 {
			w.Arrows[i].Lifetime--
		}
	}

	w.Arrows = cullArrows(w.Arrows)
	w.Frame++
}

func (c *StepContext) shoot(w *World, inputAt func(int) input.PlayerInput) {
	for i := range w.Positions {
		in := inputAt(i)
		cd := &w.Cooldowns[i]
		if !in.Firing() || !cd.CanShoot || cd.SinceLast < ShootCooldown {
			continue
		}
		w.Arrows = append(w.Arrows, spawnArrow(w.NextArrow, i, w.Positions[i], in.Aim))
		w.NextArrow++
		cd.CanShoot = false
		cd.SinceLast = 0
	}
}

type hit struct {
	owner, victim int
}

// damage 先按箭矢顺序收集命中，再统一结算
func (c *StepContext) damage(w *World) {
	var hits []hit
	for i := range w.Arrows {
		a := &w.Arrows[i]
		if !a.Alive() {
			continue
		}
		for victim, pos := range w.Positions {
			if victim == a.Owner || w.Health[victim] <= 0 {
				continue
			}
			if arrowHitsPlayer(a, pos) {
				hits = append(hits, hit{owner: a.Owner, victim: victim})
				a.Lifetime = 0
				break
			}
		}
	}

	killed := make(map[int]bool)
	for _, h := range hits {
		if killed[h.victim] {
			continue
		}
		w.Health[h.victim]--
		if w.Health[h.victim] > 0 {
			continue
		}
		killed[h.victim] = true
		if h.owner >= 0 && h.owner < len(w.Scores) {
			w.Scores[h.owner]++
		}
		c.respawn(w, h.victim)
	}
}

// respawn 用对局随机数挑一个出生点
func (c *StepContext) respawn(w *World, slot int) {
	spawns := slices.Clone(c.Arena.Spawns)
	w.Positions[slot] = rng.ExtractRandom(&w.Rng, &spawns)
	w.Velocities[slot] = fixed.Point52_12{}
	w.Cooldowns[slot] = readyBow()
	w.Health[slot] = PlayerHealth
}
