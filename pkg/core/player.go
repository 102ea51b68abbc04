package core

import (
	"golang.org/x/image/math/fixed"

	"p2pg/pkg/input"
)

// WallContact 四个方向的墙体探测结果
type WallContact struct {
	Up, Down, Left, Right bool
}

// Any 是否贴着任意一面墙
func (c WallContact) Any() bool {
	return c.Up || c.Down || c.Left || c.Right
}

// Cooldown 弓的冷却状态
// 射击后必须松开射击键才能再次拉弓
type Cooldown struct {
	CanShoot  bool
	SinceLast int32 // 距上次射击的帧数
}

func readyBow() Cooldown {
	return Cooldown{CanShoot: true, SinceLast: ShootCooldown}
}

// PlayerRect 玩家碰撞盒
func PlayerRect(pos fixed.Point52_12) fixed.Rectangle52_12 {
	return centered(pos, I(PlayerHalfSize))
}

// senseWalls 在碰撞盒四边外侧各放一条探测条
func senseWalls(arena *Arena, pos fixed.Point52_12) WallContact {
	r := PlayerRect(pos)
	probe := func(s fixed.Rectangle52_12) bool {
		return len(arena.WallsOverlapping(s)) > 0
	}
	return WallContact{
		Up: probe(fixed.Rectangle52_12{
			Min: fixed.Point52_12{X: r.Min.X, Y: r.Max.Y},
			Max: fixed.Point52_12{X: r.Max.X, Y: r.Max.Y + SensorDepth},
		}),
		Down: probe(fixed.Rectangle52_12{
			Min: fixed.Point52_12{X: r.Min.X, Y: r.Min.Y - SensorDepth},
			Max: fixed.Point52_12{X: r.Max.X, Y: r.Min.Y},
		}),
		Left: probe(fixed.Rectangle52_12{
			Min: fixed.Point52_12{X: r.Min.X - SensorDepth, Y: r.Min.Y},
			Max: fixed.Point52_12{X: r.Min.X, Y: r.Max.Y},
		}),
		Right: probe(fixed.Rectangle52_12{
			Min: fixed.Point52_12{X: r.Max.X, Y: r.Min.Y},
			Max: fixed.Point52_12{X: r.Max.X + SensorDepth, Y: r.Max.Y},
		}),
	}
}

// moveVelocity 由输入和墙体接触计算本帧速度
// 朝墙的分量被清零后，剩余分量按轴重新归一
func moveVelocity(in input.PlayerInput, walls WallContact) fixed.Point52_12 {
	if !in.Moving() {
		return fixed.Point52_12{}
	}
	d := Direction(in.Direction)
	clamped := false
	if (d.X > 0 && walls.Right) || (d.X < 0 && walls.Left) {
		d.X = 0
		clamped = true
	}
	if (d.Y > 0 && walls.Up) || (d.Y < 0 && walls.Down) {
		d.Y = 0
		clamped = true
	}
	if clamped {
		d = fixed.Point52_12{X: sign(d.X), Y: sign(d.Y)}
	}
	return d.Mul(PlayerSpeed)
}
