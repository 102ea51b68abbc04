package core

import (
	"slices"

	"golang.org/x/image/math/fixed"

	"p2pg/pkg/rng"
	"p2pg/pkg/rollback"
)

// World 对局状态（纯逻辑，不包含渲染）
// 按槽位存放的切片长度都等于玩家数
type World struct {
	Positions  []fixed.Point52_12
	Velocities []fixed.Point52_12
	Walls      []WallContact
	Facings    []Facing
	Aims       []uint8 // 最近一帧的量化瞄准角
	Cooldowns  []Cooldown
	Health     []int32
	Scores     []int32

	Arrows    []Arrow
	NextArrow uint32

	Rng   rng.Rng
	Frame int32 // 已模拟帧数
}

// NewWorld 创建对局，玩家按槽位站到出生点
func NewWorld(arena *Arena, players int, seed uint64) *World {
	w := &World{
		Positions:  make([]fixed.Point52_12, players),
		Velocities: make([]fixed.Point52_12, players),
		Walls:      make([]WallContact, players),
		Facings:    make([]Facing, players),
		Aims:       make([]uint8, players),
		Cooldowns:  make([]Cooldown, players),
		Health:     make([]int32, players),
		Scores:     make([]int32, players),
		Rng:        rng.New(seed),
	}
	for i := 0; i < players; i++ {
		w.Positions[i] = arena.Spawns[i%len(arena.Spawns)]
		w.Cooldowns[i] = readyBow()
		w.Health[i] = PlayerHealth
	}
	return w
}

// Players 玩家数
func (w *World) Players() int {
	return len(w.Positions)
}

// Winner 分数最高的槽位，平局返回 -1
func (w *World) Winner() int {
	best, slot := int32(-1), -1
	for i, s := range w.Scores {
		switch {
		case s > best:
			best, slot = s, i
		case s == best:
			slot = -1
		}
	}
	return slot
}

func hashPoint(h *rollback.Hasher, p fixed.Point52_12) {
	h.Int64(int64(p.X))
	h.Int64(int64(p.Y))
}

// NewRegistry 登记所有参与回滚的状态，顺序即校验顺序
func NewRegistry() *rollback.Registry[World] {
	reg := rollback.NewRegistry[World]()

	rollback.Track(reg, rollback.KindComponent, "positions",
		func(w *World) *[]fixed.Point52_12 { return &w.Positions },
		slices.Clone[[]fixed.Point52_12],
		func(h *rollback.Hasher, v []fixed.Point52_12) {
			for _, p := range v {
				hashPoint(h, p)
			}
		})
	rollback.Track(reg, rollback.KindComponent, "velocities",
		func(w *World) *[]fixed.Point52_12 { return &w.Velocities },
		slices.Clone[[]fixed.Point52_12],
		func(h *rollback.Hasher, v []fixed.Point52_12) {
			for _, p := range v {
				hashPoint(h, p)
			}
		})
	rollback.Track(reg, rollback.KindComponent, "walls",
		func(w *World) *[]WallContact { return &w.Walls },
		slices.Clone[[]WallContact],
		func(h *rollback.Hasher, v []WallContact) {
			for _, c := range v {
				h.Bool(c.Up)
				h.Bool(c.Down)
				h.Bool(c.Left)
				h.Bool(c.Right)
			}
		})
	rollback.Track(reg, rollback.KindComponent, "facings",
		func(w *World) *[]Facing { return &w.Facings },
		slices.Clone[[]Facing],
		func(h *rollback.Hasher, v []Facing) {
			for _, f := range v {
				h.Uint8(uint8(f))
			}
		})
	rollback.Track(reg, rollback.KindComponent, "aims",
		func(w *World) *[]uint8 { return &w.Aims },
		slices.Clone[[]uint8],
		func(h *rollback.Hasher, v []uint8) {
			for _, a := range v {
				h.Uint8(a)
			}
		})
	rollback.Track(reg, rollback.KindComponent, "cooldowns",
		func(w *World) *[]Cooldown { return &w.Cooldowns },
		slices.Clone[[]Cooldown],
		func(h *rollback.Hasher, v []Cooldown) {
			for _, c := range v {
				h.Bool(c.CanShoot)
				h.Int64(int64(c.SinceLast))
			}
		})
	rollback.Track(reg, rollback.KindComponent, "health",
		func(w *World) *[]int32 { return &w.Health },
		slices.Clone[[]int32],
		hashInt32s)
	rollback.Track(reg, rollback.KindComponent, "scores",
		func(w *World) *[]int32 { return &w.Scores },
		slices.Clone[[]int32],
		hashInt32s)
	rollback.Track(reg, rollback.KindComponent, "arrows",
		func(w *World) *[]Arrow { return &w.Arrows },
		cloneArrows,
		func(h *rollback.Hasher, v []Arrow) {
			h.Int(len(v))
			for _, a := range v {
				h.Uint64(uint64(a.ID))
				h.Int(a.Owner)
				hashPoint(h, a.Pos)
				hashPoint(h, a.Dir)
				h.Int64(int64(a.Lifetime))
			}
		})
	rollback.Track(reg, rollback.KindResource, "next_arrow",
		func(w *World) *uint32 { return &w.NextArrow },
		nil,
		func(h *rollback.Hasher, v uint32) { h.Uint64(uint64(v)) })
	rollback.Track(reg, rollback.KindResource, "rng",
		func(w *World) *rng.Rng { return &w.Rng },
		nil,
		func(h *rollback.Hasher, v rng.Rng) {
			h.Uint64(v.X)
			h.Uint64(v.M)
			h.Uint64(v.A)
			h.Uint64(v.C)
		})
	rollback.Track(reg, rollback.KindResource, "frame",
		func(w *World) *int32 { return &w.Frame },
		nil,
		func(h *rollback.Hasher, v int32) { h.Int64(int64(v)) })

	return reg
}

func hashInt32s(h *rollback.Hasher, v []int32) {
	for _, x := range v {
		h.Int64(int64(x))
	}
}
