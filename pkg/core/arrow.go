package core

import "golang.org/x/image/math/fixed"

// Arrow 飞行中的箭矢
type Arrow struct {
	ID       uint32           // 按生成顺序递增
	Owner    int              // 射手槽位
	Pos      fixed.Point52_12 // 箭矢中心
	Dir      fixed.Point52_12 // 单位方向
	Lifetime int32            // 剩余帧数，0 表示待移除
}

// Alive 是否仍在飞行
func (a *Arrow) Alive() bool {
	return a.Lifetime > 0
}

// Bounds 命中圆的外接矩形
func (a *Arrow) Bounds() fixed.Rectangle52_12 {
	return centered(a.Pos, ArrowRadius)
}

// spawnArrow 在玩家前方生成箭矢
func spawnArrow(id uint32, owner int, from fixed.Point52_12, aim uint8) Arrow {
	dir := Direction(aim)
	return Arrow{
		ID:       id,
		Owner:    owner,
		Pos:      from.Add(dir.Mul(I(ArrowSpawnGap))),
		Dir:      dir,
		Lifetime: ArrowLifetime,
	}
}

// cloneArrows 快照需要独立的底层数组
func cloneArrows(arrows []Arrow) []Arrow {
	if arrows == nil {
		return nil
	}
	out := make([]Arrow, len(arrows))
	copy(out, arrows)
	return out
}

// cullArrows 原地移除已失效的箭矢，保持顺序
func cullArrows(arrows []Arrow) []Arrow {
	kept := arrows[:0]
	for _, a := range arrows {
		if a.Alive() {
			kept = append(kept, a)
		}
	}
	clear(arrows[len(kept):])
	return kept
}
