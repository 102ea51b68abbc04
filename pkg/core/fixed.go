package core

import (
	"math"

	"golang.org/x/image/math/fixed"

	"p2pg/pkg/input"
)

// 模拟中只使用 52.12 定点数，保证各平台逐位一致

const one = fixed.Int52_12(1 << 12)

// I 整数转定点
func I(n int) fixed.Int52_12 {
	return fixed.Int52_12(int64(n) << 12)
}

// P 整数坐标转定点坐标
func P(x, y int) fixed.Point52_12 {
	return fixed.Point52_12{X: I(x), Y: I(y)}
}

// ToFloat 定点转浮点，仅供渲染使用
func ToFloat(x fixed.Int52_12) float64 {
	return float64(x) / float64(one)
}

// 量化角度对应的单位向量，初始化时四舍五入到 12 位小数
var sinTable, cosTable [256]fixed.Int52_12

func init() {
	for i := range sinTable {
		a := input.DecodeAngle(uint8(i))
		sinTable[i] = fixed.Int52_12(math.Round(math.Sin(a) * float64(one)))
		cosTable[i] = fixed.Int52_12(math.Round(math.Cos(a) * float64(one)))
	}
}

// Direction 量化角度转单位向量（+Y 向上，顺时针）
func Direction(angle uint8) fixed.Point52_12 {
	return fixed.Point52_12{X: sinTable[angle], Y: cosTable[angle]}
}

func sign(x fixed.Int52_12) fixed.Int52_12 {
	switch {
	case x > 0:
		return one
	case x < 0:
		return -one
	}
	return 0
}

// centered 以 c 为中心、半边长 h 的矩形
func centered(c fixed.Point52_12, h fixed.Int52_12) fixed.Rectangle52_12 {
	return fixed.Rectangle52_12{
		Min: fixed.Point52_12{X: c.X - h, Y: c.Y - h},
		Max: fixed.Point52_12{X: c.X + h, Y: c.Y + h},
	}
}

func overlaps(a, b fixed.Rectangle52_12) bool {
	return !a.Intersect(b).Empty()
}

// circleHitsRect 圆与矩形是否相交（边界相切不算）
func circleHitsRect(c fixed.Point52_12, r fixed.Int52_12, rect fixed.Rectangle52_12) bool {
	nx := clamp(c.X, rect.Min.X, rect.Max.X)
	ny := clamp(c.Y, rect.Min.Y, rect.Max.Y)
	dx, dy := c.X-nx, c.Y-ny
	return dx.Mul(dx)+dy.Mul(dy) < r.Mul(r)
}

func clamp(x, lo, hi fixed.Int52_12) fixed.Int52_12 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
