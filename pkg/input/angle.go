package input

import "math"

// 量化角度：0-255 表示从"上"开始顺时针的 [0, 2π)

// Point 二维坐标
type Point struct {
	X, Y float64
}

// Sub 向量差
func (p Point) Sub(o Point) Point {
	return Point{X: p.X - o.X, Y: p.Y - o.Y}
}

// Len 向量长度
func (p Point) Len() float64 {
	return math.Hypot(p.X, p.Y)
}

// EncodeAngle 弧度转量化角度
func EncodeAngle(a float64) uint8 {
	t := a / (2 * math.Pi)
	if t < 0 || math.IsNaN(t) {
		t = 0
	} else if t > 1 {
		t = 1
	}
	return uint8(math.Floor(t * 255))
}

// DecodeAngle 量化角度转弧度
func DecodeAngle(b uint8) float64 {
	return float64(b) / 255 * 2 * math.Pi
}

// VecToAngle 向量转角度（世界坐标，+Y 向上），顺时针，结果在 [0, 2π)
func VecToAngle(x, y float64) float64 {
	a := math.Atan2(x, y)
	if a < 0 {
		a += 2 * math.Pi
	}
	return a
}

// AngleToVec 角度转单位向量
func AngleToVec(a float64) (x, y float64) {
	return math.Sin(a), math.Cos(a)
}

// AimAt 从 from 指向 to 的量化角度
func AimAt(from, to Point) uint8 {
	d := to.Sub(from)
	return EncodeAngle(VecToAngle(d.X, d.Y))
}
