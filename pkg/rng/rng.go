// Package rng 线性同余随机数发生器，参与回滚，所有对端结果逐位一致
package rng

// 默认参数（MINSTD）
const (
	DefaultSeed       = 1024
	DefaultModulus    = 2147483647
	DefaultMultiplier = 48271
	DefaultIncrement  = 0
)

// MatchSeed 对局开始时的默认种子
const MatchSeed = 8008135

// Rng 值类型，可直接复制做快照
type Rng struct {
	X uint64 // 当前状态
	M uint64
	A uint64
	C uint64
}

// Default 返回默认参数的发生器
func Default() Rng {
	return Rng{X: DefaultSeed, M: DefaultModulus, A: DefaultMultiplier, C: DefaultIncrement}
}

// New 以 seed 为初始状态
func New(seed uint64) Rng {
	r := Default()
	r.X = seed
	return r
}

// NextF64 推进一步，返回 [0, 1)
func (r *Rng) NextF64() float64 {
	r.X = (r.A*r.X + r.C) % r.M
	return float64(r.X) / float64(r.M)
}

// NextF32 单精度版本
func (r *Rng) NextF32() float32 {
	return float32(r.NextF64())
}

// NextI32 返回 [min, max) 内的整数
func (r *Rng) NextI32(min, max int32) int32 {
	t := r.NextF32() * float32(max-min)
	return int32(t) + min
}

// NextUsize 返回 [min, max) 内的整数
func (r *Rng) NextUsize(min, max int) int {
	t := r.NextF64() * float64(max-min)
	return int(t) + min
}

// ExtractRandom 随机移除并返回一个元素（与末尾交换后弹出，不保序）
// 对空切片调用会 panic
func ExtractRandom[T any](r *Rng, s *[]T) T {
	seq := *s
	n := r.NextUsize(0, len(seq))
	v := seq[n]
	last := len(seq) - 1
	seq[n] = seq[last]
	var zero T
	seq[last] = zero
	*s = seq[:last]
	return v
}
