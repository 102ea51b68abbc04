package rollback

import (
	"errors"
	"fmt"
)

// ErrOutOfWindow 访问了窗口之外的帧
var ErrOutOfWindow = errors.New("帧超出窗口范围")

// Window 以帧号为下标的环形缓冲
type Window[T any] struct {
	first int32 // 窗口内最小帧号
	start int   // first 在 data 中的位置
	data  []T
}

// NewWindow 创建容量为 n、起始帧为 start 的窗口
func NewWindow[T any](n int, start int32) *Window[T] {
	return &Window[T]{
		first: start,
		data:  make([]T, n),
	}
}

func (w *Window[T]) index(pos int32) (int, error) {
	if !w.Contains(pos) {
		return 0, fmt.Errorf("%w: %d 不在 [%d, %d)", ErrOutOfWindow, pos, w.first, w.End())
	}
	return (w.start + int(pos-w.first)) % len(w.data), nil
}

// Contains 帧号是否在窗口内
func (w *Window[T]) Contains(pos int32) bool {
	return pos >= w.first && pos < w.End()
}

func (w *Window[T]) Get(pos int32) (T, error) {
	i, err := w.index(pos)
	if err != nil {
		var zero T
		return zero, err
	}
	return w.data[i], nil
}

func (w *Window[T]) Set(pos int32, val T) error {
	i, err := w.index(pos)
	if err != nil {
		return err
	}
	w.data[i] = val
	return nil
}

func (w *Window[T]) Start() int32 {
	return w.first
}

func (w *Window[T]) End() int32 {
	return w.first + int32(len(w.data))
}

// Advance 丢弃最早的一帧，腾出的位置清零
func (w *Window[T]) Advance() {
	var zero T
	w.data[w.start] = zero
	w.first++
	w.start = (w.start + 1) % len(w.data)
}

// AdvanceTo 将起点推进到 pos
func (w *Window[T]) AdvanceTo(pos int32) {
	for w.first < pos {
		w.Advance()
	}
}
