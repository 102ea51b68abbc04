package rollback

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"
)

// Kind 登记项类别
type Kind int

const (
	KindComponent Kind = iota // 每个实体一份
	KindResource              // 全局一份
)

func (k Kind) String() string {
	switch k {
	case KindComponent:
		return "component"
	case KindResource:
		return "resource"
	}
	return "unknown"
}

// Hasher 校验和写入器，按固定字节序写入
type Hasher struct {
	d   *xxhash.Digest
	buf [8]byte
}

func (h *Hasher) Uint64(v uint64) {
	binary.LittleEndian.PutUint64(h.buf[:], v)
	_, _ = h.d.Write(h.buf[:])
}

func (h *Hasher) Int64(v int64) { h.Uint64(uint64(v)) }
func (h *Hasher) Int(v int)     { h.Uint64(uint64(int64(v))) }
func (h *Hasher) Uint8(v uint8) { _, _ = h.d.Write([]byte{v}) }

func (h *Hasher) Bool(v bool) {
	if v {
		h.Uint8(1)
		return
	}
	h.Uint8(0)
}

// Float64 按位写入，仅用于已确定性的值
func (h *Hasher) Float64(v float64) { h.Uint64(math.Float64bits(v)) }

func (h *Hasher) String(s string) { _, _ = h.d.WriteString(s) }

type entry[W any] struct {
	name    string
	kind    Kind
	save    func(w *W) any
	restore func(w *W, v any)
	hash    func(w *W, h *Hasher)
}

// Registry 参与快照、恢复和校验的状态清单
// 未登记的状态（动画、相机、音效）不会被回滚
type Registry[W any] struct {
	entries []entry[W]
	names   map[string]struct{}
}

// NewRegistry 创建空清单
func NewRegistry[W any]() *Registry[W] {
	return &Registry[W]{names: make(map[string]struct{})}
}

// Track 登记 W 中的一个字段
// clone 为空时按值复制；hash 按登记顺序写入校验和。重名会 panic
func Track[W, T any](r *Registry[W], kind Kind, name string, field func(*W) *T, clone func(T) T, hash func(*Hasher, T)) {
	if _, dup := r.names[name]; dup {
		panic(fmt.Sprintf("rollback: %s %q 重复登记", kind, name))
	}
	if clone == nil {
		clone = func(v T) T { return v }
	}
	r.names[name] = struct{}{}
	r.entries = append(r.entries, entry[W]{
		name: name,
		kind: kind,
		save: func(w *W) any {
			return clone(*field(w))
		},
		restore: func(w *W, v any) {
			*field(w) = clone(v.(T))
		},
		hash: func(w *W, h *Hasher) {
			hash(h, *field(w))
		},
	})
}

// Names 按登记顺序返回名称
func (r *Registry[W]) Names() []string {
	names := make([]string, len(r.entries))
	for i, e := range r.entries {
		names[i] = e.name
	}
	return names
}

// Tracked 是否已登记
func (r *Registry[W]) Tracked(name string) bool {
	_, ok := r.names[name]
	return ok
}

// Snapshot 一次完整快照
type Snapshot struct {
	values []any
}

// Save 复制全部登记状态
func (r *Registry[W]) Save(w *W) Snapshot {
	values := make([]any, len(r.entries))
	for i, e := range r.entries {
		values[i] = e.save(w)
	}
	return Snapshot{values: values}
}

// Restore 用快照覆盖登记状态
func (r *Registry[W]) Restore(w *W, s Snapshot) error {
	if len(s.values) != len(r.entries) {
		return fmt.Errorf("快照项数 %d 与登记项数 %d 不一致", len(s.values), len(r.entries))
	}
	for i, e := range r.entries {
		e.restore(w, s.values[i])
	}
	return nil
}

// Checksum 按登记顺序计算 xxhash
func (r *Registry[W]) Checksum(w *W) uint64 {
	h := &Hasher{d: xxhash.New()}
	for _, e := range r.entries {
		h.String(e.name)
		e.hash(w, h)
	}
	return h.d.Sum64()
}
