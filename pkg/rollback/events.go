package rollback

// EventKind 引擎事件类型
type EventKind int

const (
	EventRollback EventKind = iota + 1 // 发生回滚重算
	EventDesync                        // 校验和不一致
)

func (k EventKind) String() string {
	switch k {
	case EventRollback:
		return "rollback"
	case EventDesync:
		return "desync"
	}
	return "unknown"
}

// Event 引擎事件，由 Engine.Events 取出
type Event struct {
	Kind   EventKind
	Frame  int32        // 回滚起点或不同步的帧
	Frames int32        // 回滚重算的帧数
	Desync *DesyncError // 仅 EventDesync
}

// Stats 运行统计
type Stats struct {
	Rollbacks   int
	Resimulated int
	Stalls      int
	Checks      int
}
