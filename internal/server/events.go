package server

import "p2pg/pkg/input"

type EventKind int

const (
	EventUnknown EventKind = iota
	EventJoin
	EventBind
	EventInput
	EventChecksum
	EventPing
	EventPong
)

func (k EventKind) String() string {
	switch k {
	case EventJoin:
		return "join"
	case EventBind:
		return "bind"
	case EventInput:
		return "input"
	case EventChecksum:
		return "checksum"
	case EventPing:
		return "ping"
	case EventPong:
		return "pong"
	}
	return "unknown"
}

type JoinEvent struct {
	Room  string // 房间名，同名且人数相同的玩家互相匹配
	Peers int
}

type BindEvent struct {
	Ticket string
}

type InputEvent struct {
	Frame int32
	Input input.PlayerInput
}

type ChecksumEvent struct {
	Frame int32
	Sum   uint64
}

type PingEvent struct {
	ClientTime int64
}

type PongEvent struct {
	ClientTime int64
	ServerTime int64
}

type ServerEvent struct {
	Kind     EventKind
	Join     *JoinEvent
	Bind     *BindEvent
	Input    *InputEvent
	Checksum *ChecksumEvent
	Ping     *PingEvent
	Pong     *PongEvent
}
