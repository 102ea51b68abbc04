package protocol

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"p2pg/pkg/input"
)

// Message 可装入 Packet 的消息
type Message interface {
	Type() MessageType
	AppendWire(b []byte) []byte
	UnmarshalWire(b []byte) error
}

// ErrorCode 服务器返回的错误码
type ErrorCode uint32

const (
	ErrCodeBadRequest  ErrorCode = iota + 1 // 格式或顺序错误
	ErrCodeBadTicket                        // 票据无效、过期或已使用
	ErrCodeRateLimited                      // 发送过快
	ErrCodeShutdown                         // 服务器关闭
)

// Join 加入房间，Peers 为对局人数
type Join struct {
	Room  string
	Peers uint32
}

// Waiting 房间人数未满
type Waiting struct {
	Room   string
	Joined uint32
	Needed uint32
}

// Ready 匹配完成，客户端凭 Ticket 建立对局通道
type Ready struct {
	MatchID        string
	PeerID         string   // 接收方自己的 id
	Peers          []string // 对局内全部 id
	Ticket         string
	DesyncInterval uint32
	Seed           uint64
	InputDelay     uint32 // 全体玩家共用的输入延迟帧数
}

// Bind 出示票据
type Bind struct {
	Ticket string
}

// Start 对局内全部玩家都已绑定
type Start struct {
	MatchID string
	Peers   []string
}

// Input 某帧的一条输入；Peer 由服务器在转发时填写
type Input struct {
	Peer  string
	Frame int32
	Input input.PlayerInput
}

// Checksum 检查点校验和；Peer 由服务器在转发时填写
type Checksum struct {
	Peer  string
	Frame int32
	Sum   uint64
}

// PeerLeft 对手断开
type PeerLeft struct {
	Peer   string
	Reason string
}

type Ping struct {
	ClientTime int64
}

type Pong struct {
	ClientTime int64
	ServerTime int64
}

// Error 服务器拒绝了请求
type Error struct {
	Code    ErrorCode
	Message string
}

func (m *Error) Error() string {
	return fmt.Sprintf("服务器错误 %d: %s", m.Code, m.Message)
}

func (*Join) Type() MessageType     { return MessageJoin }
func (*Waiting) Type() MessageType  { return MessageWaiting }
func (*Ready) Type() MessageType    { return MessageReady }
func (*Bind) Type() MessageType     { return MessageBind }
func (*Start) Type() MessageType    { return MessageStart }
func (*Input) Type() MessageType    { return MessageInput }
func (*Checksum) Type() MessageType { return MessageChecksum }
func (*PeerLeft) Type() MessageType { return MessagePeerLeft }
func (*Ping) Type() MessageType     { return MessagePing }
func (*Pong) Type() MessageType     { return MessagePong }
func (*Error) Type() MessageType    { return MessageError }

// ========== 编码 ==========

func (m *Join) AppendWire(b []byte) []byte {
	b = appendString(b, 1, m.Room)
	return appendUint(b, 2, uint64(m.Peers))
}

func (m *Waiting) AppendWire(b []byte) []byte {
	b = appendString(b, 1, m.Room)
	b = appendUint(b, 2, uint64(m.Joined))
	return appendUint(b, 3, uint64(m.Needed))
}

func (m *Ready) AppendWire(b []byte) []byte {
	b = appendString(b, 1, m.MatchID)
	b = appendString(b, 2, m.PeerID)
	b = appendStrings(b, 3, m.Peers)
	b = appendString(b, 4, m.Ticket)
	b = appendUint(b, 5, uint64(m.DesyncInterval))
	b = appendUint(b, 6, m.Seed)
	return appendUint(b, 7, uint64(m.InputDelay))
}

func (m *Bind) AppendWire(b []byte) []byte {
	return appendString(b, 1, m.Ticket)
}

func (m *Start) AppendWire(b []byte) []byte {
	b = appendString(b, 1, m.MatchID)
	return appendStrings(b, 2, m.Peers)
}

func (m *Input) AppendWire(b []byte) []byte {
	b = appendString(b, 1, m.Peer)
	b = appendInt(b, 2, int64(m.Frame))
	raw, _ := m.Input.MarshalBinary()
	return appendBytes(b, 3, raw)
}

func (m *Checksum) AppendWire(b []byte) []byte {
	b = appendString(b, 1, m.Peer)
	b = appendInt(b, 2, int64(m.Frame))
	return appendFixed64(b, 3, m.Sum)
}

func (m *PeerLeft) AppendWire(b []byte) []byte {
	b = appendString(b, 1, m.Peer)
	return appendString(b, 2, m.Reason)
}

func (m *Ping) AppendWire(b []byte) []byte {
	return appendInt(b, 1, m.ClientTime)
}

func (m *Pong) AppendWire(b []byte) []byte {
	b = appendInt(b, 1, m.ClientTime)
	return appendInt(b, 2, m.ServerTime)
}

func (m *Error) AppendWire(b []byte) []byte {
	b = appendUint(b, 1, uint64(m.Code))
	return appendString(b, 2, m.Message)
}

// ========== 解码 ==========
// 未知字段直接跳过

func (m *Join) UnmarshalWire(b []byte) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, v []byte) (err error) {
		switch num {
		case 1:
			m.Room, err = wireString(typ, v)
		case 2:
			var x uint64
			x, err = wireUint(typ, v)
			m.Peers = uint32(x)
		}
		return err
	})
}

func (m *Waiting) UnmarshalWire(b []byte) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, v []byte) (err error) {
		var x uint64
		switch num {
		case 1:
			m.Room, err = wireString(typ, v)
		case 2:
			x, err = wireUint(typ, v)
			m.Joined = uint32(x)
		case 3:
			x, err = wireUint(typ, v)
			m.Needed = uint32(x)
		}
		return err
	})
}

func (m *Ready) UnmarshalWire(b []byte) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, v []byte) (err error) {
		var x uint64
		switch num {
		case 1:
			m.MatchID, err = wireString(typ, v)
		case 2:
			m.PeerID, err = wireString(typ, v)
		case 3:
			var s string
			s, err = wireString(typ, v)
			m.Peers = append(m.Peers, s)
		case 4:
			m.Ticket, err = wireString(typ, v)
		case 5:
			x, err = wireUint(typ, v)
			m.DesyncInterval = uint32(x)
		case 6:
			m.Seed, err = wireUint(typ, v)
		case 7:
			x, err = wireUint(typ, v)
			m.InputDelay = uint32(x)
		}
		return err
	})
}

func (m *Bind) UnmarshalWire(b []byte) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, v []byte) (err error) {
		if num == 1 {
			m.Ticket, err = wireString(typ, v)
		}
		return err
	})
}

func (m *Start) UnmarshalWire(b []byte) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, v []byte) (err error) {
		switch num {
		case 1:
			m.MatchID, err = wireString(typ, v)
		case 2:
			var s string
			s, err = wireString(typ, v)
			m.Peers = append(m.Peers, s)
		}
		return err
	})
}

// UnmarshalWire 输入字段缺失或长度不是 3 字节时返回 *input.InputDecodeError
func (m *Input) UnmarshalWire(b []byte) error {
	var raw []byte
	err := walk(b, func(num protowire.Number, typ protowire.Type, v []byte) (err error) {
		var x int64
		switch num {
		case 1:
			m.Peer, err = wireString(typ, v)
		case 2:
			x, err = wireInt(typ, v)
			m.Frame = int32(x)
		case 3:
			raw, err = wireBytes(typ, v)
		}
		return err
	})
	if err != nil {
		return err
	}
	return m.Input.UnmarshalBinary(raw)
}

func (m *Checksum) UnmarshalWire(b []byte) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, v []byte) (err error) {
		var x int64
		switch num {
		case 1:
			m.Peer, err = wireString(typ, v)
		case 2:
			x, err = wireInt(typ, v)
			m.Frame = int32(x)
		case 3:
			m.Sum, err = wireFixed64(typ, v)
		}
		return err
	})
}

func (m *PeerLeft) UnmarshalWire(b []byte) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, v []byte) (err error) {
		switch num {
		case 1:
			m.Peer, err = wireString(typ, v)
		case 2:
			m.Reason, err = wireString(typ, v)
		}
		return err
	})
}

func (m *Ping) UnmarshalWire(b []byte) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, v []byte) (err error) {
		if num == 1 {
			m.ClientTime, err = wireInt(typ, v)
		}
		return err
	})
}

func (m *Pong) UnmarshalWire(b []byte) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, v []byte) (err error) {
		switch num {
		case 1:
			m.ClientTime, err = wireInt(typ, v)
		case 2:
			m.ServerTime, err = wireInt(typ, v)
		}
		return err
	})
}

func (m *Error) UnmarshalWire(b []byte) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, v []byte) (err error) {
		switch num {
		case 1:
			var x uint64
			x, err = wireUint(typ, v)
			m.Code = ErrorCode(x)
		case 2:
			m.Message, err = wireString(typ, v)
		}
		return err
	})
}
