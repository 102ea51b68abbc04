package protocol

import (
	"fmt"

	"p2pg/pkg/input"
)

// ========== 辅助构造方法 ==========

// NewPacket 把消息装入信封
func NewPacket(m Message) *Packet {
	return &Packet{Type: m.Type(), Payload: m.AppendWire(nil)}
}

// NewJoinPacket 构造加入请求
func NewJoinPacket(room string, peers int) *Packet {
	return NewPacket(&Join{Room: room, Peers: uint32(peers)})
}

// NewWaitingPacket 构造等待消息
func NewWaitingPacket(room string, joined, needed int) *Packet {
	return NewPacket(&Waiting{Room: room, Joined: uint32(joined), Needed: uint32(needed)})
}

// NewBindPacket 构造绑定请求
func NewBindPacket(ticket string) *Packet {
	return NewPacket(&Bind{Ticket: ticket})
}

// NewStartPacket 构造开始消息
func NewStartPacket(matchID string, peers []string) *Packet {
	return NewPacket(&Start{MatchID: matchID, Peers: peers})
}

// NewInputPacket 构造输入消息
func NewInputPacket(peer string, frame int32, in input.PlayerInput) *Packet {
	return NewPacket(&Input{Peer: peer, Frame: frame, Input: in})
}

// NewChecksumPacket 构造校验和消息
func NewChecksumPacket(peer string, frame int32, sum uint64) *Packet {
	return NewPacket(&Checksum{Peer: peer, Frame: frame, Sum: sum})
}

// NewPeerLeftPacket 构造对手离开消息
func NewPeerLeftPacket(peer, reason string) *Packet {
	return NewPacket(&PeerLeft{Peer: peer, Reason: reason})
}

// NewPingPacket 构造心跳消息
func NewPingPacket(clientTime int64) *Packet {
	return NewPacket(&Ping{ClientTime: clientTime})
}

// NewPongPacket 构造心跳响应
func NewPongPacket(clientTime, serverTime int64) *Packet {
	return NewPacket(&Pong{ClientTime: clientTime, ServerTime: serverTime})
}

// NewErrorPacket 构造错误消息
func NewErrorPacket(code ErrorCode, format string, args ...any) *Packet {
	return NewPacket(&Error{Code: code, Message: fmt.Sprintf(format, args...)})
}

// ========== 消息解析辅助 ==========

// Decode 按类型解析消息体
func Decode(pkt *Packet) (Message, error) {
	var m Message
	switch pkt.Type {
	case MessageJoin:
		m = &Join{}
	case MessageWaiting:
		m = &Waiting{}
	case MessageReady:
		m = &Ready{}
	case MessageBind:
		m = &Bind{}
	case MessageStart:
		m = &Start{}
	case MessageInput:
		m = &Input{}
	case MessageChecksum:
		m = &Checksum{}
	case MessagePeerLeft:
		m = &PeerLeft{}
	case MessagePing:
		m = &Ping{}
	case MessagePong:
		m = &Pong{}
	case MessageError:
		m = &Error{}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedType, pkt.Type)
	}
	if err := m.UnmarshalWire(pkt.Payload); err != nil {
		return nil, fmt.Errorf("解析 %s 失败: %w", pkt.Type, err)
	}
	return m, nil
}

func parseAs[M Message](pkt *Packet, m M) (M, error) {
	if pkt.Type != m.Type() {
		var zero M
		return zero, fmt.Errorf("%w: 期望 %s，实际 %s", ErrUnexpectedType, m.Type(), pkt.Type)
	}
	if err := m.UnmarshalWire(pkt.Payload); err != nil {
		var zero M
		return zero, fmt.Errorf("解析 %s 失败: %w", pkt.Type, err)
	}
	return m, nil
}

// ParseJoin 从 Packet 中解析 Join
func ParseJoin(pkt *Packet) (*Join, error) { return parseAs(pkt, &Join{}) }

// ParseReady 从 Packet 中解析 Ready
func ParseReady(pkt *Packet) (*Ready, error) { return parseAs(pkt, &Ready{}) }

// ParseBind 从 Packet 中解析 Bind
func ParseBind(pkt *Packet) (*Bind, error) { return parseAs(pkt, &Bind{}) }

// ParseInput 从 Packet 中解析 Input
func ParseInput(pkt *Packet) (*Input, error) { return parseAs(pkt, &Input{}) }

// ParseChecksum 从 Packet 中解析 Checksum
func ParseChecksum(pkt *Packet) (*Checksum, error) { return parseAs(pkt, &Checksum{}) }
