package protocol

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// MessageType 数据包类型
type MessageType uint32

const (
	MessageUnknown  MessageType = iota
	MessageJoin                        // 客户端 -> 服务器：加入房间
	MessageWaiting                     // 服务器 -> 客户端：等待对手
	MessageReady                       // 服务器 -> 客户端：匹配完成，下发票据
	MessageBind                        // 客户端 -> 服务器：凭票据进入对局
	MessageStart                       // 服务器 -> 客户端：双方就绪，开始
	MessageInput                       // 对局内转发：某帧输入
	MessageChecksum                    // 对局内转发：检查点校验和
	MessagePeerLeft                    // 服务器 -> 客户端：对手离开
	MessagePing
	MessagePong
	MessageError
)

func (t MessageType) String() string {
	switch t {
	case MessageJoin:
		return "join"
	case MessageWaiting:
		return "waiting"
	case MessageReady:
		return "ready"
	case MessageBind:
		return "bind"
	case MessageStart:
		return "start"
	case MessageInput:
		return "input"
	case MessageChecksum:
		return "checksum"
	case MessagePeerLeft:
		return "peer_left"
	case MessagePing:
		return "ping"
	case MessagePong:
		return "pong"
	case MessageError:
		return "error"
	}
	return fmt.Sprintf("unknown(%d)", uint32(t))
}

var (
	ErrUnexpectedType = errors.New("消息类型不符")
	errWireType       = errors.New("字段编码类型不符")
)

// Packet 外层信封：类型 + 消息体
type Packet struct {
	Type    MessageType
	Payload []byte
}

const (
	packetType    protowire.Number = 1
	packetPayload protowire.Number = 2
)

// MarshalPacket 将 Packet 编码为字节切片
func MarshalPacket(pkt *Packet) ([]byte, error) {
	if pkt == nil {
		return nil, errors.New("空数据包")
	}
	b := make([]byte, 0, len(pkt.Payload)+8)
	b = appendUint(b, packetType, uint64(pkt.Type))
	b = appendBytes(b, packetPayload, pkt.Payload)
	return b, nil
}

// UnmarshalPacket 从字节切片解析 Packet
func UnmarshalPacket(data []byte) (*Packet, error) {
	pkt := &Packet{}
	err := walk(data, func(num protowire.Number, typ protowire.Type, v []byte) error {
		switch num {
		case packetType:
			x, err := wireUint(typ, v)
			pkt.Type = MessageType(x)
			return err
		case packetPayload:
			b, err := wireBytes(typ, v)
			pkt.Payload = b
			return err
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("解析数据包失败: %w", err)
	}
	return pkt, nil
}

// ========== protowire 编解码辅助 ==========

func appendUint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendInt(b []byte, num protowire.Number, v int64) []byte {
	return appendUint(b, num, protowire.EncodeZigZag(v))
}

func appendFixed64(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, v)
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

// appendStrings repeated 字段，空字符串也会写入
func appendStrings(b []byte, num protowire.Number, ss []string) []byte {
	for _, s := range ss {
		b = protowire.AppendTag(b, num, protowire.BytesType)
		b = protowire.AppendString(b, s)
	}
	return b
}

// walk 依次访问每个字段，v 为该字段的原始值（不含 tag）
func walk(b []byte, visit func(num protowire.Number, typ protowire.Type, v []byte) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		m := protowire.ConsumeFieldValue(num, typ, b)
		if m < 0 {
			return protowire.ParseError(m)
		}
		if err := visit(num, typ, b[:m]); err != nil {
			return fmt.Errorf("字段 %d: %w", num, err)
		}
		b = b[m:]
	}
	return nil
}

func wireUint(typ protowire.Type, v []byte) (uint64, error) {
	if typ != protowire.VarintType {
		return 0, errWireType
	}
	x, n := protowire.ConsumeVarint(v)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	return x, nil
}

func wireInt(typ protowire.Type, v []byte) (int64, error) {
	x, err := wireUint(typ, v)
	return protowire.DecodeZigZag(x), err
}

func wireFixed64(typ protowire.Type, v []byte) (uint64, error) {
	if typ != protowire.Fixed64Type {
		return 0, errWireType
	}
	x, n := protowire.ConsumeFixed64(v)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	return x, nil
}

func wireBytes(typ protowire.Type, v []byte) ([]byte, error) {
	if typ != protowire.BytesType {
		return nil, errWireType
	}
	x, n := protowire.ConsumeBytes(v)
	if n < 0 {
		return nil, protowire.ParseError(n)
	}
	return append([]byte(nil), x...), nil
}

func wireString(typ protowire.Type, v []byte) (string, error) {
	if typ != protowire.BytesType {
		return "", errWireType
	}
	x, n := protowire.ConsumeString(v)
	if n < 0 {
		return "", protowire.ParseError(n)
	}
	return x, nil
}
