package server

import (
	"fmt"

	"p2pg/pkg/protocol"
)

// DecodePacket 解析服务器收到的数据包
// 只接受客户端会发送的消息，其余类型返回 EventUnknown
func DecodePacket(pkt *protocol.Packet) (*ServerEvent, error) {
	msg, err := protocol.Decode(pkt)
	if err != nil {
		return nil, fmt.Errorf("解析包失败: %w", err)
	}

	switch m := msg.(type) {
	case *protocol.Join:
		return &ServerEvent{
			Kind: EventJoin,
			Join: &JoinEvent{Room: m.Room, Peers: int(m.Peers)},
		}, nil

	case *protocol.Bind:
		return &ServerEvent{
			Kind: EventBind,
			Bind: &BindEvent{Ticket: m.Ticket},
		}, nil

	case *protocol.Input:
		return &ServerEvent{
			Kind:  EventInput,
			Input: &InputEvent{Frame: m.Frame, Input: m.Input},
		}, nil

	case *protocol.Checksum:
		return &ServerEvent{
			Kind:     EventChecksum,
			Checksum: &ChecksumEvent{Frame: m.Frame, Sum: m.Sum},
		}, nil

	case *protocol.Ping:
		return &ServerEvent{
			Kind: EventPing,
			Ping: &PingEvent{ClientTime: m.ClientTime},
		}, nil

	case *protocol.Pong:
		return &ServerEvent{
			Kind: EventPong,
			Pong: &PongEvent{ClientTime: m.ClientTime, ServerTime: m.ServerTime},
		}, nil

	default:
		return &ServerEvent{Kind: EventUnknown}, nil
	}
}

// encodeRelay 转发前填上发送方 id
func encodeRelay(from string, ev *ServerEvent) (*protocol.Packet, error) {
	switch ev.Kind {
	case EventInput:
		return protocol.NewInputPacket(from, ev.Input.Frame, ev.Input.Input), nil
	case EventChecksum:
		return protocol.NewChecksumPacket(from, ev.Checksum.Frame, ev.Checksum.Sum), nil
	}
	return nil, fmt.Errorf("%s 不能转发", ev.Kind)
}
