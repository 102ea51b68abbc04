package server

import "p2pg/pkg/protocol"

// Session 房间和对局看到的一条连接
type Session interface {
	ID() string
	Send(pkt *protocol.Packet) error
	Close()
	CloseWithoutNotify()
}
