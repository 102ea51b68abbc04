package protocol

import (
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/gorilla/websocket"
	"google.golang.org/protobuf/encoding/protowire"

	"p2pg/pkg/input"
)

func roundTrip(t *testing.T, pkt *Packet) Message {
	t.Helper()
	data, err := MarshalPacket(pkt)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	back, err := UnmarshalPacket(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	m, err := Decode(back)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return m
}

func TestReadyKeepsRosterOrder(t *testing.T) {
	want := &Ready{
		MatchID:        "m-1",
		PeerID:         "b",
		Peers:          []string{"b", "a"},
		Ticket:         "header.claims.sig",
		DesyncInterval: 60,
		Seed:           8008135,
		InputDelay:     4,
	}
	got := roundTrip(t, NewPacket(want))
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ready changed on the wire: %s", spew.Sdump(got))
	}
}

func TestInputCarriesThreeBytes(t *testing.T) {
	in := input.PlayerInput{Direction: 200, Buttons: input.ButtonMove | input.ButtonFire, Aim: 7}
	got := roundTrip(t, NewInputPacket("peer", 1234, in)).(*Input)
	if got.Peer != "peer" || got.Frame != 1234 || got.Input != in {
		t.Fatalf("unexpected input: %s", spew.Sdump(got))
	}

	// 零值输入也必须带上 3 字节
	zero := roundTrip(t, NewInputPacket("", 0, input.PlayerInput{})).(*Input)
	if !zero.Input.IsZero() || zero.Frame != 0 {
		t.Fatalf("unexpected zero input: %s", spew.Sdump(zero))
	}
}

func TestInputRejectsBadLength(t *testing.T) {
	var payload []byte
	payload = protowire.AppendTag(payload, 2, protowire.VarintType)
	payload = protowire.AppendVarint(payload, protowire.EncodeZigZag(5))
	payload = protowire.AppendTag(payload, 3, protowire.BytesType)
	payload = protowire.AppendBytes(payload, []byte{1, 2})

	_, err := ParseInput(&Packet{Type: MessageInput, Payload: payload})
	var decodeErr *input.InputDecodeError
	if !errors.As(err, &decodeErr) || decodeErr.Len != 2 {
		t.Fatalf("expected InputDecodeError, got %v", err)
	}
}

func TestChecksumNegativeFrame(t *testing.T) {
	got := roundTrip(t, NewChecksumPacket("a", -1, 0xdeadbeefcafef00d)).(*Checksum)
	if got.Frame != -1 || got.Sum != 0xdeadbeefcafef00d {
		t.Fatalf("unexpected checksum: %s", spew.Sdump(got))
	}
}

func TestUnknownFieldsSkipped(t *testing.T) {
	payload := (&Bind{Ticket: "t"}).AppendWire(nil)
	payload = protowire.AppendTag(payload, 99, protowire.VarintType)
	payload = protowire.AppendVarint(payload, 42)

	got, err := ParseBind(&Packet{Type: MessageBind, Payload: payload})
	if err != nil || got.Ticket != "t" {
		t.Fatalf("unexpected bind: %v %s", err, spew.Sdump(got))
	}
}

func TestParseWrongType(t *testing.T) {
	if _, err := ParseJoin(NewBindPacket("x")); !errors.Is(err, ErrUnexpectedType) {
		t.Fatalf("expected ErrUnexpectedType, got %v", err)
	}
	if _, err := Decode(&Packet{Type: MessageType(200)}); !errors.Is(err, ErrUnexpectedType) {
		t.Fatalf("expected ErrUnexpectedType, got %v", err)
	}
	if _, err := UnmarshalPacket([]byte{0xff}); err == nil {
		t.Fatalf("truncated packet should fail")
	}
}

func TestErrorMessage(t *testing.T) {
	got := roundTrip(t, NewErrorPacket(ErrCodeBadTicket, "票据 %s 已使用", "abc")).(*Error)
	if got.Code != ErrCodeBadTicket || !strings.Contains(got.Error(), "abc") {
		t.Fatalf("unexpected error message: %s", spew.Sdump(got))
	}
}

func TestStreamFraming(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	client, server := NewStreamConn(a), NewStreamConn(b)
	sent := []*Packet{
		NewJoinPacket("lobby", 2),
		NewInputPacket("p", 7, input.PlayerInput{Buttons: input.ButtonFire, Aim: 64}),
		NewPingPacket(99),
	}

	errCh := make(chan error, 1)
	go func() {
		// 空帧应被跳过
		if _, err := a.Write([]byte{0, 0, 0, 0}); err != nil {
			errCh <- err
			return
		}
		for _, pkt := range sent {
			if err := client.WritePacket(pkt); err != nil {
				errCh <- err
				return
			}
		}
		errCh <- nil
	}()

	for i, want := range sent {
		got, err := server.ReadPacket()
		if err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		if got.Type != want.Type || string(got.Payload) != string(want.Payload) {
			t.Fatalf("packet %d mismatch: %s", i, spew.Sdump(got))
		}
	}
	if err := <-errCh; err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestStreamRejectsOversize(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	go func() {
		_, _ = a.Write([]byte{0, 0, 0x10, 0x01})
	}()
	if _, err := NewStreamConn(b).ReadPacket(); !errors.Is(err, ErrPacketTooLarge) {
		t.Fatalf("expected ErrPacketTooLarge, got %v", err)
	}
}

func TestWebsocketFraming(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn := NewWebsocketConn(ws)
		defer conn.Close()
		pkt, err := conn.ReadPacket()
		if err != nil {
			return
		}
		join, err := ParseJoin(pkt)
		if err != nil {
			return
		}
		_ = conn.WritePacket(NewWaitingPacket(join.Room, 1, int(join.Peers)))
	}))
	defer srv.Close()

	addr := "ws" + strings.TrimPrefix(srv.URL, "http") + "/rendezvous"
	conn, err := Dial(t.Context(), addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WritePacket(NewJoinPacket("lobby", 2)); err != nil {
		t.Fatalf("write: %v", err)
	}
	pkt, err := conn.ReadPacket()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	m, err := Decode(pkt)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := &Waiting{Room: "lobby", Joined: 1, Needed: 2}
	if !reflect.DeepEqual(m, want) {
		t.Fatalf("unexpected reply: %s", spew.Sdump(m))
	}
}

func TestParseAddress(t *testing.T) {
	cases := []struct {
		addr string
		ok   bool
	}{
		{"tcp://127.0.0.1:9998", true},
		{"kcp://localhost:9998", true},
		{"ws://example.com:8080/rendezvous", true},
		{"udp://127.0.0.1:9998", false},
		{"tcp://127.0.0.1", false},
		{"127.0.0.1:9998", false},
		{"", false},
	}
	for _, c := range cases {
		_, err := ParseAddress(c.addr)
		if c.ok && err != nil {
			t.Fatalf("%q: %v", c.addr, err)
		}
		if !c.ok && !errors.Is(err, ErrBadAddress) {
			t.Fatalf("%q: expected ErrBadAddress, got %v", c.addr, err)
		}
	}
}
