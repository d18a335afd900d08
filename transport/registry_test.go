package transport

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"garagearena/protocol"
)

func TestRegistryHidesPeersUntilConnectedEventDrained(t *testing.T) {
	r := NewRegistry[string](DefaultServerConfig())
	if err := r.Add(7, "a"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if ids := r.ClientIDs(); len(ids) != 0 {
		t.Fatalf("ClientIDs before events = %v, want none", ids)
	}
	if _, ok := r.Conn(7); ok {
		t.Fatal("conn visible before its connected event was drained")
	}
	if err := r.Push(7, uint8(protocol.ClientInput), []byte{1}); err != nil {
		t.Fatalf("push: %v", err)
	}
	if _, ok := r.Pop(7, uint8(protocol.ClientInput)); ok {
		t.Fatal("pop succeeded before connected event was drained")
	}

	events := r.Events()
	if len(events) != 1 || events[0].Kind != ClientConnected || events[0].ClientID != 7 {
		t.Fatalf("events = %+v", events)
	}
	if ids := r.ClientIDs(); !reflect.DeepEqual(ids, []protocol.ClientID{7}) {
		t.Fatalf("ClientIDs = %v", ids)
	}
	if b, ok := r.Pop(7, uint8(protocol.ClientInput)); !ok || b[0] != 1 {
		t.Fatalf("pop = %v, %v", b, ok)
	}
	if again := r.Events(); len(again) != 0 {
		t.Fatalf("events delivered twice: %+v", again)
	}
}

func TestRegistryClientIDsSorted(t *testing.T) {
	r := NewRegistry[int](DefaultServerConfig())
	for _, id := range []protocol.ClientID{30, 10, 20} {
		if err := r.Add(id, int(id)); err != nil {
			t.Fatal(err)
		}
	}
	r.Events()
	if ids := r.ClientIDs(); !reflect.DeepEqual(ids, []protocol.ClientID{10, 20, 30}) {
		t.Fatalf("ClientIDs = %v", ids)
	}
}

func TestRegistryAdmission(t *testing.T) {
	cfg := DefaultServerConfig()
	cfg.MaxClients = 2
	r := NewRegistry[int](cfg)
	if err := r.Add(1, 1); err != nil {
		t.Fatal(err)
	}
	if err := r.Add(1, 1); !errors.Is(err, ErrRejected) {
		t.Fatalf("duplicate add err = %v, want ErrRejected", err)
	}
	if err := r.Add(2, 2); err != nil {
		t.Fatal(err)
	}
	if err := r.Add(3, 3); !errors.Is(err, ErrRejected) {
		t.Fatalf("full add err = %v, want ErrRejected", err)
	}
}

func TestRegistryRemoveProducesOneEvent(t *testing.T) {
	r := NewRegistry[int](DefaultServerConfig())
	_ = r.Add(1, 100)
	r.Events()

	if r.RemoveIf(1, func(c int) bool { return c == 200 }, nil) {
		t.Fatal("RemoveIf removed a different connection")
	}
	if conn, ok := r.Remove(1, errors.New("bye")); !ok || conn != 100 {
		t.Fatalf("remove = %v, %v", conn, ok)
	}
	if _, ok := r.Remove(1, nil); ok {
		t.Fatal("second remove succeeded")
	}
	events := r.Events()
	if len(events) != 1 || events[0].Kind != ClientDisconnected || events[0].Reason != "bye" {
		t.Fatalf("events = %+v", events)
	}
	if err := r.Push(1, 0, []byte{1}); !errors.Is(err, ErrClosed) {
		t.Fatalf("push after remove err = %v", err)
	}
}

func TestInboxBudgets(t *testing.T) {
	cfgs := []protocol.ChannelConfig{
		{ChannelID: 0, MaxMemoryUsageBytes: 4, SendType: protocol.Unreliable},
		{ChannelID: 1, MaxMemoryUsageBytes: 4, SendType: protocol.ReliableOrdered},
	}
	in := NewInbox(cfgs)

	for i := byte(1); i <= 3; i++ {
		if err := in.Push(0, []byte{i, i}); err != nil {
			t.Fatalf("unreliable push: %v", err)
		}
	}
	if n := in.Pending(0); n != 2 {
		t.Fatalf("unreliable pending = %d, want 2", n)
	}
	if b, _ := in.Pop(0); b[0] != 2 {
		t.Fatalf("oldest unreliable message survived: %v", b)
	}

	if err := in.Push(1, []byte{1, 1, 1}); err != nil {
		t.Fatal(err)
	}
	if err := in.Push(1, []byte{2, 2}); !errors.Is(err, ErrChannelOverflow) {
		t.Fatalf("reliable overflow err = %v", err)
	}
	if err := in.Push(9, []byte{1}); err == nil {
		t.Fatal("push on unknown channel succeeded")
	}
}

func TestHelloVerification(t *testing.T) {
	srv := DefaultServerConfig()
	cli := DefaultClientConfig(42)
	now := time.UnixMilli(1_700_000_000_000)

	b := EncodeControl(NewHello(cli, now))
	hello, err := DecodeControl(b)
	if err != nil {
		t.Fatal(err)
	}
	if err := srv.VerifyHello(hello); err != nil {
		t.Fatalf("valid hello rejected: %v", err)
	}

	wrongProtocol := cli
	wrongProtocol.ProtocolID++
	if err := srv.VerifyHello(NewHello(wrongProtocol, now)); !errors.Is(err, ErrRejected) {
		t.Fatalf("wrong protocol err = %v", err)
	}

	wrongKey := cli
	wrongKey.PrivateKey[0] ^= 0xFF
	if err := srv.VerifyHello(NewHello(wrongKey, now)); !errors.Is(err, ErrRejected) {
		t.Fatalf("wrong key err = %v", err)
	}

	forged := NewHello(cli, now)
	forged.ClientID = 43
	if err := srv.VerifyHello(forged); !errors.Is(err, ErrRejected) {
		t.Fatalf("forged client id err = %v", err)
	}

	if _, err := DecodeControl([]byte{0xc1}); !errors.Is(err, protocol.ErrMalformed) {
		t.Fatalf("garbage control err = %v", err)
	}
}
