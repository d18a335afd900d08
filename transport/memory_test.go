package transport

import (
	"errors"
	"testing"

	"garagearena/protocol"
)

var (
	inputCh    = uint8(protocol.ClientInput)
	entitiesCh = uint8(protocol.ServerNetworkedEntities)
	messagesCh = uint8(protocol.ServerMessages)
)

func TestMemoryRoundTrip(t *testing.T) {
	srv := NewMemoryServer(DefaultServerConfig())
	cli, err := srv.Connect(DefaultClientConfig(5))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if !cli.IsConnected() {
		t.Fatal("client not connected after handshake")
	}
	if events := srv.Events(); len(events) != 1 || events[0].ClientID != 5 {
		t.Fatalf("events = %+v", events)
	}

	cli.Send(inputCh, []byte("up"))
	if b, ok := srv.Receive(5, inputCh); !ok || string(b) != "up" {
		t.Fatalf("server receive = %q, %v", b, ok)
	}

	srv.Broadcast(messagesCh, []byte("hello"))
	if b, ok := cli.Receive(messagesCh); !ok || string(b) != "hello" {
		t.Fatalf("client receive = %q, %v", b, ok)
	}
	if _, ok := cli.Receive(messagesCh); ok {
		t.Fatal("message delivered twice")
	}
}

func TestMemoryRejectsBadHandshake(t *testing.T) {
	srv := NewMemoryServer(DefaultServerConfig())
	cfg := DefaultClientConfig(1)
	cfg.ProtocolID = 99
	if _, err := srv.Connect(cfg); !errors.Is(err, ErrRejected) {
		t.Fatalf("err = %v, want ErrRejected", err)
	}
	if _, err := srv.Connect(DefaultClientConfig(1)); err != nil {
		t.Fatal(err)
	}
	if _, err := srv.Connect(DefaultClientConfig(1)); !errors.Is(err, ErrRejected) {
		t.Fatalf("duplicate id err = %v, want ErrRejected", err)
	}
}

func TestMemoryDisconnects(t *testing.T) {
	srv := NewMemoryServer(DefaultServerConfig())
	a, _ := srv.Connect(DefaultClientConfig(1))
	b, _ := srv.Connect(DefaultClientConfig(2))
	srv.Events()

	_ = a.Close()
	srv.Disconnect(2)

	events := srv.Events()
	if len(events) != 2 {
		t.Fatalf("events = %+v", events)
	}
	for _, e := range events {
		if e.Kind != ClientDisconnected {
			t.Fatalf("event %+v, want disconnected", e)
		}
	}
	if err := a.Update(); err != nil {
		t.Fatalf("self-closed client reports %v", err)
	}
	if err := b.Update(); !errors.Is(err, ErrClosed) {
		t.Fatalf("kicked client err = %v, want ErrClosed", err)
	}
	if len(srv.ClientIDs()) != 0 {
		t.Fatalf("ClientIDs = %v", srv.ClientIDs())
	}
}

func TestMemoryUnreliableLoss(t *testing.T) {
	srv := NewMemoryServer(DefaultServerConfig())
	srv.DropUnreliable = func(protocol.ClientID, uint8) bool { return true }
	cli, _ := srv.Connect(DefaultClientConfig(1))
	srv.Events()

	srv.Send(1, entitiesCh, []byte("snap"))
	srv.Send(1, messagesCh, []byte("create"))
	if _, ok := cli.Receive(entitiesCh); ok {
		t.Fatal("unreliable message survived simulated loss")
	}
	if _, ok := cli.Receive(messagesCh); !ok {
		t.Fatal("reliable message was dropped")
	}
}
