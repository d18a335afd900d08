package transport

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"garagearena/protocol"
)

func startWS(t *testing.T, cfg ServerConfig) (*WSServer, string) {
	t.Helper()
	srv := NewWSServer(cfg)
	hs := httptest.NewServer(srv)
	t.Cleanup(func() {
		_ = srv.Close()
		hs.Close()
	})
	return srv, "ws" + strings.TrimPrefix(hs.URL, "http")
}

func dial(t *testing.T, url string, cfg ClientConfig) *WSClient {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := DialWS(ctx, url, cfg)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// eventually 轮询直到条件满足或超时
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestWSHandshakeAndExchange(t *testing.T) {
	srv, url := startWS(t, DefaultServerConfig())
	cli := dial(t, url, DefaultClientConfig(11))

	eventually(t, "client accepted", cli.IsConnected)

	var events []ServerEvent
	eventually(t, "connected event", func() bool {
		events = append(events, srv.Events()...)
		return len(events) > 0
	})
	if events[0].Kind != ClientConnected || events[0].ClientID != 11 {
		t.Fatalf("event = %+v", events[0])
	}

	cli.Send(inputCh, []byte{1, 2, 3})
	var got []byte
	eventually(t, "server receive", func() bool {
		b, ok := srv.Receive(11, inputCh)
		got = b
		return ok
	})
	if string(got) != string([]byte{1, 2, 3}) {
		t.Fatalf("server got %v", got)
	}

	srv.Send(11, messagesCh, []byte("reliable"))
	eventually(t, "client receive", func() bool {
		b, ok := cli.Receive(messagesCh)
		got = b
		return ok
	})
	if string(got) != "reliable" {
		t.Fatalf("client got %q", got)
	}
}

func TestWSRejectsWrongKey(t *testing.T) {
	srv, url := startWS(t, DefaultServerConfig())
	cfg := DefaultClientConfig(3)
	cfg.PrivateKey[5] ^= 1
	cli := dial(t, url, cfg)

	eventually(t, "rejection", func() bool { return cli.Update() != nil })
	if err := cli.Update(); !errors.Is(err, ErrRejected) {
		t.Fatalf("update err = %v, want ErrRejected", err)
	}
	if cli.IsConnected() {
		t.Fatal("rejected client reports connected")
	}
	if events := srv.Events(); len(events) != 0 {
		t.Fatalf("rejected client produced events %+v", events)
	}
}

func TestWSClientCloseProducesDisconnect(t *testing.T) {
	srv, url := startWS(t, DefaultServerConfig())
	cli := dial(t, url, DefaultClientConfig(8))
	eventually(t, "client accepted", cli.IsConnected)

	_ = cli.Close()
	var kinds []EventKind
	eventually(t, "disconnect event", func() bool {
		for _, e := range srv.Events() {
			kinds = append(kinds, e.Kind)
		}
		return len(kinds) == 2
	})
	if kinds[0] != ClientConnected || kinds[1] != ClientDisconnected {
		t.Fatalf("event kinds = %v", kinds)
	}
	if ids := srv.ClientIDs(); len(ids) != 0 {
		t.Fatalf("ClientIDs = %v", ids)
	}
}

func TestSplitFrame(t *testing.T) {
	if _, _, err := splitFrame(nil); !errors.Is(err, protocol.ErrMalformed) {
		t.Fatalf("empty frame err = %v", err)
	}
	ch, payload, err := splitFrame(frame(2, []byte("x")))
	if err != nil || ch != 2 || string(payload) != "x" {
		t.Fatalf("split = %d, %q, %v", ch, payload, err)
	}
}
