package main

import (
	"strings"
	"testing"

	"garagearena/client"
	"garagearena/protocol"
	"garagearena/transport"
)

func TestApplyLineKeys(t *testing.T) {
	keys := &client.KeyState{}
	c := client.New(nil, keys)

	steps := []struct {
		line string
		want protocol.PlayerInput
	}{
		{"up", protocol.PlayerInput{Up: true}},
		{"LEFT on", protocol.PlayerInput{Up: true, Left: true}},
		{"up off", protocol.PlayerInput{Left: true}},
		{"  ", protocol.PlayerInput{Left: true}},
		{"stop", protocol.PlayerInput{}},
	}
	for _, s := range steps {
		if err := applyLine(s.line, keys, c); err != nil {
			t.Fatalf("%q: %v", s.line, err)
		}
		if got := keys.Pressed(); got != s.want {
			t.Fatalf("after %q: %+v, want %+v", s.line, got, s.want)
		}
	}

	for _, bad := range []string{"jump", "up maybe", "attack 1 2", "attack a b c"} {
		if err := applyLine(bad, keys, c); err == nil {
			t.Fatalf("%q accepted", bad)
		}
	}
}

func TestReadCommandsQueuesAttack(t *testing.T) {
	srv := transport.NewMemoryServer(transport.DefaultServerConfig())
	net, err := srv.Connect(transport.DefaultClientConfig(3))
	if err != nil {
		t.Fatal(err)
	}
	srv.Events()

	keys := &client.KeyState{}
	c := client.New(net, keys)
	readCommands(strings.NewReader("right\nattack 1 2.5 -3\nattack 0 0 0\n"), keys, c)
	if err := c.Tick(); err != nil {
		t.Fatal(err)
	}

	var got []protocol.PlayerCommand
	for {
		b, ok := srv.Receive(3, uint8(protocol.ClientCommand))
		if !ok {
			break
		}
		cmd, err := protocol.Decode[protocol.PlayerCommand](b)
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, cmd)
	}
	if len(got) != 2 || got[0].CastAt != (protocol.Vec3{1, 2.5, -3}) || got[1].CastAt != (protocol.Vec3{}) {
		t.Fatalf("commands = %+v", got)
	}

	b, ok := srv.Receive(3, uint8(protocol.ClientInput))
	if !ok {
		t.Fatal("no input sent")
	}
	in, err := protocol.Decode[protocol.PlayerInput](b)
	if err != nil {
		t.Fatal(err)
	}
	if in != (protocol.PlayerInput{Right: true}) {
		t.Fatalf("input = %+v", in)
	}
}
