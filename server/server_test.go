package server

import (
	"errors"
	"math/rand/v2"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"garagearena/client"
	"garagearena/logger"
	"garagearena/protocol"
	"garagearena/transport"
	"garagearena/world"
)

func newTestServer(t *testing.T, opts Options) (*Server, *transport.MemoryServer) {
	t.Helper()
	mem := transport.NewMemoryServer(transport.DefaultServerConfig())
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewPCG(1, 2))
	}
	return New(mem, opts), mem
}

func connect(t *testing.T, mem *transport.MemoryServer, id protocol.ClientID) *transport.MemoryClient {
	t.Helper()
	c, err := mem.Connect(transport.DefaultClientConfig(id))
	if err != nil {
		t.Fatalf("connect %d: %v", id, err)
	}
	return c
}

func tick(t *testing.T, s *Server) {
	t.Helper()
	if err := s.Tick(); err != nil {
		t.Fatalf("tick: %v", err)
	}
}

// messages 取出客户端收到的全部生命周期消息
func messages(t *testing.T, c *transport.MemoryClient) []protocol.ServerMessage {
	t.Helper()
	var out []protocol.ServerMessage
	for {
		b, ok := c.Receive(uint8(protocol.ServerMessages))
		if !ok {
			return out
		}
		m, err := protocol.Decode[protocol.ServerMessage](b)
		if err != nil {
			t.Fatal(err)
		}
		out = append(out, m)
	}
}

func createdIDs(msgs []protocol.ServerMessage) []protocol.ClientID {
	var ids []protocol.ClientID
	for _, m := range msgs {
		if m.Kind == protocol.MsgPlayerCreate {
			ids = append(ids, m.Create.ID)
		}
	}
	return ids
}

func sendInput(t *testing.T, c *transport.MemoryClient, in protocol.PlayerInput) {
	t.Helper()
	c.Send(uint8(protocol.ClientInput), protocol.MustEncode(in))
}

func equalIDs(a, b []protocol.ClientID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestNewcomerReceivesBacklogBeforeOwnCreate(t *testing.T) {
	s, mem := newTestServer(t, Options{})
	a := connect(t, mem, 1)
	tick(t, s)
	if got := createdIDs(messages(t, a)); !equalIDs(got, []protocol.ClientID{1}) {
		t.Fatalf("first player creates = %v", got)
	}

	c := connect(t, mem, 3)
	tick(t, s)
	b := connect(t, mem, 2)
	tick(t, s)

	if got := createdIDs(messages(t, b)); !equalIDs(got, []protocol.ClientID{1, 3, 2}) {
		t.Fatalf("newcomer creates = %v, want backlog in id order then self", got)
	}
	if got := createdIDs(messages(t, a)); !equalIDs(got, []protocol.ClientID{3, 2}) {
		t.Fatalf("existing player creates = %v", got)
	}
	if got := createdIDs(messages(t, c)); !equalIDs(got, []protocol.ClientID{1, 3, 2}) {
		t.Fatalf("third player creates = %v", got)
	}
}

func TestSameTickJoinsSeeEachOtherOnce(t *testing.T) {
	s, mem := newTestServer(t, Options{})
	a := connect(t, mem, 1)
	b := connect(t, mem, 2)
	tick(t, s)

	for _, c := range []*transport.MemoryClient{a, b} {
		got := createdIDs(messages(t, c))
		if len(got) != 2 {
			t.Fatalf("client %d creates = %v, want each player exactly once", c.ID(), got)
		}
		if got[0] == got[1] {
			t.Fatalf("client %d got duplicate create %v", c.ID(), got)
		}
	}
}

func TestSpawnInsideRegion(t *testing.T) {
	s, mem := newTestServer(t, Options{Settings: Settings{SpawnExtent: 10, DecodePolicy: DecodeFailureFatal}})
	for id := protocol.ClientID(1); id <= 20; id++ {
		connect(t, mem, id)
	}
	if err := s.Tick(); err != nil {
		t.Fatal(err)
	}
	for _, id := range s.Lobby.IDs() {
		body, _ := s.Lobby.Get(id)
		wheels := world.WheelEntities(s.World, body)
		if len(wheels) != protocol.WheelCount {
			t.Fatalf("player %d has %d wheels", id, len(wheels))
		}
	}
	// 静止的车不会移动，用新连接收到的存量消息校验出生位置
	late := connect(t, mem, 99)
	tick(t, s)
	for _, m := range messages(t, late) {
		if m.Kind != protocol.MsgPlayerCreate || m.Create.ID == 99 {
			continue
		}
		p := m.Create.Translation
		if p[0] < -5.5 || p[0] > 5.5 || p[2] < -5.5 || p[2] > 5.5 {
			t.Fatalf("player %d spawned outside region: %v", m.Create.ID, p)
		}
	}
}

func TestDisconnectDespawnsAndBroadcastsRemove(t *testing.T) {
	s, mem := newTestServer(t, Options{})
	a := connect(t, mem, 1)
	b := connect(t, mem, 2)
	tick(t, s)
	messages(t, a)
	body, _ := s.Lobby.Get(2)
	wheels := world.WheelEntities(s.World, body)

	_ = b.Close()
	tick(t, s)

	msgs := messages(t, a)
	if len(msgs) != 1 || msgs[0].Kind != protocol.MsgPlayerRemove || msgs[0].Remove.ID != 2 {
		t.Fatalf("messages = %+v", msgs)
	}
	if _, ok := s.Lobby.Get(2); ok {
		t.Fatal("lobby entry survived disconnect")
	}
	if s.World.Valid(body) {
		t.Fatal("car survived disconnect")
	}
	for _, w := range wheels {
		if s.World.Valid(w) {
			t.Fatal("wheel survived disconnect")
		}
	}
	if snap := s.Snapshot(); snap.Len() != 1 {
		t.Fatalf("snapshot rows = %d", snap.Len())
	}
}

func TestLastInputWins(t *testing.T) {
	s, mem := newTestServer(t, Options{})
	c := connect(t, mem, 1)
	tick(t, s)

	sendInput(t, c, protocol.PlayerInput{Up: true})
	sendInput(t, c, protocol.PlayerInput{Left: true})
	sendInput(t, c, protocol.PlayerInput{Down: true, Right: true})
	tick(t, s)

	body, _ := s.Lobby.Get(1)
	entry := s.World.Entry(body)
	if in := world.InputC.GetValue(entry); in != (protocol.PlayerInput{Down: true, Right: true}) {
		t.Fatalf("stored input = %+v", in)
	}
	car := world.CarC.Get(entry)
	if car.Gas != 0 || car.Brake != 1 || car.Steering != 1 {
		t.Fatalf("car controls = gas %v brake %v steering %v", car.Gas, car.Brake, car.Steering)
	}
	m := s.Metrics.Snapshot()
	if m["inputs_applied"] != int64(1) || m["inputs_superseded"] != int64(2) {
		t.Fatalf("metrics = %v", m)
	}

	// 没有新输入时保持上一次的输入
	tick(t, s)
	if in := world.InputC.GetValue(s.World.Entry(body)); !in.Down {
		t.Fatalf("input reset without a new message: %+v", in)
	}
}

func TestCommandsAppliedOnceInOrder(t *testing.T) {
	var got []protocol.Vec3
	handler := CommandFunc(func(_ *Server, id protocol.ClientID, cmd protocol.PlayerCommand) {
		got = append(got, cmd.CastAt)
	})
	s, mem := newTestServer(t, Options{Commands: handler})
	c := connect(t, mem, 1)
	tick(t, s)

	for i := 1; i <= 3; i++ {
		c.Send(uint8(protocol.ClientCommand), protocol.MustEncode(protocol.BasicAttack(protocol.Vec3{float32(i)})))
	}
	tick(t, s)
	tick(t, s)
	if len(got) != 3 || got[0][0] != 1 || got[2][0] != 3 {
		t.Fatalf("commands = %v", got)
	}
}

func TestDecodeFailureFatalByDefault(t *testing.T) {
	s, mem := newTestServer(t, Options{})
	c := connect(t, mem, 1)
	tick(t, s)
	c.Send(uint8(protocol.ClientInput), []byte{0xc1})
	err := s.Tick()
	if !errors.Is(err, protocol.ErrMalformed) {
		t.Fatalf("tick err = %v, want ErrMalformed", err)
	}
}

func TestDecodeFailureDisconnectsOffender(t *testing.T) {
	s, mem := newTestServer(t, Options{Settings: Settings{SpawnExtent: 40, DecodePolicy: DecodeFailureDisconnect}})
	bad := connect(t, mem, 1)
	good := connect(t, mem, 2)
	tick(t, s)
	messages(t, good)

	bad.Send(uint8(protocol.ClientCommand), []byte{0x93, 0x01})
	sendInput(t, good, protocol.PlayerInput{Up: true})
	tick(t, s)
	if bad.IsConnected() {
		t.Fatal("offending client still connected")
	}
	body, _ := s.Lobby.Get(2)
	if !world.InputC.GetValue(s.World.Entry(body)).Up {
		t.Fatal("well-behaved client's input was not applied")
	}

	tick(t, s)
	msgs := messages(t, good)
	if len(msgs) != 1 || msgs[0].Kind != protocol.MsgPlayerRemove || msgs[0].Remove.ID != 1 {
		t.Fatalf("messages = %+v", msgs)
	}
	if m := s.Metrics.Snapshot(); m["decode_errors"] != int64(1) || m["disconnects"] != int64(1) {
		t.Fatalf("metrics = %v", m)
	}
}

func TestSnapshotRowsMatchWorld(t *testing.T) {
	s, mem := newTestServer(t, Options{})
	connect(t, mem, 1)
	connect(t, mem, 2)
	tick(t, s)

	snap := s.Snapshot()
	if err := snap.Validate(); err != nil {
		t.Fatal(err)
	}
	if snap.Len() != 2 {
		t.Fatalf("rows = %d", snap.Len())
	}
	for i := 0; i < snap.Len(); i++ {
		row := snap.Row(i)
		found := false
		for _, id := range s.Lobby.IDs() {
			e, _ := s.Lobby.Get(id)
			if EntityID(e) != row.Entity {
				continue
			}
			found = true
			wheels := world.WheelEntities(s.World, e)
			for w, wheel := range wheels {
				want, _ := world.TransformC.GetValue(s.World.Entry(wheel)).Wire()
				if row.WheelTranslations[w] != want {
					t.Fatalf("row %d wheel %d = %v, want %v", i, w, row.WheelTranslations[w], want)
				}
			}
		}
		if !found {
			t.Fatalf("row %d entity %d not in lobby", i, row.Entity)
		}
	}
}

func TestSnapshotBroadcastEveryTick(t *testing.T) {
	s, mem := newTestServer(t, Options{})
	c := connect(t, mem, 1)
	for i := 0; i < 3; i++ {
		tick(t, s)
	}
	n := 0
	for {
		if _, ok := c.Receive(uint8(protocol.ServerNetworkedEntities)); !ok {
			break
		}
		n++
	}
	if n != 3 {
		t.Fatalf("snapshots received = %d, want 3", n)
	}
}

func TestClientsConvergeOnServerState(t *testing.T) {
	s, mem := newTestServer(t, Options{})
	var clients []*client.Client
	for _, id := range []protocol.ClientID{10, 20, 30} {
		clients = append(clients, client.New(connect(t, mem, id), nil))
		tick(t, s)
	}
	keys := &client.KeyState{}
	keys.Set(protocol.PlayerInput{Up: true})
	driver := client.New(connect(t, mem, 40), keys)
	clients = append(clients, driver)

	for i := 0; i < 30; i++ {
		tick(t, s)
		for _, c := range clients {
			if err := c.Tick(); err != nil {
				t.Fatalf("client %d tick: %v", c.ID(), err)
			}
		}
	}

	for _, c := range clients {
		if c.Mapping.Len() != s.Lobby.Len() {
			t.Fatalf("client %d maps %d entities, server has %d players", c.ID(), c.Mapping.Len(), s.Lobby.Len())
		}
		for _, id := range s.Lobby.IDs() {
			body, _ := s.Lobby.Get(id)
			local, ok := c.Mapping.Resolve(EntityID(body))
			if !ok {
				t.Fatalf("client %d cannot resolve player %d", c.ID(), id)
			}
			want, _ := world.TransformC.GetValue(s.World.Entry(body)).Wire()
			got, _ := world.TransformC.GetValue(c.World.Entry(local)).Wire()
			if got != want {
				t.Fatalf("client %d sees player %d at %v, server %v", c.ID(), id, got, want)
			}
		}
	}

	body, _ := s.Lobby.Get(40)
	if world.CarC.Get(s.World.Entry(body)).Speed <= 0 {
		t.Fatal("driving client's car did not move")
	}
}

func TestConnectIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	prev := logger.Log
	logger.Log = zap.New(core).Sugar()
	t.Cleanup(func() { logger.Log = prev })

	s, mem := newTestServer(t, Options{})
	c := connect(t, mem, 5)
	tick(t, s)
	_ = c.Close()
	tick(t, s)

	if n := logs.FilterMessage("Player 5 connected.").Len(); n != 1 {
		t.Fatalf("connect log lines = %d", n)
	}
	if n := logs.FilterMessageSnippet("Player 5 disconnected").Len(); n != 1 {
		t.Fatalf("disconnect log lines = %d", n)
	}
}
