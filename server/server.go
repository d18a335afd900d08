// Package server 权威服务端：世界在内存中维护，单线程 Tick 推进并复制给客户端
package server

import (
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/yohamta/donburi"

	"garagearena/logger"
	"garagearena/protocol"
	"garagearena/transport"
	"garagearena/world"
)

// Options 服务端可选项；零值字段使用默认
type Options struct {
	TickRate int // 默认 60
	Settings Settings
	Physics  world.Physics
	Commands CommandHandler
	Rand     *rand.Rand
}

// Server 服务端上下文。世界、玩家表只在 Tick 协程访问；
// 管理接口通过 settings 通道与原子量与之交互。
type Server struct {
	net transport.Server

	World   donburi.World
	Lobby   *Lobby
	Metrics *Metrics

	physics  world.Physics
	commands CommandHandler
	rng      *rand.Rand
	dt       time.Duration

	settings  Settings
	published atomic.Pointer[Settings]
	updates   chan SettingsPatch
	tickSeq   atomic.Uint64
}

// New 创建服务端
func New(net transport.Server, opts Options) *Server {
	if opts.TickRate <= 0 {
		opts.TickRate = 60
	}
	if opts.Settings == (Settings{}) {
		opts.Settings = DefaultSettings()
	}
	if opts.Physics == nil {
		opts.Physics = world.DefaultKinematic()
	}
	if opts.Commands == nil {
		opts.Commands = LogCommands{}
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15))
	}
	s := &Server{
		net:      net,
		World:    donburi.NewWorld(),
		Lobby:    NewLobby(),
		Metrics:  &Metrics{},
		physics:  opts.Physics,
		commands: opts.Commands,
		rng:      opts.Rand,
		dt:       time.Second / time.Duration(opts.TickRate),
		settings: opts.Settings,
		updates:  make(chan SettingsPatch, 16),
	}
	s.publish()
	return s
}

// TickInterval 每个 Tick 的固定步长
func (s *Server) TickInterval() time.Duration { return s.dt }

// handleEvents 处理连接/断开
func (s *Server) handleEvents() {
	for _, ev := range s.net.Events() {
		switch ev.Kind {
		case transport.ClientConnected:
			s.onConnect(ev.ClientID)
		case transport.ClientDisconnected:
			s.onDisconnect(ev.ClientID, ev.Reason)
		}
	}
	s.Metrics.SetClients(s.Lobby.Len())
}

func (s *Server) onConnect(id protocol.ClientID) {
	logger.Log.Infof("Player %d connected.", id)

	// 先把存量玩家发给新玩家
	for _, other := range s.Lobby.IDs() {
		body, _ := s.Lobby.Get(other)
		if !s.World.Valid(body) {
			continue
		}
		t := world.TransformC.GetValue(s.World.Entry(body))
		translation, _ := t.Wire()
		s.net.Send(id, uint8(protocol.ServerMessages),
			protocol.MustEncode(protocol.NewPlayerCreate(EntityID(body), other, translation)))
		s.Metrics.IncLifecycle(1)
	}

	extent := s.settings.SpawnExtent
	spawn := world.FromXYZ((s.rng.Float32()-0.5)*extent, world.SpawnHeight, (s.rng.Float32()-0.5)*extent)
	body := world.SpawnCar(s.World, spawn)
	entry := s.World.Entry(body)
	donburi.Add(entry, world.PlayerC, &world.PlayerData{ID: id})
	donburi.Add(entry, world.InputC, &protocol.PlayerInput{})
	s.Lobby.Insert(id, body)

	// 只发给已入场的玩家（含新玩家自己）；同一批次里尚未处理的连接会在自己的存量列表中收到
	translation, _ := spawn.Wire()
	msg := protocol.MustEncode(protocol.NewPlayerCreate(EntityID(body), id, translation))
	for _, to := range s.Lobby.IDs() {
		s.net.Send(to, uint8(protocol.ServerMessages), msg)
	}
	s.Metrics.IncLifecycle(s.Lobby.Len())
}

func (s *Server) onDisconnect(id protocol.ClientID, reason string) {
	logger.Log.Infof("Player %d disconnected: %s", id, reason)
	if body, ok := s.Lobby.Remove(id); ok {
		world.Despawn(s.World, body)
	}
	s.net.Broadcast(uint8(protocol.ServerMessages), protocol.MustEncode(protocol.NewPlayerRemove(id)))
	s.Metrics.IncLifecycle(len(s.net.ClientIDs()))
}

// Snapshot 两遍收集：先遍历玩家车身，再按车轮实体查位姿
func (s *Server) Snapshot() protocol.NetworkedEntities {
	type pending struct {
		row    protocol.EntityRow
		wheels [protocol.WheelCount]donburi.Entity
		body   world.Transform
	}
	var rows []pending
	world.EachPlayer(s.World, func(entry *donburi.Entry) {
		t := world.TransformC.GetValue(entry)
		translation, rotation := t.Wire()
		rows = append(rows, pending{
			row:    protocol.EntityRow{Entity: EntityID(entry.Entity()), Translation: translation, Rotation: rotation},
			wheels: world.CarC.Get(entry).Wheels,
			body:   t,
		})
	})

	var snap protocol.NetworkedEntities
	for _, p := range rows {
		for i, wheel := range p.wheels {
			t := p.body
			if s.World.Valid(wheel) {
				t = world.TransformC.GetValue(s.World.Entry(wheel))
			} else {
				logger.Log.Debugf("entity %d is missing wheel %d", p.row.Entity, i)
			}
			p.row.WheelTranslations[i], p.row.WheelRotations[i] = t.Wire()
		}
		snap.Append(p.row)
	}
	return snap
}

func (s *Server) broadcastSnapshot() {
	snap := s.Snapshot()
	s.net.Broadcast(uint8(protocol.ServerNetworkedEntities), protocol.MustEncode(snap))
	s.Metrics.IncSnapshots()
}
