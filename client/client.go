// Package client 客户端复制逻辑：采样输入、上行发送、按服务端消息同步本地世界
package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/yohamta/donburi"

	"garagearena/logger"
	"garagearena/protocol"
	"garagearena/transport"
	"garagearena/world"
)

// Client 客户端上下文：本地世界、映射表、玩家表与待发送指令。
// 除 Stats 与指令队列外所有状态只在 Tick 所在协程访问。
type Client struct {
	net    transport.Client
	source InputSource

	World   donburi.World
	Mapping *NetworkMapping
	Lobby   *Lobby
	Stats   Stats

	input protocol.PlayerInput

	cmdMu    sync.Mutex
	commands []protocol.PlayerCommand
}

// New 创建客户端；source 为空时输入始终为零值
func New(net transport.Client, source InputSource) *Client {
	if source == nil {
		source = InputFunc(func() protocol.PlayerInput { return protocol.PlayerInput{} })
	}
	return &Client{
		net:     net,
		source:  source,
		World:   donburi.NewWorld(),
		Mapping: NewNetworkMapping(),
		Lobby:   NewLobby(),
	}
}

// ID 本客户端的网络身份
func (c *Client) ID() protocol.ClientID { return c.net.ID() }

// Input 最近一次采样的输入
func (c *Client) Input() protocol.PlayerInput { return c.input }

// QueueCommand 指令在下一个已连接的 Tick 中按顺序发送；可从任意协程调用
func (c *Client) QueueCommand(cmd protocol.PlayerCommand) {
	c.cmdMu.Lock()
	c.commands = append(c.commands, cmd)
	c.cmdMu.Unlock()
}

// SampleInput 无论是否连接都刷新本地输入
func (c *Client) SampleInput() {
	c.input = c.source.Pressed()
}

// Tick 单步：采样 → 传输更新 → 已连接时发送并同步。
// 传输错误与解码错误直接返回，调用方应视为致命错误。
func (c *Client) Tick() error {
	c.Stats.ticks.Add(1)
	c.SampleInput()
	if err := c.net.Update(); err != nil {
		return fmt.Errorf("transport: %w", err)
	}
	if !c.net.IsConnected() {
		return nil
	}
	if err := c.sendInput(); err != nil {
		return err
	}
	if err := c.sendCommands(); err != nil {
		return err
	}
	return c.SyncPlayers()
}

// Run 以 hz 频率驱动 Tick，直到 ctx 结束或 Tick 出错
func (c *Client) Run(ctx context.Context, hz int) error {
	ticker := time.NewTicker(time.Second / time.Duration(hz))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := c.Tick(); err != nil {
				return err
			}
		}
	}
}

func (c *Client) sendInput() error {
	b, err := protocol.Encode(c.input)
	if err != nil {
		return err
	}
	c.net.Send(uint8(protocol.ClientInput), b)
	c.Stats.inputsSent.Add(1)
	return nil
}

func (c *Client) sendCommands() error {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()
	for i, cmd := range c.commands {
		b, err := protocol.Encode(cmd)
		if err != nil {
			c.commands = c.commands[i+1:]
			return err
		}
		c.net.Send(uint8(protocol.ClientCommand), b)
		c.Stats.commandsSent.Add(1)
	}
	c.commands = c.commands[:0]
	return nil
}

// SyncPlayers 先处理全部生命周期消息，再按到达顺序应用全部快照
func (c *Client) SyncPlayers() error {
	for {
		b, ok := c.net.Receive(uint8(protocol.ServerMessages))
		if !ok {
			break
		}
		msg, err := protocol.Decode[protocol.ServerMessage](b)
		if err != nil {
			return fmt.Errorf("server message: %w", err)
		}
		if err := c.HandleMessage(msg); err != nil {
			return fmt.Errorf("server message: %w", err)
		}
	}
	for {
		b, ok := c.net.Receive(uint8(protocol.ServerNetworkedEntities))
		if !ok {
			break
		}
		snap, err := protocol.Decode[protocol.NetworkedEntities](b)
		if err != nil {
			return fmt.Errorf("snapshot: %w", err)
		}
		c.ApplySnapshot(&snap)
	}
	return nil
}

// HandleMessage 处理一条生命周期消息；标签与载荷不一致时返回 ErrMalformed，不改动本地状态
func (c *Client) HandleMessage(msg protocol.ServerMessage) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	switch msg.Kind {
	case protocol.MsgPlayerCreate:
		c.playerCreate(*msg.Create)
	case protocol.MsgPlayerRemove:
		c.playerRemove(msg.Remove.ID)
	}
	return nil
}

func (c *Client) playerCreate(m protocol.PlayerCreate) {
	logger.Log.Infof("Player %d connected.", m.ID)
	if _, ok := c.Mapping.Resolve(m.Entity); ok {
		c.Stats.duplicates.Add(1)
		logger.Log.Warnf("player %d: %v", m.ID, fmt.Errorf("%w: %d", ErrAlreadyMapped, m.Entity))
		return
	}
	if old, ok := c.Lobby.Remove(m.ID); ok {
		// 同一客户端 id 重复创建：以新实体为准
		world.Despawn(c.World, old.ClientEntity)
		c.Mapping.Erase(old.ServerEntity)
	}

	body := world.SpawnCar(c.World, world.FromXYZ(m.Translation[0], m.Translation[1], m.Translation[2]))
	entry := c.World.Entry(body)
	donburi.Add(entry, world.PlayerC, &world.PlayerData{ID: m.ID})
	if m.ID == c.ID() {
		entry.AddComponent(world.Controlled)
	}
	if err := c.Mapping.Record(m.Entity, body); err != nil {
		// 上面已检查过，不应发生
		world.Despawn(c.World, body)
		logger.Log.Warnf("player %d: %v", m.ID, err)
		return
	}
	c.Lobby.Insert(m.ID, PlayerInfo{ClientEntity: body, ServerEntity: m.Entity})
	c.Stats.playersCreated.Add(1)
}

func (c *Client) playerRemove(id protocol.ClientID) {
	logger.Log.Infof("Player %d disconnected.", id)
	info, ok := c.Lobby.Remove(id)
	if !ok {
		return
	}
	world.Despawn(c.World, info.ClientEntity)
	c.Mapping.Erase(info.ServerEntity)
	c.Stats.playersRemoved.Add(1)
}

// ApplySnapshot 覆盖已映射实体的位姿；未映射的行跳过
func (c *Client) ApplySnapshot(snap *protocol.NetworkedEntities) {
	c.Stats.snapshots.Add(1)
	for i := 0; i < snap.Len(); i++ {
		row := snap.Row(i)
		body, ok := c.Mapping.Resolve(row.Entity)
		if !ok || !c.World.Valid(body) {
			c.Stats.rowsUnresolved.Add(1)
			logger.Log.Debugf("snapshot row for unknown entity %d", row.Entity)
			continue
		}
		world.TransformC.SetValue(c.World.Entry(body), world.TransformFromWire(row.Translation, row.Rotation))

		wheels := world.WheelEntities(c.World, body)
		if len(wheels) == protocol.WheelCount {
			for w, wheel := range wheels {
				world.TransformC.SetValue(c.World.Entry(wheel),
					world.TransformFromWire(row.WheelTranslations[w], row.WheelRotations[w]))
			}
		}
		c.Stats.rowsApplied.Add(1)
	}
}

// Controlled 本地玩家的车身实体
func (c *Client) Controlled() (donburi.Entity, bool) {
	info, ok := c.Lobby.Get(c.ID())
	if !ok {
		return donburi.Null, false
	}
	return info.ClientEntity, true
}
