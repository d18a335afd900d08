package client

import (
	"errors"
	"fmt"
	"slices"

	"github.com/yohamta/donburi"

	"garagearena/protocol"
)

// ErrAlreadyMapped 服务端实体已经有本地映射
var ErrAlreadyMapped = errors.New("server entity already mapped")

// NetworkMapping 服务端实体 → 本地实体
type NetworkMapping struct {
	m map[protocol.EntityID]donburi.Entity
}

func NewNetworkMapping() *NetworkMapping {
	return &NetworkMapping{m: make(map[protocol.EntityID]donburi.Entity)}
}

// Record 登记映射；已存在时保留原映射并返回 ErrAlreadyMapped
func (n *NetworkMapping) Record(server protocol.EntityID, local donburi.Entity) error {
	if existing, ok := n.m[server]; ok {
		return fmt.Errorf("%w: %d -> %v", ErrAlreadyMapped, server, existing)
	}
	n.m[server] = local
	return nil
}

func (n *NetworkMapping) Resolve(server protocol.EntityID) (donburi.Entity, bool) {
	e, ok := n.m[server]
	return e, ok
}

// Erase 不存在时为空操作
func (n *NetworkMapping) Erase(server protocol.EntityID) {
	delete(n.m, server)
}

func (n *NetworkMapping) Len() int { return len(n.m) }

// ServerIDs 已映射的服务端实体，升序
func (n *NetworkMapping) ServerIDs() []protocol.EntityID {
	ids := make([]protocol.EntityID, 0, len(n.m))
	for id := range n.m {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// PlayerInfo 一个玩家在两端的实体
type PlayerInfo struct {
	ClientEntity donburi.Entity
	ServerEntity protocol.EntityID
}

// Lobby 客户端视角的玩家表
type Lobby struct {
	players map[protocol.ClientID]PlayerInfo
}

func NewLobby() *Lobby {
	return &Lobby{players: make(map[protocol.ClientID]PlayerInfo)}
}

func (l *Lobby) Insert(id protocol.ClientID, info PlayerInfo) { l.players[id] = info }

func (l *Lobby) Get(id protocol.ClientID) (PlayerInfo, bool) {
	info, ok := l.players[id]
	return info, ok
}

// Remove 移除并返回条目
func (l *Lobby) Remove(id protocol.ClientID) (PlayerInfo, bool) {
	info, ok := l.players[id]
	if ok {
		delete(l.players, id)
	}
	return info, ok
}

func (l *Lobby) Len() int { return len(l.players) }
