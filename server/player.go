package server

import (
	"slices"

	"github.com/yohamta/donburi"

	"garagearena/protocol"
)

// Lobby 服务端玩家表：客户端 → 车身实体
type Lobby struct {
	players map[protocol.ClientID]donburi.Entity
}

func NewLobby() *Lobby {
	return &Lobby{players: make(map[protocol.ClientID]donburi.Entity)}
}

func (l *Lobby) Insert(id protocol.ClientID, body donburi.Entity) { l.players[id] = body }

func (l *Lobby) Get(id protocol.ClientID) (donburi.Entity, bool) {
	e, ok := l.players[id]
	return e, ok
}

// Remove 移除并返回车身实体
func (l *Lobby) Remove(id protocol.ClientID) (donburi.Entity, bool) {
	e, ok := l.players[id]
	if ok {
		delete(l.players, id)
	}
	return e, ok
}

// IDs 按客户端 ID 升序
func (l *Lobby) IDs() []protocol.ClientID {
	ids := make([]protocol.ClientID, 0, len(l.players))
	for id := range l.players {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (l *Lobby) Len() int { return len(l.players) }

// EntityID 服务端实体在线上的标识（donburi 实体带代数，不会被复用混淆）
func EntityID(e donburi.Entity) protocol.EntityID { return protocol.EntityID(e) }
