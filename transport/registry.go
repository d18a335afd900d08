package transport

import (
	"slices"
	"sync"

	"garagearena/protocol"
)

// Peer 服务端的一条已握手连接
type Peer[C any] struct {
	ID      protocol.ClientID
	Conn    C
	inbox   *Inbox
	visible bool
}

// Registry 服务端连接表，供各传输实现复用。
// 握手通过的连接在其 Connected 事件被 Events 取走之后才出现在 ClientIDs 与广播中，
// 这样新玩家一定先收到存量玩家，再收到其他人的广播。
type Registry[C any] struct {
	cfg ServerConfig

	mu     sync.Mutex
	peers  map[protocol.ClientID]*Peer[C]
	events []ServerEvent
}

// NewRegistry 创建连接表
func NewRegistry[C any](cfg ServerConfig) *Registry[C] {
	return &Registry[C]{cfg: cfg, peers: make(map[protocol.ClientID]*Peer[C])}
}

// Add 准入检查通过后登记连接并产生 Connected 事件
func (r *Registry[C]) Add(id protocol.ClientID, conn C) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, exists := r.peers[id]
	if err := r.cfg.Admit(id, len(r.peers), exists); err != nil {
		return err
	}
	r.peers[id] = &Peer[C]{ID: id, Conn: conn, inbox: r.cfg.ServerInbox()}
	r.events = append(r.events, ServerEvent{Kind: ClientConnected, ClientID: id})
	return nil
}

// Remove 注销连接并产生 Disconnected 事件；不存在时返回 false 且不产生事件
func (r *Registry[C]) Remove(id protocol.ClientID, reason error) (C, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(id, nil, reason)
}

// RemoveIf 仅当登记的仍是同一条连接时注销（重连后旧连接的迟到关闭不影响新连接）
func (r *Registry[C]) RemoveIf(id protocol.ClientID, match func(C) bool, reason error) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, removed := r.removeLocked(id, match, reason)
	return removed
}

func (r *Registry[C]) removeLocked(id protocol.ClientID, match func(C) bool, reason error) (C, bool) {
	p, ok := r.peers[id]
	if !ok || (match != nil && !match(p.Conn)) {
		var zero C
		return zero, false
	}
	delete(r.peers, id)
	r.events = append(r.events, Disconnected(id, reason))
	return p.Conn, true
}

// Events 取走全部待处理事件，并使新连接对广播可见
func (r *Registry[C]) Events() []ServerEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	events := r.events
	r.events = nil
	for _, e := range events {
		if e.Kind != ClientConnected {
			continue
		}
		if p, ok := r.peers[e.ClientID]; ok {
			p.visible = true
		}
	}
	return events
}

// ClientIDs 可见连接，按 ID 升序
func (r *Registry[C]) ClientIDs() []protocol.ClientID {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]protocol.ClientID, 0, len(r.peers))
	for id, p := range r.peers {
		if p.visible {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// Conn 查找可见连接
func (r *Registry[C]) Conn(id protocol.ClientID) (C, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[id]
	if !ok || !p.visible {
		var zero C
		return zero, false
	}
	return p.Conn, true
}

// All 所有已登记连接（含尚未可见的），关闭时使用
func (r *Registry[C]) All() []C {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]C, 0, len(r.peers))
	for _, p := range r.peers {
		out = append(out, p.Conn)
	}
	return out
}

// Push 入站消息入队
func (r *Registry[C]) Push(id protocol.ClientID, channel uint8, b []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[id]
	if !ok {
		return ErrClosed
	}
	return p.inbox.Push(channel, b)
}

// Pop 取一条入站消息；连接不可见或无消息返回 false
func (r *Registry[C]) Pop(id protocol.ClientID, channel uint8) ([]byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[id]
	if !ok || !p.visible {
		return nil, false
	}
	return p.inbox.Pop(channel)
}
