package transport

import (
	"errors"
	"sync"
	"time"

	"garagearena/protocol"
)

// MemoryServer 进程内回环传输，用于测试与单进程试跑。
// 与网络实现遵守同样的握手、可见性与通道预算规则。
type MemoryServer struct {
	cfg ServerConfig
	reg *Registry[*MemoryClient]

	// DropUnreliable 返回 true 时丢弃发往该客户端的不可靠消息，用于模拟丢包
	DropUnreliable func(id protocol.ClientID, channel uint8) bool

	mu     sync.Mutex
	closed bool
}

// NewMemoryServer 创建回环服务端
func NewMemoryServer(cfg ServerConfig) *MemoryServer {
	return &MemoryServer{cfg: cfg, reg: NewRegistry[*MemoryClient](cfg)}
}

// Connect 执行握手并返回已连接的客户端
func (s *MemoryServer) Connect(cfg ClientConfig) (*MemoryClient, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	if err := s.cfg.VerifyHello(NewHello(cfg, time.Now())); err != nil {
		return nil, err
	}
	c := &MemoryClient{cfg: cfg, server: s, inbox: cfg.ClientInbox(), connected: true}
	if err := s.reg.Add(cfg.ClientID, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *MemoryServer) Update() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

func (s *MemoryServer) Events() []ServerEvent { return s.reg.Events() }
func (s *MemoryServer) ClientIDs() []protocol.ClientID { return s.reg.ClientIDs() }

func (s *MemoryServer) Receive(id protocol.ClientID, channel uint8) ([]byte, bool) {
	return s.reg.Pop(id, channel)
}

func (s *MemoryServer) Send(id protocol.ClientID, channel uint8, payload []byte) {
	c, ok := s.reg.Conn(id)
	if !ok {
		return
	}
	if cfg, ok := s.cfg.Connection.ServerChannel(channel); ok && !cfg.Reliable() && s.DropUnreliable != nil && s.DropUnreliable(id, channel) {
		return
	}
	if err := c.deliver(channel, clone(payload)); err != nil {
		s.drop(id, c, err)
	}
}

func (s *MemoryServer) Broadcast(channel uint8, payload []byte) {
	for _, id := range s.reg.ClientIDs() {
		s.Send(id, channel, payload)
	}
}

func (s *MemoryServer) Disconnect(id protocol.ClientID) {
	if c, ok := s.reg.Remove(id, errors.New("disconnected by server")); ok {
		c.fail(ErrClosed)
	}
}

func (s *MemoryServer) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	for _, c := range s.reg.All() {
		s.drop(c.cfg.ClientID, c, ErrClosed)
	}
	return nil
}

func (s *MemoryServer) drop(id protocol.ClientID, c *MemoryClient, reason error) {
	s.reg.RemoveIf(id, func(m *MemoryClient) bool { return m == c }, reason)
	c.fail(reason)
}

// MemoryClient 回环客户端
type MemoryClient struct {
	cfg    ClientConfig
	server *MemoryServer

	mu        sync.Mutex
	inbox     *Inbox
	connected bool
	err       error
}

func (c *MemoryClient) deliver(channel uint8, b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return ErrClosed
	}
	return c.inbox.Push(channel, b)
}

func (c *MemoryClient) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil && c.connected {
		c.err = err
	}
	c.connected = false
}

func (c *MemoryClient) ID() protocol.ClientID { return c.cfg.ClientID }

func (c *MemoryClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *MemoryClient) Update() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *MemoryClient) Receive(channel uint8) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inbox.Pop(channel)
}

func (c *MemoryClient) Send(channel uint8, payload []byte) {
	if !c.IsConnected() {
		return
	}
	if err := c.server.reg.Push(c.cfg.ClientID, channel, clone(payload)); err != nil {
		c.server.drop(c.cfg.ClientID, c, err)
	}
}

// Close 主动断开；服务端随后收到 Disconnected 事件
func (c *MemoryClient) Close() error {
	c.mu.Lock()
	was := c.connected
	c.connected = false
	c.mu.Unlock()
	if was {
		c.server.reg.RemoveIf(c.cfg.ClientID, func(m *MemoryClient) bool { return m == c }, errors.New("client closed"))
	}
	return nil
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
