//go:build enet

// Package enetudp 基于 ENet（UDP）的传输实现。
// 依赖 cgo 与系统 libenet，因此与其余传输分开成独立的包。
package enetudp

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/codecat/go-enet"

	"garagearena/logger"
	"garagearena/protocol"
	"garagearena/transport"
)

// controlChannel ENet 通道号，承载握手；业务通道为 0 与 1
const controlChannel uint8 = 2

const channelLimit = 3

var initOnce sync.Once

func initialize() {
	initOnce.Do(enet.Initialize)
}

// peerKey ENet 的 Address.String 只给出 IP，拼上端口作为连接索引
func peerKey(p enet.Peer) string {
	a := p.GetAddress()
	return net.JoinHostPort(a.String(), strconv.Itoa(int(a.GetPort())))
}

func splitAddr(addr string) (string, uint16, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	p, err := strconv.ParseUint(port, 10, 16)
	if err != nil {
		return "", 0, fmt.Errorf("port %q: %w", port, err)
	}
	if host == "" {
		host = "0.0.0.0"
	}
	return host, uint16(p), nil
}

func flagsFor(cfg protocol.ChannelConfig) enet.PacketFlags {
	if cfg.Reliable() {
		return enet.PacketFlagReliable
	}
	return enet.PacketFlagUnsequenced
}

// peerConn 服务端的一条 ENet 连接
type peerConn struct {
	peer   enet.Peer
	id     protocol.ClientID
	joined bool
}

// Server ENet 服务端；Update 在 Tick 线程中驱动 host.Service
type Server struct {
	cfg  transport.ServerConfig
	host enet.Host
	reg  *transport.Registry[*peerConn]

	// 握手完成前按地址索引
	byAddr map[string]*peerConn
	closed bool
}

var _ transport.Server = (*Server)(nil)

// Listen 在 addr 上监听 UDP
func Listen(addr string, cfg transport.ServerConfig) (*Server, error) {
	initialize()
	ip, port, err := splitAddr(addr)
	if err != nil {
		return nil, fmt.Errorf("listen address %q: %w", addr, err)
	}
	peers := uint64(cfg.MaxClients)
	if peers == 0 {
		peers = 64
	}
	// 多留一个槽位用于向满员时的新连接回复拒绝
	host, err := enet.NewHost(enet.NewAddress(ip, port), peers+1, channelLimit, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("bind %s: %w", addr, err)
	}
	return &Server{
		cfg:    cfg,
		host:   host,
		reg:    transport.NewRegistry[*peerConn](cfg),
		byAddr: make(map[string]*peerConn),
	}, nil
}

// Update 处理全部待处理的网络事件，不阻塞
func (s *Server) Update() error {
	if s.closed {
		return transport.ErrClosed
	}
	for {
		ev := s.host.Service(0)
		switch ev.GetType() {
		case enet.EventNone:
			return nil
		case enet.EventConnect:
			s.byAddr[peerKey(ev.GetPeer())] = &peerConn{peer: ev.GetPeer()}
		case enet.EventDisconnect:
			s.onDisconnect(ev.GetPeer())
		case enet.EventReceive:
			pkt := ev.GetPacket()
			data := append([]byte(nil), pkt.GetData()...)
			pkt.Destroy()
			s.onReceive(ev.GetPeer(), ev.GetChannelID(), data)
		}
	}
}

func (s *Server) onDisconnect(peer enet.Peer) {
	addr := peerKey(peer)
	pc, ok := s.byAddr[addr]
	if !ok {
		return
	}
	delete(s.byAddr, addr)
	if pc.joined {
		s.reg.RemoveIf(pc.id, func(c *peerConn) bool { return c == pc }, errors.New("peer disconnected"))
	}
}

func (s *Server) onReceive(peer enet.Peer, channel uint8, data []byte) {
	addr := peerKey(peer)
	pc, ok := s.byAddr[addr]
	if !ok {
		return
	}
	if channel == controlChannel {
		s.handshake(pc, addr, data)
		return
	}
	if !pc.joined {
		return
	}
	if err := s.reg.Push(pc.id, channel, data); err != nil {
		logger.Log.Warnf("client %d: %v", pc.id, err)
		s.kick(pc, err)
	}
}

func (s *Server) handshake(pc *peerConn, addr string, data []byte) {
	if pc.joined {
		return
	}
	hello, err := transport.DecodeControl(data)
	if err == nil {
		err = s.cfg.VerifyHello(hello)
	}
	if err == nil {
		pc.id = hello.ClientID
		err = s.reg.Add(hello.ClientID, pc)
		pc.joined = err == nil
	}
	if err != nil {
		logger.Log.Warnf("handshake from %s refused: %v", addr, err)
		if !errors.Is(err, transport.ErrRejected) {
			err = fmt.Errorf("%w: %v", transport.ErrRejected, err)
		}
		_ = pc.peer.SendBytes(transport.EncodeControl(transport.Reject(err)), controlChannel, enet.PacketFlagReliable)
		pc.peer.DisconnectLater(0)
		delete(s.byAddr, addr)
		return
	}
	_ = pc.peer.SendBytes(transport.EncodeControl(transport.Accept()), controlChannel, enet.PacketFlagReliable)
	logger.Log.Infof("client %d connected from %s", hello.ClientID, addr)
}

func (s *Server) kick(pc *peerConn, reason error) {
	s.reg.RemoveIf(pc.id, func(c *peerConn) bool { return c == pc }, reason)
	delete(s.byAddr, peerKey(pc.peer))
	pc.peer.DisconnectLater(0)
}

func (s *Server) Events() []transport.ServerEvent { return s.reg.Events() }
func (s *Server) ClientIDs() []protocol.ClientID { return s.reg.ClientIDs() }

func (s *Server) Receive(id protocol.ClientID, channel uint8) ([]byte, bool) {
	return s.reg.Pop(id, channel)
}

func (s *Server) Send(id protocol.ClientID, channel uint8, payload []byte) {
	pc, ok := s.reg.Conn(id)
	if !ok {
		return
	}
	cfg, ok := s.cfg.Connection.ServerChannel(channel)
	if !ok {
		return
	}
	if err := pc.peer.SendBytes(payload, channel, flagsFor(cfg)); err != nil {
		logger.Log.Warnf("send to client %d: %v", id, err)
		s.kick(pc, err)
	}
}

func (s *Server) Broadcast(channel uint8, payload []byte) {
	for _, id := range s.reg.ClientIDs() {
		s.Send(id, channel, payload)
	}
}

func (s *Server) Disconnect(id protocol.ClientID) {
	if pc, ok := s.reg.Remove(id, errors.New("disconnected by server")); ok {
		delete(s.byAddr, peerKey(pc.peer))
		pc.peer.DisconnectLater(0)
	}
}

func (s *Server) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	for _, pc := range s.byAddr {
		pc.peer.DisconnectNow(0)
	}
	s.host.Destroy()
	return nil
}

// Client ENet 客户端
type Client struct {
	cfg       transport.ClientConfig
	host      enet.Host
	peer      enet.Peer
	inbox     *transport.Inbox
	connected bool
	err       error
	closed    bool
}

var _ transport.Client = (*Client)(nil)

// Dial 发起连接；握手在后续 Update 中完成
func Dial(addr string, cfg transport.ClientConfig) (*Client, error) {
	initialize()
	ip, port, err := splitAddr(addr)
	if err != nil {
		return nil, fmt.Errorf("server address %q: %w", addr, err)
	}
	host, err := enet.NewHost(nil, 1, channelLimit, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("create client host: %w", err)
	}
	peer, err := host.Connect(enet.NewAddress(ip, port), channelLimit, 0)
	if err != nil {
		host.Destroy()
		return nil, fmt.Errorf("connect %s: %w", addr, err)
	}
	return &Client{cfg: cfg, host: host, peer: peer, inbox: cfg.ClientInbox()}, nil
}

func (c *Client) ID() protocol.ClientID { return c.cfg.ClientID }

func (c *Client) IsConnected() bool { return c.connected && c.err == nil }

// Update 处理网络事件；被拒绝或断开后返回错误
func (c *Client) Update() error {
	if c.err != nil {
		return c.err
	}
	if c.closed {
		return transport.ErrClosed
	}
	for c.err == nil {
		ev := c.host.Service(0)
		switch ev.GetType() {
		case enet.EventNone:
			return nil
		case enet.EventConnect:
			hello := transport.EncodeControl(transport.NewHello(c.cfg, time.Now()))
			if err := c.peer.SendBytes(hello, controlChannel, enet.PacketFlagReliable); err != nil {
				c.err = fmt.Errorf("send hello: %w", err)
			}
		case enet.EventDisconnect:
			c.connected = false
			if c.err == nil {
				c.err = fmt.Errorf("%w: disconnected by server", transport.ErrClosed)
			}
		case enet.EventReceive:
			pkt := ev.GetPacket()
			data := append([]byte(nil), pkt.GetData()...)
			pkt.Destroy()
			c.onReceive(ev.GetChannelID(), data)
		}
	}
	return c.err
}

func (c *Client) onReceive(channel uint8, data []byte) {
	if channel != controlChannel {
		if err := c.inbox.Push(channel, data); err != nil {
			c.err = err
		}
		return
	}
	ctl, err := transport.DecodeControl(data)
	if err != nil {
		c.err = err
		return
	}
	switch ctl.Kind {
	case transport.ControlAccept:
		c.connected = true
	case transport.ControlReject:
		c.err = fmt.Errorf("%w: %s", transport.ErrRejected, ctl.Reason)
	}
}

func (c *Client) Receive(channel uint8) ([]byte, bool) { return c.inbox.Pop(channel) }

func (c *Client) Send(channel uint8, payload []byte) {
	if !c.IsConnected() {
		return
	}
	cfg, ok := c.cfg.Connection.ClientChannel(channel)
	if !ok {
		return
	}
	if err := c.peer.SendBytes(payload, channel, flagsFor(cfg)); err != nil {
		c.err = err
	}
}

func (c *Client) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.connected = false
	c.peer.DisconnectNow(0)
	c.host.Destroy()
	return nil
}
