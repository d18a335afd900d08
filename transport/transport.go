package transport

import (
	"errors"
	"fmt"

	"garagearena/protocol"
)

var (
	// ErrRejected 服务端拒绝握手（协议号、密钥、重复 ID 或满员）
	ErrRejected = errors.New("connection rejected")
	// ErrClosed 连接已关闭
	ErrClosed = errors.New("transport closed")
	// ErrChannelOverflow 可靠通道未确认数据超出预算
	ErrChannelOverflow = errors.New("channel memory budget exceeded")
)

// EventKind 连接生命周期事件类型
type EventKind int

const (
	ClientConnected EventKind = iota
	ClientDisconnected
)

func (k EventKind) String() string {
	if k == ClientConnected {
		return "connected"
	}
	return "disconnected"
}

// ServerEvent 连接/断开事件，每个事件只被消费一次
type ServerEvent struct {
	Kind     EventKind
	ClientID protocol.ClientID
	Reason   string
}

// Server 服务端多通道消息传输；所有方法只在 Tick 线程调用，收发均不阻塞
type Server interface {
	Update() error
	Events() []ServerEvent
	ClientIDs() []protocol.ClientID
	Receive(id protocol.ClientID, channel uint8) ([]byte, bool)
	Send(id protocol.ClientID, channel uint8, payload []byte)
	Broadcast(channel uint8, payload []byte)
	Disconnect(id protocol.ClientID)
	Close() error
}

// Client 客户端多通道消息传输
type Client interface {
	ID() protocol.ClientID
	IsConnected() bool
	Update() error
	Receive(channel uint8) ([]byte, bool)
	Send(channel uint8, payload []byte)
	Close() error
}

// ServerConfig 服务端传输配置
type ServerConfig struct {
	ProtocolID uint64
	PrivateKey [protocol.PrivateKeyBytes]byte
	MaxClients int
	Connection protocol.ConnectionConfig
}

// DefaultServerConfig 默认服务端配置（最多 64 个客户端）
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ProtocolID: protocol.ProtocolID,
		PrivateKey: protocol.PrivateKey,
		MaxClients: 64,
		Connection: protocol.DefaultConnectionConfig(),
	}
}

// ClientConfig 客户端传输配置
type ClientConfig struct {
	ClientID   protocol.ClientID
	ProtocolID uint64
	PrivateKey [protocol.PrivateKeyBytes]byte
	Connection protocol.ConnectionConfig
}

// DefaultClientConfig 默认客户端配置
func DefaultClientConfig(id protocol.ClientID) ClientConfig {
	return ClientConfig{
		ClientID:   id,
		ProtocolID: protocol.ProtocolID,
		PrivateKey: protocol.PrivateKey,
		Connection: protocol.DefaultConnectionConfig(),
	}
}

// ServerInbox 服务端为每个客户端维护的入站队列（客户端通道）
func (c ServerConfig) ServerInbox() *Inbox {
	return NewInbox(c.Connection.ClientChannels)
}

// ClientInbox 客户端入站队列（服务端通道）
func (c ClientConfig) ClientInbox() *Inbox {
	return NewInbox(c.Connection.ServerChannels)
}

// Disconnected 构造断开事件
func Disconnected(id protocol.ClientID, reason error) ServerEvent {
	msg := "disconnected"
	if reason != nil {
		msg = reason.Error()
	}
	return ServerEvent{Kind: ClientDisconnected, ClientID: id, Reason: msg}
}

func unknownChannel(ch uint8) error {
	return fmt.Errorf("unknown channel %d", ch)
}
