package protocol

import "time"

// ProtocolID 协议版本号，握手时不一致的客户端在传输层被拒绝
const ProtocolID uint64 = 7

// PrivateKeyBytes 预共享密钥长度
const PrivateKeyBytes = 32

// PrivateKey 预共享密钥（32 字节）
var PrivateKey = [PrivateKeyBytes]byte([]byte("an example very very secret key."))

// SendType 通道的可靠性策略
type SendType int

const (
	Unreliable SendType = iota
	ReliableOrdered
)

func (t SendType) String() string {
	switch t {
	case Unreliable:
		return "unreliable"
	case ReliableOrdered:
		return "reliable_ordered"
	default:
		return "unknown"
	}
}

// ChannelConfig 单个逻辑通道的配置，启动时确定，运行期不可变更
type ChannelConfig struct {
	ChannelID           uint8
	MaxMemoryUsageBytes int
	SendType            SendType
	ResendTime          time.Duration // 仅 ReliableOrdered 有意义
}

// Reliable 是否为可靠通道
func (c ChannelConfig) Reliable() bool { return c.SendType == ReliableOrdered }

// ClientChannel 客户端 → 服务端
type ClientChannel uint8

const (
	ClientCommand ClientChannel = 0
	ClientInput   ClientChannel = 1
)

func (c ClientChannel) String() string {
	switch c {
	case ClientCommand:
		return "command"
	case ClientInput:
		return "input"
	default:
		return "unknown"
	}
}

// ServerChannel 服务端 → 客户端
type ServerChannel uint8

const (
	ServerNetworkedEntities ServerChannel = 0
	ServerMessages          ServerChannel = 1
)

func (c ServerChannel) String() string {
	switch c {
	case ServerNetworkedEntities:
		return "networked_entities"
	case ServerMessages:
		return "server_messages"
	default:
		return "unknown"
	}
}

// ClientChannelsConfig 输入与指令均为可靠有序、零重发延迟
func ClientChannelsConfig() []ChannelConfig {
	return []ChannelConfig{
		{
			ChannelID:           uint8(ClientInput),
			MaxMemoryUsageBytes: 5 * 1024 * 1024,
			SendType:            ReliableOrdered,
			ResendTime:          0,
		},
		{
			ChannelID:           uint8(ClientCommand),
			MaxMemoryUsageBytes: 5 * 1024 * 1024,
			SendType:            ReliableOrdered,
			ResendTime:          0,
		},
	}
}

// ServerChannelsConfig 快照走不可靠通道，生命周期消息走可靠有序通道（200ms 重发）
func ServerChannelsConfig() []ChannelConfig {
	return []ChannelConfig{
		{
			ChannelID:           uint8(ServerNetworkedEntities),
			MaxMemoryUsageBytes: 10 * 1024 * 1024,
			SendType:            Unreliable,
		},
		{
			ChannelID:           uint8(ServerMessages),
			MaxMemoryUsageBytes: 10 * 1024 * 1024,
			SendType:            ReliableOrdered,
			ResendTime:          200 * time.Millisecond,
		},
	}
}

// ConnectionConfig 连接级配置，客户端与服务端共用同一份
type ConnectionConfig struct {
	AvailableBytesPerTick int
	ClientChannels        []ChannelConfig
	ServerChannels        []ChannelConfig
}

// DefaultConnectionConfig 默认连接配置
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		AvailableBytesPerTick: 1024 * 1024,
		ClientChannels:        ClientChannelsConfig(),
		ServerChannels:        ServerChannelsConfig(),
	}
}

// ClientChannel 按 ID 查找客户端通道配置
func (c ConnectionConfig) ClientChannel(id uint8) (ChannelConfig, bool) {
	return findChannel(c.ClientChannels, id)
}

// ServerChannel 按 ID 查找服务端通道配置
func (c ConnectionConfig) ServerChannel(id uint8) (ChannelConfig, bool) {
	return findChannel(c.ServerChannels, id)
}

func findChannel(list []ChannelConfig, id uint8) (ChannelConfig, bool) {
	for _, ch := range list {
		if ch.ChannelID == id {
			return ch, true
		}
	}
	return ChannelConfig{}, false
}
