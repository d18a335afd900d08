package protocol

import "fmt"

// ClientID 传输层分配/声明的客户端网络标识
type ClientID uint64

// EntityID 服务端实体标识（不透明句柄，客户端只能通过映射表解释）
type EntityID uint64

// Vec3 位置
type Vec3 = [3]float32

// Quat 朝向，分量顺序 x, y, z, w
type Quat = [4]float32

// WheelCount 每辆车的车轮数，快照行固定携带 4 个车轮
const WheelCount = 4

// PlayerInput 四个方向指令，客户端每 Tick 整体重发
type PlayerInput struct {
	_msgpack struct{} `msgpack:",as_array"`

	Up    bool
	Down  bool
	Left  bool
	Right bool
}

// CommandKind 玩家离散指令类型
type CommandKind uint8

const (
	CommandBasicAttack CommandKind = 1
)

func (k CommandKind) String() string {
	switch k {
	case CommandBasicAttack:
		return "basic_attack"
	default:
		return fmt.Sprintf("command(%d)", uint8(k))
	}
}

// PlayerCommand 可靠有序送达，服务端按到达顺序每条处理一次
type PlayerCommand struct {
	_msgpack struct{} `msgpack:",as_array"`

	Kind   CommandKind
	CastAt Vec3 // BasicAttack 的目标点
}

// BasicAttack 构造一次定点攻击
func BasicAttack(castAt Vec3) PlayerCommand {
	return PlayerCommand{Kind: CommandBasicAttack, CastAt: castAt}
}

// MessageKind ServerMessage 的标签
type MessageKind uint8

const (
	MsgPlayerCreate MessageKind = 1
	MsgPlayerRemove MessageKind = 2
)

func (k MessageKind) String() string {
	switch k {
	case MsgPlayerCreate:
		return "player_create"
	case MsgPlayerRemove:
		return "player_remove"
	default:
		return fmt.Sprintf("message(%d)", uint8(k))
	}
}

// PlayerCreate 宣告一个权威实体（已有玩家补发给新人，或新玩家广播给所有人）
type PlayerCreate struct {
	_msgpack struct{} `msgpack:",as_array"`

	Entity      EntityID
	ID          ClientID
	Translation Vec3
}

// PlayerRemove 宣告玩家离开，接收方释放与该 ID 相关的全部本地资源
type PlayerRemove struct {
	_msgpack struct{} `msgpack:",as_array"`

	ID ClientID
}

// ServerMessage 生命周期消息：Kind 决定哪一个字段有效，另一个必须为空
type ServerMessage struct {
	_msgpack struct{} `msgpack:",as_array"`

	Kind   MessageKind
	Create *PlayerCreate
	Remove *PlayerRemove
}

// NewPlayerCreate 构造 PlayerCreate 消息
func NewPlayerCreate(entity EntityID, id ClientID, translation Vec3) ServerMessage {
	return ServerMessage{
		Kind:   MsgPlayerCreate,
		Create: &PlayerCreate{Entity: entity, ID: id, Translation: translation},
	}
}

// NewPlayerRemove 构造 PlayerRemove 消息
func NewPlayerRemove(id ClientID) ServerMessage {
	return ServerMessage{Kind: MsgPlayerRemove, Remove: &PlayerRemove{ID: id}}
}

// Validate 检查标签与载荷一致
func (m ServerMessage) Validate() error {
	switch m.Kind {
	case MsgPlayerCreate:
		if m.Create == nil || m.Remove != nil {
			return fmt.Errorf("%w: %s must carry exactly the create body", ErrMalformed, m.Kind)
		}
	case MsgPlayerRemove:
		if m.Remove == nil || m.Create != nil {
			return fmt.Errorf("%w: %s must carry exactly the remove body", ErrMalformed, m.Kind)
		}
	default:
		return fmt.Errorf("%w: unknown server message kind %d", ErrMalformed, uint8(m.Kind))
	}
	return nil
}

// NetworkedEntities 全量快照（非增量），按列存储，各列下标对齐
type NetworkedEntities struct {
	_msgpack struct{} `msgpack:",as_array"`

	Entities           []EntityID
	Translations       []Vec3
	Rotations          []Quat
	WheelsTranslations [][WheelCount]Vec3
	WheelsRotations    [][WheelCount]Quat
}

// Len 行数
func (n *NetworkedEntities) Len() int { return len(n.Entities) }

// Append 追加一行
func (n *NetworkedEntities) Append(row EntityRow) {
	n.Entities = append(n.Entities, row.Entity)
	n.Translations = append(n.Translations, row.Translation)
	n.Rotations = append(n.Rotations, row.Rotation)
	n.WheelsTranslations = append(n.WheelsTranslations, row.WheelTranslations)
	n.WheelsRotations = append(n.WheelsRotations, row.WheelRotations)
}

// Row 取第 i 行，调用方保证 i 在范围内且快照已通过 Validate
func (n *NetworkedEntities) Row(i int) EntityRow {
	return EntityRow{
		Entity:            n.Entities[i],
		Translation:       n.Translations[i],
		Rotation:          n.Rotations[i],
		WheelTranslations: n.WheelsTranslations[i],
		WheelRotations:    n.WheelsRotations[i],
	}
}

// Validate 各列等长且实体 ID 不重复
func (n *NetworkedEntities) Validate() error {
	rows := len(n.Entities)
	if len(n.Translations) != rows || len(n.Rotations) != rows ||
		len(n.WheelsTranslations) != rows || len(n.WheelsRotations) != rows {
		return fmt.Errorf("%w: snapshot columns misaligned (entities=%d translations=%d rotations=%d wheel_translations=%d wheel_rotations=%d)",
			ErrMalformed, rows, len(n.Translations), len(n.Rotations), len(n.WheelsTranslations), len(n.WheelsRotations))
	}
	seen := make(map[EntityID]struct{}, rows)
	for _, id := range n.Entities {
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: entity %d appears twice in snapshot", ErrMalformed, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// EntityRow 快照中的一行
type EntityRow struct {
	Entity            EntityID
	Translation       Vec3
	Rotation          Quat
	WheelTranslations [WheelCount]Vec3
	WheelRotations    [WheelCount]Quat
}
