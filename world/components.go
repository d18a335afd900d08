package world

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/yohamta/donburi"

	"garagearena/protocol"
)

// Transform 实体的位置与朝向
type Transform struct {
	Translation mgl32.Vec3
	Rotation    mgl32.Quat
}

// FromXYZ 构造只有平移的 Transform
func FromXYZ(x, y, z float32) Transform {
	return Transform{Translation: mgl32.Vec3{x, y, z}, Rotation: mgl32.QuatIdent()}
}

// Wire 转换为线上格式
func (t Transform) Wire() (protocol.Vec3, protocol.Quat) {
	return protocol.Vec3(t.Translation), QuatToWire(t.Rotation)
}

// TransformFromWire 由线上格式构造
func TransformFromWire(translation protocol.Vec3, rotation protocol.Quat) Transform {
	return Transform{Translation: mgl32.Vec3(translation), Rotation: QuatFromWire(rotation)}
}

// QuatToWire 分量顺序 x, y, z, w
func QuatToWire(q mgl32.Quat) protocol.Quat {
	return protocol.Quat{q.V[0], q.V[1], q.V[2], q.W}
}

// QuatFromWire 分量顺序 x, y, z, w
func QuatFromWire(q protocol.Quat) mgl32.Quat {
	return mgl32.Quat{W: q[3], V: mgl32.Vec3{q[0], q[1], q[2]}}
}

// Car 车辆控制量与运动学状态；控制量由输入映射写入，物理步进读取
type Car struct {
	Gas      float32 // [0, 1]
	Brake    float32 // [0, 1]
	Steering float32 // [-1, 1]

	Speed   float32 // m/s，沿车头方向
	Heading float32 // 绕 Y 轴弧度
	Spin    float32 // 车轮累计转角

	Wheels [protocol.WheelCount]donburi.Entity
}

// WheelData 车轮相对车身的安装位置
type WheelData struct {
	Index  int
	Offset mgl32.Vec3
	Front  bool
}

// PlayerData 标记由某个客户端控制的车辆
type PlayerData struct {
	ID protocol.ClientID
}

var (
	TransformC = donburi.NewComponentType[Transform](Transform{Rotation: mgl32.QuatIdent()})
	CarC       = donburi.NewComponentType[Car]()
	WheelC     = donburi.NewComponentType[WheelData]()
	PlayerC    = donburi.NewComponentType[PlayerData]()
	InputC     = donburi.NewComponentType[protocol.PlayerInput]()

	// Controlled 客户端本地玩家自己的车
	Controlled = donburi.NewTag("controlled")
)
