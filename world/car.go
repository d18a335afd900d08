package world

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/yohamta/donburi"
	"github.com/yohamta/donburi/filter"

	"garagearena/protocol"
)

// SpawnHeight 出生点离地高度
const SpawnHeight float32 = 1.51

// 车轮安装位置：左前、右前、左后、右后（车头朝 +Z）
var wheelOffsets = [protocol.WheelCount]mgl32.Vec3{
	{-0.85, -0.4, 1.35},
	{0.85, -0.4, 1.35},
	{-0.85, -0.4, -1.25},
	{0.85, -0.4, -1.25},
}

// MaxSteeringAngle 前轮最大偏转（弧度）
const MaxSteeringAngle float32 = 0.55

var (
	carQuery    = donburi.NewQuery(filter.Contains(CarC, TransformC))
	playerQuery = donburi.NewQuery(filter.Contains(PlayerC, CarC, TransformC))
)

// SpawnCar 创建车身及四个车轮，返回车身实体
func SpawnCar(w donburi.World, t Transform) donburi.Entity {
	var car Car
	for i := range car.Wheels {
		wheel := w.Create(TransformC, WheelC)
		WheelC.SetValue(w.Entry(wheel), WheelData{Index: i, Offset: wheelOffsets[i], Front: i < 2})
		car.Wheels[i] = wheel
	}

	body := w.Create(TransformC, CarC)
	entry := w.Entry(body)
	TransformC.SetValue(entry, t)
	CarC.SetValue(entry, car)
	PoseWheels(w, body)
	return body
}

// Despawn 移除车身及其车轮；实体已失效时为空操作
func Despawn(w donburi.World, body donburi.Entity) {
	if !w.Valid(body) {
		return
	}
	entry := w.Entry(body)
	if entry.HasComponent(CarC) {
		for _, wheel := range CarC.Get(entry).Wheels {
			if w.Valid(wheel) {
				w.Remove(wheel)
			}
		}
	}
	w.Remove(body)
}

// WheelEntities 返回车身上仍然有效的车轮实体（按下标顺序）
func WheelEntities(w donburi.World, body donburi.Entity) []donburi.Entity {
	if !w.Valid(body) {
		return nil
	}
	entry := w.Entry(body)
	if !entry.HasComponent(CarC) {
		return nil
	}
	wheels := make([]donburi.Entity, 0, protocol.WheelCount)
	for _, wheel := range CarC.Get(entry).Wheels {
		if wheel != donburi.Null && w.Valid(wheel) {
			wheels = append(wheels, wheel)
		}
	}
	return wheels
}

// PoseWheels 根据车身位姿、转向和滚动角摆放车轮
func PoseWheels(w donburi.World, body donburi.Entity) {
	entry := w.Entry(body)
	chassis := TransformC.GetValue(entry)
	car := CarC.Get(entry)
	roll := mgl32.QuatRotate(car.Spin, mgl32.Vec3{1, 0, 0})
	for _, wheel := range car.Wheels {
		if !w.Valid(wheel) {
			continue
		}
		we := w.Entry(wheel)
		data := WheelC.GetValue(we)
		local := roll
		if data.Front {
			yaw := mgl32.QuatRotate(-car.Steering*MaxSteeringAngle, mgl32.Vec3{0, 1, 0})
			local = yaw.Mul(roll)
		}
		TransformC.SetValue(we, Transform{
			Translation: chassis.Translation.Add(chassis.Rotation.Rotate(data.Offset)),
			Rotation:    chassis.Rotation.Mul(local).Normalize(),
		})
	}
}

// ApplyInput 将方向指令映射为油门/刹车/转向；左右同时按下时右优先
func ApplyInput(car *Car, in protocol.PlayerInput) {
	if in.Up {
		car.Gas = 1
	} else {
		car.Gas = 0
	}
	if in.Down {
		car.Brake = 1
	} else {
		car.Brake = 0
	}
	if in.Left {
		car.Steering = -1
	}
	if in.Right {
		car.Steering = 1
	}
	if !in.Left && !in.Right {
		car.Steering = 0
	}
}

// ApplyPlayerInputs 对所有带输入组件的玩家车辆执行输入映射
func ApplyPlayerInputs(w donburi.World) {
	playerQuery.Each(w, func(entry *donburi.Entry) {
		if !entry.HasComponent(InputC) {
			return
		}
		ApplyInput(CarC.Get(entry), InputC.GetValue(entry))
	})
}

// EachPlayer 遍历所有玩家车辆
func EachPlayer(w donburi.World, fn func(entry *donburi.Entry)) {
	playerQuery.Each(w, fn)
}
