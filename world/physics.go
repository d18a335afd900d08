package world

import (
	"math"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/yohamta/donburi"
)

// Physics 外部刚体物理引擎的边界：每 Tick 读取控制量并推进所有车辆的位姿
type Physics interface {
	Step(w donburi.World, dt time.Duration)
}

// ArenaHalfSize 场地半边长（1000×1000 地面，四周有墙）
const ArenaHalfSize float32 = 500

// Kinematic 确定性的自行车模型，作为刚体物理引擎的替身
type Kinematic struct {
	Accel       float32 // 油门加速度 m/s²
	BrakeDecel  float32 // 刹车减速度 m/s²
	Drag        float32 // 线性阻尼系数
	MaxSpeed    float32
	MaxReverse  float32
	TurnRate    float32 // 满速满舵时的角速度 rad/s
	WheelRadius float32
	WallMargin  float32 // 车身离墙的最小距离
}

// DefaultKinematic 默认参数
func DefaultKinematic() *Kinematic {
	return &Kinematic{
		Accel:       12,
		BrakeDecel:  20,
		Drag:        0.4,
		MaxSpeed:    40,
		MaxReverse:  8,
		TurnRate:    2.2,
		WheelRadius: 0.4,
		WallMargin:  2.5,
	}
}

// Step 推进一帧：先收集车辆再逐个积分，最后摆放车轮
func (k *Kinematic) Step(w donburi.World, dt time.Duration) {
	sec := float32(dt.Seconds())
	if sec <= 0 {
		return
	}
	var bodies []donburi.Entity
	carQuery.Each(w, func(entry *donburi.Entry) {
		bodies = append(bodies, entry.Entity())
	})
	for _, body := range bodies {
		entry := w.Entry(body)
		k.integrate(CarC.Get(entry), TransformC.Get(entry), sec)
		PoseWheels(w, body)
	}
}

func (k *Kinematic) integrate(car *Car, t *Transform, sec float32) {
	accel := car.Gas*k.Accel - k.Drag*car.Speed
	if car.Brake > 0 {
		if car.Speed > 0 {
			accel -= car.Brake * k.BrakeDecel
		} else {
			// 停稳后刹车即倒车
			accel -= car.Brake * k.Accel * 0.5
		}
	}
	car.Speed = clamp(car.Speed+accel*sec, -k.MaxReverse, k.MaxSpeed)
	if car.Gas == 0 && car.Brake == 0 && abs(car.Speed) < 0.05 {
		car.Speed = 0
	}

	speedFactor := car.Speed / k.MaxSpeed
	car.Heading -= car.Steering * k.TurnRate * speedFactor * sec
	t.Rotation = mgl32.QuatRotate(car.Heading, mgl32.Vec3{0, 1, 0})

	forward := t.Rotation.Rotate(mgl32.Vec3{0, 0, 1})
	next := t.Translation.Add(forward.Mul(car.Speed * sec))
	limit := ArenaHalfSize - k.WallMargin
	if next[0] < -limit || next[0] > limit || next[2] < -limit || next[2] > limit {
		next[0] = clamp(next[0], -limit, limit)
		next[2] = clamp(next[2], -limit, limit)
		car.Speed = 0
	}
	t.Translation = next

	car.Spin = float32(math.Mod(float64(car.Spin+car.Speed*sec/k.WheelRadius), 2*math.Pi))
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func abs(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
