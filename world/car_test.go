package world

import (
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/yohamta/donburi"

	"garagearena/protocol"
)

func TestSpawnCarCreatesFourWheels(t *testing.T) {
	w := donburi.NewWorld()
	body := SpawnCar(w, FromXYZ(3, SpawnHeight, -4))

	wheels := WheelEntities(w, body)
	if len(wheels) != protocol.WheelCount {
		t.Fatalf("wheels = %d, want %d", len(wheels), protocol.WheelCount)
	}
	if w.Len() != 1+protocol.WheelCount {
		t.Fatalf("world has %d entities, want %d", w.Len(), 1+protocol.WheelCount)
	}
	for i, wheel := range wheels {
		data := WheelC.GetValue(w.Entry(wheel))
		if data.Index != i {
			t.Fatalf("wheel %d has index %d", i, data.Index)
		}
		pos := TransformC.GetValue(w.Entry(wheel)).Translation
		want := mgl32.Vec3{3, SpawnHeight, -4}.Add(wheelOffsets[i])
		if !pos.ApproxEqual(want) {
			t.Fatalf("wheel %d at %v, want %v", i, pos, want)
		}
	}
}

func TestDespawnRemovesBodyAndWheels(t *testing.T) {
	w := donburi.NewWorld()
	keep := SpawnCar(w, FromXYZ(0, SpawnHeight, 0))
	gone := SpawnCar(w, FromXYZ(10, SpawnHeight, 10))
	goneWheels := WheelEntities(w, gone)

	Despawn(w, gone)

	if w.Valid(gone) {
		t.Fatalf("body still valid after despawn")
	}
	for _, wheel := range goneWheels {
		if w.Valid(wheel) {
			t.Fatalf("wheel %v still valid after despawn", wheel)
		}
	}
	if got := len(WheelEntities(w, keep)); got != protocol.WheelCount {
		t.Fatalf("other car lost wheels: %d", got)
	}

	// 重复移除为空操作
	Despawn(w, gone)
	if w.Len() != 1+protocol.WheelCount {
		t.Fatalf("world has %d entities after double despawn", w.Len())
	}
}

func TestApplyInput(t *testing.T) {
	cases := []struct {
		name  string
		in    protocol.PlayerInput
		gas   float32
		brake float32
		steer float32
	}{
		{"idle", protocol.PlayerInput{}, 0, 0, 0},
		{"throttle", protocol.PlayerInput{Up: true}, 1, 0, 0},
		{"brake", protocol.PlayerInput{Down: true}, 0, 1, 0},
		{"left", protocol.PlayerInput{Left: true}, 0, 0, -1},
		{"right", protocol.PlayerInput{Right: true}, 0, 0, 1},
		{"both sides right wins", protocol.PlayerInput{Left: true, Right: true}, 0, 0, 1},
		{"everything", protocol.PlayerInput{Up: true, Down: true, Left: true, Right: true}, 1, 1, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			car := Car{Gas: 0.3, Brake: 0.3, Steering: 0.3}
			ApplyInput(&car, tc.in)
			if car.Gas != tc.gas || car.Brake != tc.brake || car.Steering != tc.steer {
				t.Fatalf("controls = (%v, %v, %v), want (%v, %v, %v)",
					car.Gas, car.Brake, car.Steering, tc.gas, tc.brake, tc.steer)
			}
		})
	}
}

func TestKinematicDrivesForwardAndStaysInArena(t *testing.T) {
	w := donburi.NewWorld()
	body := SpawnCar(w, FromXYZ(0, SpawnHeight, 0))
	CarC.Get(w.Entry(body)).Gas = 1

	k := DefaultKinematic()
	for i := 0; i < 60; i++ {
		k.Step(w, time.Second/60)
	}
	pos := TransformC.GetValue(w.Entry(body)).Translation
	if pos[2] <= 0 {
		t.Fatalf("car did not move forward: %v", pos)
	}
	if pos[1] != SpawnHeight {
		t.Fatalf("car left the ground plane: %v", pos)
	}

	for i := 0; i < 60*120; i++ {
		k.Step(w, time.Second/60)
	}
	pos = TransformC.GetValue(w.Entry(body)).Translation
	if pos[2] > ArenaHalfSize || pos[0] > ArenaHalfSize || pos[0] < -ArenaHalfSize {
		t.Fatalf("car escaped the arena: %v", pos)
	}
}

func TestKinematicIsDeterministic(t *testing.T) {
	run := func() Transform {
		w := donburi.NewWorld()
		body := SpawnCar(w, FromXYZ(1, SpawnHeight, 2))
		car := CarC.Get(w.Entry(body))
		car.Gas, car.Steering = 1, -1
		k := DefaultKinematic()
		for i := 0; i < 240; i++ {
			k.Step(w, time.Second/60)
		}
		return TransformC.GetValue(w.Entry(body))
	}
	a, b := run(), run()
	if a != b {
		t.Fatalf("runs diverged: %+v vs %+v", a, b)
	}
}

func TestWireConversion(t *testing.T) {
	tr := Transform{Translation: mgl32.Vec3{1, 2, 3}, Rotation: mgl32.QuatRotate(0.5, mgl32.Vec3{0, 1, 0})}
	pos, rot := tr.Wire()
	if rot[3] != tr.Rotation.W || rot[1] != tr.Rotation.V[1] {
		t.Fatalf("quat order wrong: %v from %+v", rot, tr.Rotation)
	}
	if back := TransformFromWire(pos, rot); back != tr {
		t.Fatalf("wire round trip = %+v, want %+v", back, tr)
	}
}
