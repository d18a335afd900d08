package protocol

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// 含定长数组的消息自行解码：msgpack 默认会把较短的数组补零，这里要求元素个数与声明完全一致

var (
	_ msgpack.CustomDecoder = (*PlayerCommand)(nil)
	_ msgpack.CustomDecoder = (*PlayerCreate)(nil)
	_ msgpack.CustomDecoder = (*NetworkedEntities)(nil)
)

// arrayLen 读取数组头并校验长度；nil 视为长度不符
func arrayLen(d *msgpack.Decoder, want int, what string) error {
	n, err := d.DecodeArrayLen()
	if err != nil {
		return err
	}
	if n != want {
		return fmt.Errorf("%w: %s has %d elements, want %d", ErrMalformed, what, n, want)
	}
	return nil
}

func decodeFloats(d *msgpack.Decoder, dst []float32, what string) error {
	if err := arrayLen(d, len(dst), what); err != nil {
		return err
	}
	for i := range dst {
		f, err := d.DecodeFloat32()
		if err != nil {
			return err
		}
		dst[i] = f
	}
	return nil
}

func decodeVec3(d *msgpack.Decoder, v *Vec3, what string) error {
	return decodeFloats(d, v[:], what)
}

func decodeQuat(d *msgpack.Decoder, q *Quat, what string) error {
	return decodeFloats(d, q[:], what)
}

func (c *PlayerCommand) DecodeMsgpack(d *msgpack.Decoder) error {
	if err := arrayLen(d, 2, "player command"); err != nil {
		return err
	}
	kind, err := d.DecodeUint8()
	if err != nil {
		return err
	}
	c.Kind = CommandKind(kind)
	return decodeVec3(d, &c.CastAt, "castAt")
}

func (p *PlayerCreate) DecodeMsgpack(d *msgpack.Decoder) error {
	if err := arrayLen(d, 3, "player create"); err != nil {
		return err
	}
	entity, err := d.DecodeUint64()
	if err != nil {
		return err
	}
	id, err := d.DecodeUint64()
	if err != nil {
		return err
	}
	p.Entity, p.ID = EntityID(entity), ClientID(id)
	return decodeVec3(d, &p.Translation, "translation")
}

func (n *NetworkedEntities) DecodeMsgpack(d *msgpack.Decoder) error {
	if err := arrayLen(d, 5, "networked entities"); err != nil {
		return err
	}
	*n = NetworkedEntities{}

	// 变长列为 nil 时 DecodeArrayLen 返回 -1，保持 nil
	rows, err := d.DecodeArrayLen()
	if err != nil {
		return err
	}
	if rows >= 0 {
		n.Entities = make([]EntityID, rows)
		for i := range n.Entities {
			id, err := d.DecodeUint64()
			if err != nil {
				return err
			}
			n.Entities[i] = EntityID(id)
		}
	}

	if rows, err = d.DecodeArrayLen(); err != nil {
		return err
	}
	if rows >= 0 {
		n.Translations = make([]Vec3, rows)
		for i := range n.Translations {
			if err := decodeVec3(d, &n.Translations[i], "translation"); err != nil {
				return err
			}
		}
	}

	if rows, err = d.DecodeArrayLen(); err != nil {
		return err
	}
	if rows >= 0 {
		n.Rotations = make([]Quat, rows)
		for i := range n.Rotations {
			if err := decodeQuat(d, &n.Rotations[i], "rotation"); err != nil {
				return err
			}
		}
	}

	if rows, err = d.DecodeArrayLen(); err != nil {
		return err
	}
	if rows >= 0 {
		n.WheelsTranslations = make([][WheelCount]Vec3, rows)
		for i := range n.WheelsTranslations {
			if err := arrayLen(d, WheelCount, "wheel translations"); err != nil {
				return err
			}
			for w := range n.WheelsTranslations[i] {
				if err := decodeVec3(d, &n.WheelsTranslations[i][w], "wheel translation"); err != nil {
					return err
				}
			}
		}
	}

	if rows, err = d.DecodeArrayLen(); err != nil {
		return err
	}
	if rows >= 0 {
		n.WheelsRotations = make([][WheelCount]Quat, rows)
		for i := range n.WheelsRotations {
			if err := arrayLen(d, WheelCount, "wheel rotations"); err != nil {
				return err
			}
			for w := range n.WheelsRotations[i] {
				if err := decodeQuat(d, &n.WheelsRotations[i][w], "wheel rotation"); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
