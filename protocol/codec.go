package protocol

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// ErrMalformed 载荷无法解码或不满足消息约束
var ErrMalformed = errors.New("malformed message")

// Message 可在通道上传输的消息类型
type Message interface {
	PlayerInput | PlayerCommand | ServerMessage | NetworkedEntities
}

// Encode 将消息编码为 msgpack（结构体按数组编码，字节序列确定）
func Encode[T Message](m T) ([]byte, error) {
	if err := validate(&m); err != nil {
		return nil, err
	}
	b, err := msgpack.Marshal(&m)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", m, err)
	}
	return b, nil
}

// MustEncode 用于编码必然合法的本地构造消息
func MustEncode[T Message](m T) []byte {
	b, err := Encode(m)
	if err != nil {
		panic(err)
	}
	return b
}

// Decode 解码并校验，失败时返回包裹 ErrMalformed 的错误
func Decode[T Message](b []byte) (T, error) {
	var out T
	if len(b) == 0 {
		return out, fmt.Errorf("%w: empty payload for %T", ErrMalformed, out)
	}
	r := bytes.NewReader(b)
	if err := msgpack.NewDecoder(r).Decode(&out); err != nil {
		return out, fmt.Errorf("%w: decode %T: %v", ErrMalformed, out, err)
	}
	if r.Len() > 0 {
		return out, fmt.Errorf("%w: %d trailing bytes after %T", ErrMalformed, r.Len(), out)
	}
	if err := validate(&out); err != nil {
		return out, err
	}
	return out, nil
}

func validate(m any) error {
	switch v := m.(type) {
	case *ServerMessage:
		return v.Validate()
	case *NetworkedEntities:
		return v.Validate()
	case *PlayerCommand:
		if v.Kind != CommandBasicAttack {
			return fmt.Errorf("%w: unknown command kind %d", ErrMalformed, uint8(v.Kind))
		}
	}
	return nil
}
