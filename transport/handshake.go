package transport

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"garagearena/protocol"
)

// ControlKind 控制帧类型
type ControlKind uint8

const (
	ControlHello ControlKind = iota + 1
	ControlAccept
	ControlReject
)

// Control 握手控制帧；不属于任何业务通道，不会出现在复制核心里
type Control struct {
	_msgpack struct{} `msgpack:",as_array"`

	Kind       ControlKind
	ProtocolID uint64
	ClientID   protocol.ClientID
	Timestamp  int64
	MAC        []byte
	Reason     string
}

// NewHello 客户端握手帧：MAC = HMAC-SHA256(key, protocolID‖clientID‖timestamp)
func NewHello(cfg ClientConfig, now time.Time) Control {
	ts := now.UnixMilli()
	return Control{
		Kind:       ControlHello,
		ProtocolID: cfg.ProtocolID,
		ClientID:   cfg.ClientID,
		Timestamp:  ts,
		MAC:        helloMAC(cfg.PrivateKey, cfg.ProtocolID, cfg.ClientID, ts),
	}
}

// Accept 接受帧
func Accept() Control { return Control{Kind: ControlAccept} }

// Reject 拒绝帧
func Reject(reason error) Control { return Control{Kind: ControlReject, Reason: reason.Error()} }

// VerifyHello 校验协议号与 MAC
func (c ServerConfig) VerifyHello(h Control) error {
	if h.Kind != ControlHello {
		return fmt.Errorf("%w: expected hello, got control kind %d", ErrRejected, h.Kind)
	}
	if h.ProtocolID != c.ProtocolID {
		return fmt.Errorf("%w: protocol id %d, server speaks %d", ErrRejected, h.ProtocolID, c.ProtocolID)
	}
	want := helloMAC(c.PrivateKey, h.ProtocolID, h.ClientID, h.Timestamp)
	if !hmac.Equal(want, h.MAC) {
		return fmt.Errorf("%w: bad hello mac for client %d", ErrRejected, h.ClientID)
	}
	return nil
}

// EncodeControl 编码控制帧
func EncodeControl(c Control) []byte {
	b, err := msgpack.Marshal(&c)
	if err != nil {
		panic(err)
	}
	return b
}

// DecodeControl 解码控制帧
func DecodeControl(b []byte) (Control, error) {
	var c Control
	if err := msgpack.Unmarshal(b, &c); err != nil {
		return c, fmt.Errorf("%w: control frame: %v", protocol.ErrMalformed, err)
	}
	return c, nil
}

func helloMAC(key [protocol.PrivateKeyBytes]byte, protocolID uint64, id protocol.ClientID, ts int64) []byte {
	var buf [24]byte
	binary.BigEndian.PutUint64(buf[0:], protocolID)
	binary.BigEndian.PutUint64(buf[8:], uint64(id))
	binary.BigEndian.PutUint64(buf[16:], uint64(ts))
	m := hmac.New(sha256.New, key[:])
	m.Write(buf[:])
	return m.Sum(nil)
}

// Admit 握手通过后的容量与重复检查
func (c ServerConfig) Admit(id protocol.ClientID, current int, exists bool) error {
	if exists {
		return fmt.Errorf("%w: client id %d already connected", ErrRejected, id)
	}
	if c.MaxClients > 0 && current >= c.MaxClients {
		return fmt.Errorf("%w: server full (%d clients)", ErrRejected, current)
	}
	return nil
}
