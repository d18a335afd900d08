package transport

import (
	"fmt"

	"garagearena/protocol"
)

// queue 单通道 FIFO，按字节预算限流
type queue struct {
	cfg   protocol.ChannelConfig
	items [][]byte
	bytes int
}

// push 可靠通道超预算返回错误（连接随后被断开）；不可靠通道丢弃最旧的消息腾出空间
func (q *queue) push(b []byte) error {
	if len(b) > q.cfg.MaxMemoryUsageBytes {
		return fmt.Errorf("%w: message of %d bytes on channel %d", ErrChannelOverflow, len(b), q.cfg.ChannelID)
	}
	for q.bytes+len(b) > q.cfg.MaxMemoryUsageBytes {
		if q.cfg.Reliable() {
			return fmt.Errorf("%w: channel %d holds %d bytes", ErrChannelOverflow, q.cfg.ChannelID, q.bytes)
		}
		q.bytes -= len(q.items[0])
		q.items[0] = nil
		q.items = q.items[1:]
	}
	q.items = append(q.items, b)
	q.bytes += len(b)
	return nil
}

func (q *queue) pop() ([]byte, bool) {
	if len(q.items) == 0 {
		return nil, false
	}
	b := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	q.bytes -= len(b)
	return b, true
}

// Inbox 一条连接在各通道上的入站消息；调用方负责加锁
type Inbox struct {
	channels map[uint8]*queue
}

// NewInbox 按通道配置创建入站队列
func NewInbox(cfgs []protocol.ChannelConfig) *Inbox {
	in := &Inbox{channels: make(map[uint8]*queue, len(cfgs))}
	for _, c := range cfgs {
		in.channels[c.ChannelID] = &queue{cfg: c}
	}
	return in
}

// Push 入队；未知通道或可靠通道超预算返回错误
func (in *Inbox) Push(channel uint8, b []byte) error {
	q, ok := in.channels[channel]
	if !ok {
		return unknownChannel(channel)
	}
	return q.push(b)
}

// Pop 出队；无消息返回 false
func (in *Inbox) Pop(channel uint8) ([]byte, bool) {
	q, ok := in.channels[channel]
	if !ok {
		return nil, false
	}
	return q.pop()
}

// Pending 某通道排队的消息数
func (in *Inbox) Pending(channel uint8) int {
	if q, ok := in.channels[channel]; ok {
		return len(q.items)
	}
	return 0
}
