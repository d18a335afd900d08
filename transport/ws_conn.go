package transport

import (
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"garagearena/protocol"
)

const (
	// 写超时
	writeWait = 10 * time.Second

	// 读超时：期间必须收到任意消息或 pong
	pongWait = 60 * time.Second

	// ping 周期，必须小于 pongWait
	pingPeriod = (pongWait * 9) / 10

	// 握手帧必须在此时间内到达
	handshakeWait = 5 * time.Second

	// 单帧上限 1MB
	maxFrameBytes = 1 << 20

	// ControlChannel 握手控制帧所在的保留通道
	ControlChannel uint8 = 0xFF
)

// frame 线上帧：首字节为通道号，其余为载荷
func frame(channel uint8, payload []byte) []byte {
	b := make([]byte, 1+len(payload))
	b[0] = channel
	copy(b[1:], payload)
	return b
}

func splitFrame(b []byte) (uint8, []byte, error) {
	if len(b) == 0 {
		return 0, nil, fmt.Errorf("%w: empty frame", protocol.ErrMalformed)
	}
	return b[0], b[1:], nil
}

// wsConn 负责发送（写）数据的 websocket 包装，客户端与服务端共用
type wsConn struct {
	ws *websocket.Conn

	mu      sync.Mutex
	frames  [][]byte
	pending map[uint8]int
	budget  map[uint8]protocol.ChannelConfig
	notify  chan struct{}
	done    chan struct{}
	closed  bool
	reason  error
}

func newWSConn(ws *websocket.Conn, outbound []protocol.ChannelConfig) *wsConn {
	c := &wsConn{
		ws:      ws,
		pending: make(map[uint8]int),
		budget:  make(map[uint8]protocol.ChannelConfig, len(outbound)),
		notify:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	for _, ch := range outbound {
		c.budget[ch.ChannelID] = ch
	}
	return c
}

// Enqueue 将消息压入发送队列（非阻塞）。
// 不可靠通道超出预算时丢弃新消息；可靠通道超出预算返回错误，调用方应断开连接。
func (c *wsConn) Enqueue(channel uint8, payload []byte) error {
	cfg, ok := c.budget[channel]
	if !ok && channel != ControlChannel {
		return unknownChannel(channel)
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if ok && c.pending[channel]+len(payload) > cfg.MaxMemoryUsageBytes {
		c.mu.Unlock()
		if cfg.Reliable() {
			return fmt.Errorf("%w: outbound channel %d", ErrChannelOverflow, channel)
		}
		// 为了实时性，丢弃（下一帧快照会覆盖）
		return nil
	}
	c.frames = append(c.frames, frame(channel, payload))
	c.pending[channel] += len(payload)
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
	return nil
}

func (c *wsConn) take() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	frames := c.frames
	c.frames = nil
	for _, f := range frames {
		c.pending[f[0]] -= len(f) - 1
	}
	return frames
}

// Close 标记关闭；writePump 写完剩余帧后关闭底层连接。可重复调用
func (c *wsConn) Close(reason error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.reason = reason
	c.mu.Unlock()
	close(c.done)
}

// Reason 关闭原因
func (c *wsConn) Reason() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

// writePump 独立协程，负责从发送队列写出到 WS，并定期 ping；退出时关闭底层连接
func (c *wsConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()
	for {
		select {
		case <-c.notify:
			for _, f := range c.take() {
				_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
				if err := c.ws.WriteMessage(websocket.BinaryMessage, f); err != nil {
					c.Close(err)
					return
				}
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close(err)
				return
			}
		case <-c.done:
			// 尽量把已排队的帧（例如拒绝原因）写完
			for _, f := range c.take() {
				_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
				if err := c.ws.WriteMessage(websocket.BinaryMessage, f); err != nil {
					return
				}
			}
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// prepareRead 设置读上限、读超时与 pong 处理
func (c *wsConn) prepareRead() {
	c.ws.SetReadLimit(maxFrameBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
}

// readFrame 读取一帧并刷新读超时
func (c *wsConn) readFrame() (uint8, []byte, error) {
	mt, data, err := c.ws.ReadMessage()
	if err != nil {
		return 0, nil, err
	}
	if mt != websocket.BinaryMessage {
		return 0, nil, fmt.Errorf("%w: unexpected websocket message type %d", protocol.ErrMalformed, mt)
	}
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	return splitFrame(data)
}
