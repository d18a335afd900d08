package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"garagearena/protocol"
)

// WSClient 基于 websocket 的客户端传输。
// 连接建立后立即发送 hello，收到 accept 之前 IsConnected 为 false。
type WSClient struct {
	cfg  ClientConfig
	conn *wsConn

	mu        sync.Mutex
	inbox     *Inbox
	connected bool
	err       error
	closed    bool
}

// DialWS 连接服务端，addr 形如 127.0.0.1:5000 或完整的 ws:// URL
func DialWS(ctx context.Context, addr string, cfg ClientConfig) (*WSClient, error) {
	url := addr
	if !strings.HasPrefix(url, "ws://") && !strings.HasPrefix(url, "wss://") {
		url = "ws://" + addr + WSPath
	}
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	c := &WSClient{
		cfg:   cfg,
		conn:  newWSConn(ws, cfg.Connection.ClientChannels),
		inbox: cfg.ClientInbox(),
	}
	if err := c.conn.Enqueue(ControlChannel, EncodeControl(NewHello(cfg, time.Now()))); err != nil {
		_ = ws.Close()
		return nil, err
	}
	go c.conn.writePump()
	go c.readPump()
	return c, nil
}

func (c *WSClient) readPump() {
	c.conn.prepareRead()
	for {
		ch, payload, err := c.conn.readFrame()
		if err != nil {
			c.fail(err)
			return
		}
		if ch == ControlChannel {
			if err := c.control(payload); err != nil {
				c.fail(err)
				return
			}
			continue
		}
		c.mu.Lock()
		err = c.inbox.Push(ch, payload)
		c.mu.Unlock()
		if err != nil {
			c.fail(err)
			return
		}
	}
}

func (c *WSClient) control(payload []byte) error {
	ctl, err := DecodeControl(payload)
	if err != nil {
		return err
	}
	switch ctl.Kind {
	case ControlAccept:
		c.mu.Lock()
		c.connected = true
		c.mu.Unlock()
		return nil
	case ControlReject:
		return fmt.Errorf("%w: %s", ErrRejected, ctl.Reason)
	default:
		return fmt.Errorf("%w: unexpected control kind %d", protocol.ErrMalformed, ctl.Kind)
	}
}

func (c *WSClient) fail(err error) {
	c.mu.Lock()
	if c.err == nil && !c.closed {
		c.err = err
	}
	c.connected = false
	c.mu.Unlock()
	c.conn.Close(err)
}

func (c *WSClient) ID() protocol.ClientID { return c.cfg.ClientID }

func (c *WSClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected && c.err == nil
}

// Update 返回连接的致命错误（被拒绝、被断开、积压超预算）
func (c *WSClient) Update() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	if c.closed {
		return ErrClosed
	}
	return nil
}

func (c *WSClient) Receive(channel uint8) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inbox.Pop(channel)
}

func (c *WSClient) Send(channel uint8, payload []byte) {
	if !c.IsConnected() {
		return
	}
	if err := c.conn.Enqueue(channel, payload); err != nil && !errors.Is(err, ErrClosed) {
		c.fail(err)
	}
}

func (c *WSClient) Close() error {
	c.mu.Lock()
	c.closed = true
	c.connected = false
	c.mu.Unlock()
	c.conn.Close(ErrClosed)
	return nil
}
