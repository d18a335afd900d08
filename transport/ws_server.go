package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"garagearena/logger"
	"garagearena/protocol"
)

// WSPath websocket 接入路径
const WSPath = "/ws"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// 握手 MAC 已经做了鉴权，不再限制来源
		return true
	},
}

// WSServer 基于 websocket 的服务端传输。
// 每条连接有独立的读写协程，入站消息进 Registry 队列，Tick 线程非阻塞地取走。
type WSServer struct {
	cfg ServerConfig
	reg *Registry[*wsConn]

	mu      sync.Mutex
	httpSrv *http.Server
	err     error
	closed  bool
}

// NewWSServer 创建服务端；既可以 Listen，也可以作为 http.Handler 挂到已有 mux 上
func NewWSServer(cfg ServerConfig) *WSServer {
	return &WSServer{cfg: cfg, reg: NewRegistry[*wsConn](cfg)}
}

// Listen 绑定地址并在后台协程中提供服务；绑定失败直接返回
func (s *WSServer) Listen(addr string) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("bind %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle(WSPath, s)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: handshakeWait}

	s.mu.Lock()
	s.httpSrv = srv
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.fail(fmt.Errorf("serve %s: %w", addr, err))
		}
	}()
	return ln.Addr(), nil
}

func (s *WSServer) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

// ServeHTTP websocket 接入：首帧必须是控制通道上的 hello
func (s *WSServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Warnf("upgrade error: %v", err)
		return
	}
	conn := newWSConn(ws, s.cfg.Connection.ServerChannels)
	go conn.writePump()

	conn.prepareRead()
	_ = ws.SetReadDeadline(time.Now().Add(handshakeWait))
	hello, err := readHello(conn)
	if err == nil {
		err = s.cfg.VerifyHello(hello)
	}
	if err == nil {
		err = s.reg.Add(hello.ClientID, conn)
	}
	if err != nil {
		logger.Log.Warnf("handshake from %s refused: %v", r.RemoteAddr, err)
		if !errors.Is(err, ErrRejected) {
			err = fmt.Errorf("%w: %v", ErrRejected, err)
		}
		_ = conn.Enqueue(ControlChannel, EncodeControl(Reject(err)))
		conn.Close(err)
		return
	}
	_ = conn.Enqueue(ControlChannel, EncodeControl(Accept()))
	logger.Log.Infof("client %d connected from %s", hello.ClientID, r.RemoteAddr)

	go s.readPump(conn, hello.ClientID)
}

func readHello(conn *wsConn) (Control, error) {
	ch, payload, err := conn.readFrame()
	if err != nil {
		return Control{}, err
	}
	if ch != ControlChannel {
		return Control{}, fmt.Errorf("%w: first frame on channel %d", protocol.ErrMalformed, ch)
	}
	return DecodeControl(payload)
}

// readPump 读取客户端消息入队；退出时在连接表中注销，Tick 线程随后收到 Disconnected 事件
func (s *WSServer) readPump(conn *wsConn, id protocol.ClientID) {
	var reason error
	defer func() {
		if r := conn.Reason(); r != nil {
			reason = r
		}
		s.reg.RemoveIf(id, func(c *wsConn) bool { return c == conn }, reason)
		conn.Close(reason)
	}()
	_ = conn.ws.SetReadDeadline(time.Now().Add(pongWait))

	for {
		ch, payload, err := conn.readFrame()
		if err != nil {
			reason = err
			return
		}
		if ch == ControlChannel {
			continue
		}
		if err := s.reg.Push(id, ch, payload); err != nil {
			logger.Log.Warnf("client %d: %v", id, err)
			reason = err
			return
		}
	}
}

// Update 返回后台服务的致命错误
func (s *WSServer) Update() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if s.closed {
		return ErrClosed
	}
	return nil
}

func (s *WSServer) Events() []ServerEvent { return s.reg.Events() }
func (s *WSServer) ClientIDs() []protocol.ClientID { return s.reg.ClientIDs() }

func (s *WSServer) Receive(id protocol.ClientID, channel uint8) ([]byte, bool) {
	return s.reg.Pop(id, channel)
}

// Send 发送失败（可靠通道积压超预算）时断开该连接
func (s *WSServer) Send(id protocol.ClientID, channel uint8, payload []byte) {
	conn, ok := s.reg.Conn(id)
	if !ok {
		return
	}
	if err := conn.Enqueue(channel, payload); err != nil && !errors.Is(err, ErrClosed) {
		logger.Log.Warnf("client %d: %v", id, err)
		conn.Close(err)
	}
}

func (s *WSServer) Broadcast(channel uint8, payload []byte) {
	for _, id := range s.reg.ClientIDs() {
		s.Send(id, channel, payload)
	}
}

func (s *WSServer) Disconnect(id protocol.ClientID) {
	if conn, ok := s.reg.Remove(id, errors.New("disconnected by server")); ok {
		conn.Close(ErrClosed)
	}
}

// Close 关闭监听与全部连接
func (s *WSServer) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	srv := s.httpSrv
	s.mu.Unlock()

	for _, conn := range s.reg.All() {
		conn.Close(ErrClosed)
	}
	if srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()
	return srv.Shutdown(ctx)
}
