package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap/zapcore"

	"garagearena/client"
	"garagearena/config"
	"garagearena/logger"
	"garagearena/protocol"
	"garagearena/transport"
)

// dialENet 仅在以 -tags enet 构建时注册（依赖 cgo 与 libenet）
var dialENet func(addr string, cfg transport.ClientConfig) (transport.Client, error)

// 无界面客户端：方向键与攻击指令从标准输入读取
func main() {
	_ = logger.InitLogger(logger.Options{Console: true, Level: zapcore.InfoLevel, Name: "client"})
	if err := config.LoadDotEnv(); err != nil {
		logger.Log.Fatalf("config: %v", err)
	}
	cfg, err := config.LoadClient()
	if err != nil {
		logger.Log.Fatalf("config: %v", err)
	}
	if err := logger.InitLogger(logger.Options{
		FilePath: cfg.LogFile,
		Console:  true,
		Level:    zapcore.InfoLevel,
		Name:     "client",
	}); err != nil {
		panic(err)
	}
	defer logger.SyncLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	id := protocol.ClientID(time.Now().UnixMilli())
	netCfg := transport.DefaultClientConfig(id)

	var net transport.Client
	switch cfg.Transport {
	case config.TransportENet:
		if dialENet == nil {
			logger.Log.Fatalf("transport %q: binary built without ENet support (rebuild with -tags enet)", cfg.Transport)
		}
		net, err = dialENet(cfg.ServerAddr, netCfg)
	default:
		dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		net, err = transport.DialWS(dialCtx, cfg.ServerAddr, netCfg)
		cancel()
	}
	if err != nil {
		logger.Log.Fatalf("connect %s: %v", cfg.ServerAddr, err)
	}
	defer net.Close()
	logger.Log.Infof("client %d connecting to %s over %s", id, cfg.ServerAddr, cfg.Transport)

	keys := &client.KeyState{}
	c := client.New(net, keys)
	go readCommands(os.Stdin, keys, c)

	if err := c.Run(ctx, cfg.TickHz); err != nil {
		logger.Log.Fatalf("tick: %v", err)
	}
	logger.Log.Info("Shutting down...")
}
