package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap/zapcore"

	"garagearena/config"
	"garagearena/logger"
	"garagearena/server"
	"garagearena/transport"
)

// listenENet 仅在以 -tags enet 构建时注册（依赖 cgo 与 libenet）
var listenENet func(addr string, cfg transport.ServerConfig) (transport.Server, error)

// GarageArena 服务端入口：监听传输、启动管理接口，并以固定频率推进世界
func main() {
	// 读取配置前先输出到控制台，便于看到默认值提示
	_ = logger.InitLogger(logger.Options{Console: true, Level: zapcore.InfoLevel, Name: "server"})
	if err := config.LoadDotEnv(); err != nil {
		logger.Log.Fatalf("config: %v", err)
	}
	cfg, err := config.LoadServer()
	if err != nil {
		logger.Log.Fatalf("config: %v", err)
	}
	settings, err := server.DefaultSettings().Apply(server.SettingsPatch{
		SpawnExtent:  &cfg.SpawnExtent,
		DecodePolicy: &cfg.DecodePolicy,
	})
	if err != nil {
		logger.Log.Fatalf("config: %v", err)
	}

	// 使用第三方 zap 日志库写入日志文件（带滚动）
	if err := logger.InitLogger(logger.Options{
		FilePath: cfg.LogFile,
		Console:  true,
		Level:    zapcore.InfoLevel,
		Name:     "server",
	}); err != nil {
		panic(err)
	}
	defer logger.SyncLogger()

	netCfg := transport.DefaultServerConfig()
	netCfg.MaxClients = cfg.MaxClients

	var net transport.Server
	switch cfg.Transport {
	case config.TransportENet:
		if listenENet == nil {
			logger.Log.Fatalf("transport %q: binary built without ENet support (rebuild with -tags enet)", cfg.Transport)
		}
		srv, err := listenENet(cfg.Socket, netCfg)
		if err != nil {
			logger.Log.Fatalf("listen: %v", err)
		}
		net = srv
		logger.Log.Infof("GarageArena listening on udp %s", cfg.Socket)
	default:
		srv := transport.NewWSServer(netCfg)
		addr, err := srv.Listen(cfg.Socket)
		if err != nil {
			logger.Log.Fatalf("listen: %v", err)
		}
		net = srv
		logger.Log.Infof("GarageArena listening on ws://%s%s", addr, transport.WSPath)
	}
	defer net.Close()

	s := server.New(net, server.Options{TickRate: cfg.TickHz, Settings: settings})

	// 管理与监控接口
	if cfg.AdminAddr != "" {
		admin := &http.Server{Addr: cfg.AdminAddr, Handler: s.AdminMux()}
		go func() {
			logger.Log.Infof("admin listening on http://%s/", cfg.AdminAddr)
			if err := admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Log.Fatalf("admin listen: %v", err)
			}
		}()
		defer admin.Close()
	}

	// 优雅退出（Ctrl+C）
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := s.Run(ctx); err != nil {
		logger.Log.Fatalf("tick: %v", err)
	}
	logger.Log.Info("Shutting down...")
}
