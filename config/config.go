// Package config 从环境变量与可选的 .env 文件读取进程配置
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"

	"garagearena/logger"
)

const (
	ServerSocketEnv = "RENET_SERVER_SOCKET"
	ServerAddrEnv   = "RENET_SERVER_ADDR"

	DefaultServerAddr = "127.0.0.1:5000"
	DefaultAdminAddr  = "127.0.0.1:5080"
)

// 传输实现
const (
	TransportWS   = "ws"
	TransportENet = "enet"
)

// Server 服务端进程配置
type Server struct {
	Socket       string  `mapstructure:"RENET_SERVER_SOCKET"`
	Transport    string  `mapstructure:"GARAGE_TRANSPORT"`
	AdminAddr    string  `mapstructure:"GARAGE_ADMIN_ADDR"`
	LogFile      string  `mapstructure:"GARAGE_LOG_FILE"`
	TickHz       int     `mapstructure:"GARAGE_TICK_HZ"`
	MaxClients   int     `mapstructure:"GARAGE_MAX_CLIENTS"`
	SpawnExtent  float32 `mapstructure:"GARAGE_SPAWN_EXTENT"`
	DecodePolicy string  `mapstructure:"GARAGE_DECODE_POLICY"`
}

// Client 客户端进程配置
type Client struct {
	ServerAddr string `mapstructure:"RENET_SERVER_ADDR"`
	Transport  string `mapstructure:"GARAGE_TRANSPORT"`
	LogFile    string `mapstructure:"GARAGE_LOG_FILE"`
	TickHz     int    `mapstructure:"GARAGE_TICK_HZ"`
}

// DefaultServer 服务端默认配置
func DefaultServer() Server {
	return Server{
		Socket:       DefaultServerAddr,
		Transport:    TransportWS,
		AdminAddr:    DefaultAdminAddr,
		LogFile:      "server.log",
		TickHz:       60,
		MaxClients:   64,
		SpawnExtent:  40,
		DecodePolicy: "fatal",
	}
}

// DefaultClient 客户端默认配置
func DefaultClient() Client {
	return Client{
		ServerAddr: DefaultServerAddr,
		Transport:  TransportWS,
		LogFile:    "client.log",
		TickHz:     60,
	}
}

// LoadDotEnv 加载 .env 文件（不覆盖已存在的环境变量）；文件不存在不算错误
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// LoadServer 读取服务端配置；未设置的变量保留默认值
func LoadServer() (Server, error) {
	cfg := DefaultServer()
	if err := decodeEnv(&cfg); err != nil {
		return cfg, err
	}
	if _, ok := os.LookupEnv(ServerSocketEnv); !ok {
		logger.Log.Infof("%s not set, setting default: %s", ServerSocketEnv, cfg.Socket)
	}
	return cfg, cfg.Validate()
}

// LoadClient 读取客户端配置
func LoadClient() (Client, error) {
	cfg := DefaultClient()
	if err := decodeEnv(&cfg); err != nil {
		return cfg, err
	}
	if _, ok := os.LookupEnv(ServerAddrEnv); !ok {
		logger.Log.Infof("%s not set, setting default: %s", ServerAddrEnv, cfg.ServerAddr)
	}
	return cfg, cfg.Validate()
}

func (c Server) Validate() error {
	if c.Socket == "" {
		return fmt.Errorf("%s is empty", ServerSocketEnv)
	}
	if err := validTransport(c.Transport); err != nil {
		return err
	}
	if c.TickHz <= 0 {
		return fmt.Errorf("tick rate must be positive, got %d", c.TickHz)
	}
	if c.MaxClients <= 0 {
		return fmt.Errorf("max clients must be positive, got %d", c.MaxClients)
	}
	if c.SpawnExtent <= 0 {
		return fmt.Errorf("spawn extent must be positive, got %v", c.SpawnExtent)
	}
	return nil
}

func (c Client) Validate() error {
	if c.ServerAddr == "" {
		return fmt.Errorf("%s is empty", ServerAddrEnv)
	}
	if err := validTransport(c.Transport); err != nil {
		return err
	}
	if c.TickHz <= 0 {
		return fmt.Errorf("tick rate must be positive, got %d", c.TickHz)
	}
	return nil
}

func validTransport(t string) error {
	switch t {
	case TransportWS, TransportENet:
		return nil
	}
	return fmt.Errorf("unknown transport %q (want %s or %s)", t, TransportWS, TransportENet)
}

// decodeEnv 把当前环境解码进 out；只覆盖已设置的变量
func decodeEnv(out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(environ()); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func environ() map[string]any {
	env := make(map[string]any)
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if strings.HasPrefix(k, "RENET_") || strings.HasPrefix(k, "GARAGE_") {
			env[k] = strings.TrimSpace(v)
		}
	}
	return env
}
