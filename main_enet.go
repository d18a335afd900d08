//go:build enet

package main

import (
	"garagearena/transport"
	"garagearena/transport/enetudp"
)

func init() {
	listenENet = func(addr string, cfg transport.ServerConfig) (transport.Server, error) {
		srv, err := enetudp.Listen(addr, cfg)
		if err != nil {
			return nil, err
		}
		return srv, nil
	}
}
