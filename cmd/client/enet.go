//go:build enet

package main

import (
	"garagearena/transport"
	"garagearena/transport/enetudp"
)

func init() {
	dialENet = func(addr string, cfg transport.ClientConfig) (transport.Client, error) {
		c, err := enetudp.Dial(addr, cfg)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}
