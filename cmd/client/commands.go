package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"garagearena/client"
	"garagearena/logger"
	"garagearena/protocol"
)

// applyLine 解析一行控制台指令：
//
//	up|down|left|right [on|off]  按下/松开方向键（缺省为 on）
//	stop                         松开全部方向键
//	attack x y z                 发送 BasicAttack
func applyLine(line string, keys *client.KeyState, c *client.Client) error {
	fields := strings.Fields(strings.ToLower(line))
	if len(fields) == 0 {
		return nil
	}
	switch fields[0] {
	case "up", "down", "left", "right":
		on := true
		if len(fields) > 1 {
			switch fields[1] {
			case "on":
			case "off":
				on = false
			default:
				return fmt.Errorf("want on or off, got %q", fields[1])
			}
		}
		keys.Update(func(in *protocol.PlayerInput) {
			switch fields[0] {
			case "up":
				in.Up = on
			case "down":
				in.Down = on
			case "left":
				in.Left = on
			case "right":
				in.Right = on
			}
		})
	case "stop":
		keys.Set(protocol.PlayerInput{})
	case "attack":
		if len(fields) != 4 {
			return fmt.Errorf("usage: attack x y z")
		}
		var at protocol.Vec3
		for i := range at {
			v, err := strconv.ParseFloat(fields[i+1], 32)
			if err != nil {
				return fmt.Errorf("attack: %w", err)
			}
			at[i] = float32(v)
		}
		c.QueueCommand(protocol.BasicAttack(at))
	default:
		return fmt.Errorf("unknown command %q", fields[0])
	}
	return nil
}

// readCommands 逐行读取指令直到 r 结束
func readCommands(r io.Reader, keys *client.KeyState, c *client.Client) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if err := applyLine(sc.Text(), keys, c); err != nil {
			logger.Log.Warnf("input: %v", err)
		}
	}
}
