package server

import (
	"fmt"

	"garagearena/logger"
	"garagearena/protocol"
	"garagearena/world"
)

// CommandHandler 执行客户端指令；每条指令恰好调用一次，按到达顺序
type CommandHandler interface {
	HandleCommand(s *Server, id protocol.ClientID, cmd protocol.PlayerCommand)
}

// CommandFunc 函数适配为 CommandHandler
type CommandFunc func(s *Server, id protocol.ClientID, cmd protocol.PlayerCommand)

func (f CommandFunc) HandleCommand(s *Server, id protocol.ClientID, cmd protocol.PlayerCommand) {
	f(s, id, cmd)
}

// LogCommands 默认处理：只记录日志
type LogCommands struct{}

func (LogCommands) HandleCommand(_ *Server, id protocol.ClientID, cmd protocol.PlayerCommand) {
	if cmd.Kind == protocol.CommandBasicAttack {
		logger.Log.Infof("Received basic attack from client %d: %v", id, cmd.CastAt)
	}
}

// ingest 读取每个客户端的指令与输入。
// 指令全部执行；输入只保留最后一条，覆盖玩家当前输入。
func (s *Server) ingest() error {
	for _, id := range s.net.ClientIDs() {
		if err := s.ingestClient(id); err != nil {
			if s.settings.DecodePolicy != DecodeFailureDisconnect {
				return err
			}
			logger.Log.Warnf("disconnecting client %d: %v", id, err)
			s.net.Disconnect(id)
			s.Metrics.IncDisconnects()
		}
	}
	return nil
}

func (s *Server) ingestClient(id protocol.ClientID) error {
	for {
		b, ok := s.net.Receive(id, uint8(protocol.ClientCommand))
		if !ok {
			break
		}
		cmd, err := protocol.Decode[protocol.PlayerCommand](b)
		if err != nil {
			s.Metrics.IncDecodeErrors()
			return fmt.Errorf("client %d command: %w", id, err)
		}
		s.commands.HandleCommand(s, id, cmd)
		s.Metrics.IncCommands()
	}

	var (
		last     protocol.PlayerInput
		received int
	)
	for {
		b, ok := s.net.Receive(id, uint8(protocol.ClientInput))
		if !ok {
			break
		}
		in, err := protocol.Decode[protocol.PlayerInput](b)
		if err != nil {
			s.Metrics.IncDecodeErrors()
			return fmt.Errorf("client %d input: %w", id, err)
		}
		last = in
		received++
	}
	if received == 0 {
		return nil
	}
	s.Metrics.IncInputsSuperseded(received - 1)

	body, ok := s.Lobby.Get(id)
	if !ok || !s.World.Valid(body) {
		logger.Log.Debugf("input from client %d without a car", id)
		return nil
	}
	world.InputC.SetValue(s.World.Entry(body), last)
	s.Metrics.IncInputsApplied()
	return nil
}
