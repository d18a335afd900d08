package server

import (
	"context"
	"fmt"
	"time"

	"garagearena/world"
)

// Tick 单步推进：传输 → 设置 → 生命周期 → 输入 → 控制映射 → 物理 → 快照。
// 返回的错误是致命的（传输错误，或 fatal 策略下的解码错误）。
func (s *Server) Tick() error {
	start := time.Now()
	if err := s.net.Update(); err != nil {
		return fmt.Errorf("transport: %w", err)
	}
	s.applySettings()
	s.handleEvents()
	if err := s.ingest(); err != nil {
		return err
	}
	world.ApplyPlayerInputs(s.World)
	s.physics.Step(s.World, s.dt)
	s.broadcastSnapshot()

	s.tickSeq.Add(1)
	s.Metrics.AddTick(time.Since(start).Nanoseconds())
	return nil
}

// Run 启动 Tick 循环（单线程推进世界），直到 ctx 结束或 Tick 出错
func (s *Server) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.dt)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.Tick(); err != nil {
				return err
			}
		}
	}
}

// TickSeq 已完成的 Tick 数
func (s *Server) TickSeq() uint64 { return s.tickSeq.Load() }
