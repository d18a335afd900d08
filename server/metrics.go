package server

import (
	"sync/atomic"
)

// Metrics 记录服务端运行期的关键指标（用于监控与调试）
type Metrics struct {
	TickCount        int64 // 统计的 Tick 次数
	TotalTickNs      int64 // Tick 累计耗时（纳秒）
	Clients          int64 // 当前在线玩家
	LifecycleSent    int64 // 发出的 PlayerCreate/PlayerRemove 数（按接收方计）
	SnapshotsSent    int64 // 广播的快照数
	InputsApplied    int64 // 生效的输入数（每客户端每 Tick 至多一条）
	InputsSuperseded int64 // 同一 Tick 内被后到输入覆盖的输入数
	CommandsApplied  int64 // 执行的指令数
	DecodeErrors     int64 // 解码失败的客户端消息数
	Disconnects      int64 // 因解码失败被断开的客户端数
}

func (m *Metrics) IncLifecycle(n int) { atomic.AddInt64(&m.LifecycleSent, int64(n)) }
func (m *Metrics) IncSnapshots() { atomic.AddInt64(&m.SnapshotsSent, 1) }
func (m *Metrics) IncInputsApplied() { atomic.AddInt64(&m.InputsApplied, 1) }
func (m *Metrics) IncInputsSuperseded(n int) { atomic.AddInt64(&m.InputsSuperseded, int64(n)) }
func (m *Metrics) IncCommands() { atomic.AddInt64(&m.CommandsApplied, 1) }
func (m *Metrics) IncDecodeErrors() { atomic.AddInt64(&m.DecodeErrors, 1) }
func (m *Metrics) IncDisconnects() { atomic.AddInt64(&m.Disconnects, 1) }
func (m *Metrics) SetClients(n int) { atomic.StoreInt64(&m.Clients, int64(n)) }
func (m *Metrics) AddTick(ns int64) {
	atomic.AddInt64(&m.TickCount, 1)
	atomic.AddInt64(&m.TotalTickNs, ns)
}

// Snapshot 返回只读副本，便于 HTTP 输出
func (m *Metrics) Snapshot() map[string]any {
	tick := atomic.LoadInt64(&m.TickCount)
	total := atomic.LoadInt64(&m.TotalTickNs)
	var avgMs float64
	if tick > 0 {
		avgMs = float64(total) / float64(tick) / 1e6
	}
	return map[string]any{
		"tick_count":        tick,
		"avg_tick_ms":       avgMs,
		"clients":           atomic.LoadInt64(&m.Clients),
		"lifecycle_sent":    atomic.LoadInt64(&m.LifecycleSent),
		"snapshots_sent":    atomic.LoadInt64(&m.SnapshotsSent),
		"inputs_applied":    atomic.LoadInt64(&m.InputsApplied),
		"inputs_superseded": atomic.LoadInt64(&m.InputsSuperseded),
		"commands_applied":  atomic.LoadInt64(&m.CommandsApplied),
		"decode_errors":     atomic.LoadInt64(&m.DecodeErrors),
		"disconnects":       atomic.LoadInt64(&m.Disconnects),
	}
}
