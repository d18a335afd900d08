package client

import "sync/atomic"

// Stats 客户端计数器，可从其他协程读取
type Stats struct {
	ticks          atomic.Int64
	inputsSent     atomic.Int64
	commandsSent   atomic.Int64
	playersCreated atomic.Int64
	playersRemoved atomic.Int64
	snapshots      atomic.Int64
	rowsApplied    atomic.Int64
	rowsUnresolved atomic.Int64
	duplicates     atomic.Int64
}

func (s *Stats) Snapshot() map[string]int64 {
	return map[string]int64{
		"ticks":           s.ticks.Load(),
		"inputs_sent":     s.inputsSent.Load(),
		"commands_sent":   s.commandsSent.Load(),
		"players_created": s.playersCreated.Load(),
		"players_removed": s.playersRemoved.Load(),
		"snapshots":       s.snapshots.Load(),
		"rows_applied":    s.rowsApplied.Load(),
		"rows_unresolved": s.rowsUnresolved.Load(),
		"duplicate_ids":   s.duplicates.Load(),
	}
}
