package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"garagearena/logger"
)

// ErrSettingsBusy 待应用的设置过多
var ErrSettingsBusy = errors.New("settings queue full")

// UpdateSettings 提交设置更新，在下一个 Tick 开始时生效；可从任意协程调用
func (s *Server) UpdateSettings(p SettingsPatch) error {
	if _, err := s.CurrentSettings().Apply(p); err != nil {
		return err
	}
	select {
	case s.updates <- p:
		return nil
	default:
		return ErrSettingsBusy
	}
}

// CurrentSettings 最近一次 Tick 使用的设置
func (s *Server) CurrentSettings() Settings { return *s.published.Load() }

func (s *Server) publish() {
	cur := s.settings
	s.published.Store(&cur)
}

// applySettings 非阻塞地应用所有待处理的更新
func (s *Server) applySettings() {
	changed := false
	for {
		select {
		case p := <-s.updates:
			next, err := s.settings.Apply(p)
			if err != nil {
				logger.Log.Warnf("settings update rejected: %v", err)
				continue
			}
			s.settings = next
			changed = true
		default:
			if changed {
				s.publish()
				logger.Log.Infof("settings updated: spawn_extent=%.2f decode_policy=%s",
					s.settings.SpawnExtent, s.settings.DecodePolicy)
			}
			return
		}
	}
}

// HandleAdminConfig 提供运行规则的读取与更新（热更新）
// GET /admin/config  返回当前配置
// POST /admin/config 以 JSON 载荷更新部分字段，如 {"spawn_extent": 60, "decode_policy": "disconnect"}
func (s *Server) HandleAdminConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(s.CurrentSettings())
	case http.MethodPost:
		var raw map[string]any
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		patch, err := DecodeSettingsPatch(raw)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := s.UpdateSettings(patch); err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, ErrSettingsBusy) {
				status = http.StatusServiceUnavailable
			}
			http.Error(w, err.Error(), status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleMetrics 输出运行指标
// GET /metrics
func (s *Server) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	payload := map[string]any{
		"tick":    s.TickSeq(),
		"metrics": s.Metrics.Snapshot(),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

// AdminMux 管理与监控接口
func (s *Server) AdminMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/admin/config", s.HandleAdminConfig)
	mux.HandleFunc("/metrics", s.HandleMetrics)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}
