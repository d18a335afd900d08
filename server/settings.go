package server

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"

	"garagearena/world"
)

// DecodePolicy 客户端消息解码失败时的处理方式
type DecodePolicy string

const (
	// DecodeFailureFatal Tick 返回错误，进程终止
	DecodeFailureFatal DecodePolicy = "fatal"
	// DecodeFailureDisconnect 丢弃该消息并断开发送方
	DecodeFailureDisconnect DecodePolicy = "disconnect"
)

// ParseDecodePolicy 大小写不敏感
func ParseDecodePolicy(s string) (DecodePolicy, error) {
	switch p := DecodePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case DecodeFailureFatal, DecodeFailureDisconnect:
		return p, nil
	default:
		return "", fmt.Errorf("unknown decode policy %q (want fatal or disconnect)", s)
	}
}

// Settings 运行期可热更新的规则
type Settings struct {
	SpawnExtent  float32      `json:"spawn_extent"`
	DecodePolicy DecodePolicy `json:"decode_policy"`
}

// DefaultSettings 出生区域 40×40，解码失败即终止
func DefaultSettings() Settings {
	return Settings{SpawnExtent: 40, DecodePolicy: DecodeFailureFatal}
}

// SettingsPatch 部分更新；nil 字段保持不变
type SettingsPatch struct {
	SpawnExtent  *float32 `mapstructure:"spawn_extent"`
	DecodePolicy *string  `mapstructure:"decode_policy"`
}

// DecodeSettingsPatch 从任意键值（JSON 请求体、环境变量）弱类型解码
func DecodeSettingsPatch(raw map[string]any) (SettingsPatch, error) {
	var patch SettingsPatch
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           &patch,
	})
	if err != nil {
		return patch, err
	}
	if err := dec.Decode(raw); err != nil {
		return patch, fmt.Errorf("settings: %w", err)
	}
	return patch, nil
}

// Apply 校验并返回应用后的设置；校验失败时原设置不变
func (s Settings) Apply(p SettingsPatch) (Settings, error) {
	out := s
	if p.SpawnExtent != nil {
		e := *p.SpawnExtent
		if e <= 0 || e > 2*world.ArenaHalfSize {
			return s, fmt.Errorf("spawn_extent %.2f out of range (0, %.0f]", e, 2*world.ArenaHalfSize)
		}
		out.SpawnExtent = e
	}
	if p.DecodePolicy != nil {
		policy, err := ParseDecodePolicy(*p.DecodePolicy)
		if err != nil {
			return s, err
		}
		out.DecodePolicy = policy
	}
	return out, nil
}
