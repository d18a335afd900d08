package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Log 是全局可用的 SugaredLogger；InitLogger 之前为空操作日志，测试中可直接替换
var Log = zap.NewNop().Sugar()

// Options 日志输出选项
type Options struct {
	FilePath string        // 为空则不写文件
	Console  bool          // 同时输出到 stderr
	Level    zapcore.Level // 最低级别
	Name     string        // logger 名称，如 "server" / "client"
}

// InitLogger 初始化 zap 日志到本地文件（支持滚动），可选同时输出到控制台
func InitLogger(opts Options) error {
	encCfg := zapcore.EncoderConfig{
		TimeKey:       "ts",
		LevelKey:      "level",
		NameKey:       "logger",
		CallerKey:     "caller",
		MessageKey:    "msg",
		StacktraceKey: "stack",
		LineEnding:    zapcore.DefaultLineEnding,
		EncodeLevel:   zapcore.CapitalLevelEncoder,
		EncodeTime:    zapcore.ISO8601TimeEncoder,
		EncodeCaller:  zapcore.ShortCallerEncoder,
		EncodeName:    zapcore.FullNameEncoder,
	}
	encoder := zapcore.NewConsoleEncoder(encCfg)

	var cores []zapcore.Core
	if opts.FilePath != "" {
		// 文件滚动策略：10MB 每文件，保留3个备份，最多保留 7 天
		lj := &lumberjack.Logger{
			Filename:   opts.FilePath,
			MaxSize:    10, // MB
			MaxBackups: 3,
			MaxAge:     7, // days
			Compress:   false,
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(lj), opts.Level))
	}
	if opts.Console || len(cores) == 0 {
		cores = append(cores, zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), opts.Level))
	}

	l := zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	if opts.Name != "" {
		l = l.Named(opts.Name)
	}
	Log = l.Sugar()
	return nil
}

// SyncLogger 清理和同步缓冲
func SyncLogger() {
	if Log != nil {
		_ = Log.Sync()
	}
}
