package dbg

import (
	"context"
	"log/slog"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// InstallSlog routes the library's slog output through the process zap
// logger, so binaries get a single log stream.
func InstallSlog(logger *zap.Logger) {
	slog.SetDefault(slog.New(&slogBridge{logger: logger}))
}

type slogBridge struct {
	logger *zap.Logger
	fields []zap.Field
}

func (b *slogBridge) Enabled(_ context.Context, level slog.Level) bool {
	return b.logger.Core().Enabled(zapLevel(level))
}

func (b *slogBridge) Handle(_ context.Context, record slog.Record) error {
	entry := b.logger.Check(zapLevel(record.Level), record.Message)
	if entry == nil {
		return nil
	}

	fields := make([]zap.Field, 0, len(b.fields)+record.NumAttrs())
	fields = append(fields, b.fields...)
	record.Attrs(func(attr slog.Attr) bool {
		fields = append(fields, zap.Any(attr.Key, attr.Value.Any()))
		return true
	})
	entry.Write(fields...)
	return nil
}

func (b *slogBridge) WithAttrs(attrs []slog.Attr) slog.Handler {
	fields := make([]zap.Field, 0, len(b.fields)+len(attrs))
	fields = append(fields, b.fields...)
	for _, attr := range attrs {
		fields = append(fields, zap.Any(attr.Key, attr.Value.Any()))
	}
	return &slogBridge{logger: b.logger, fields: fields}
}

func (b *slogBridge) WithGroup(name string) slog.Handler {
	return &slogBridge{logger: b.logger.Named(name), fields: b.fields}
}

func zapLevel(level slog.Level) zapcore.Level {
	switch {
	case level >= slog.LevelError:
		return zapcore.ErrorLevel
	case level >= slog.LevelWarn:
		return zapcore.WarnLevel
	case level >= slog.LevelInfo:
		return zapcore.InfoLevel
	}
	return zapcore.DebugLevel
}
