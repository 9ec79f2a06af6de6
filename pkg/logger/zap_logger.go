package logger

import (
	"io"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const timeLayout = "2006-01-02 15:04:05.000"

// ZapLogger Logger 的 zap 实现。With 派生的子日志器与父日志器共享级别，
// SetLevel 对整棵日志器树同时生效。
type ZapLogger struct {
	z     *zap.Logger
	sugar *zap.SugaredLogger
	level zap.AtomicLevel
}

var _ Logger = (*ZapLogger)(nil)

// New 创建控制台格式的日志器，out 为 nil 时写 stderr
func New(out io.Writer, level Level, opts ...Option) *ZapLogger {
	if out == nil {
		out = os.Stderr
	}

	al := zap.NewAtomicLevelAt(toZapLevel(level))
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig()),
		zapcore.Lock(zapcore.AddSync(out)),
		al,
	)
	return wrap(zap.New(core, opts...), al)
}

// Nop 丢弃全部输出，测试中使用
func Nop() *ZapLogger {
	return wrap(zap.NewNop(), zap.NewAtomicLevel())
}

func wrap(z *zap.Logger, level zap.AtomicLevel) *ZapLogger {
	return &ZapLogger{z: z, sugar: z.Sugar(), level: level}
}

// encoderConfig 时间、级别、调用位置均以方括号包裹：
// [2006-01-02 15:04:05.000] [INFO] [statemachine/machine.go:84] msg {"machine": "..."}
func encoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString("[" + t.Format(timeLayout) + "]")
	}
	cfg.EncodeLevel = func(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString("[" + l.CapitalString() + "]")
	}
	cfg.EncodeCaller = func(c zapcore.EntryCaller, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString("[" + c.TrimmedPath() + "]")
	}
	cfg.EncodeDuration = zapcore.StringDurationEncoder
	cfg.ConsoleSeparator = " "
	return cfg
}

// With 返回携带固定字段的子日志器，状态机用它给每条日志带上 machine id
func (l *ZapLogger) With(fields ...Field) Logger {
	return wrap(l.z.With(fields...), l.level)
}

func (l *ZapLogger) SetLevel(level Level) { l.level.SetLevel(toZapLevel(level)) }
func (l *ZapLogger) Sync() error          { return l.z.Sync() }

func (l *ZapLogger) Debug(msg string, fields ...Field) { l.z.Debug(msg, fields...) }
func (l *ZapLogger) Info(msg string, fields ...Field)  { l.z.Info(msg, fields...) }
func (l *ZapLogger) Warn(msg string, fields ...Field)  { l.z.Warn(msg, fields...) }
func (l *ZapLogger) Error(msg string, fields ...Field) { l.z.Error(msg, fields...) }
func (l *ZapLogger) Panic(msg string, fields ...Field) { l.z.Panic(msg, fields...) }
func (l *ZapLogger) Fatal(msg string, fields ...Field) { l.z.Fatal(msg, fields...) }

func (l *ZapLogger) Debugf(format string, v ...interface{}) { l.sugar.Debugf(format, v...) }
func (l *ZapLogger) Infof(format string, v ...interface{})  { l.sugar.Infof(format, v...) }
func (l *ZapLogger) Warnf(format string, v ...interface{})  { l.sugar.Warnf(format, v...) }
func (l *ZapLogger) Errorf(format string, v ...interface{}) { l.sugar.Errorf(format, v...) }
func (l *ZapLogger) Panicf(format string, v ...interface{}) { l.sugar.Panicf(format, v...) }
func (l *ZapLogger) Fatalf(format string, v ...interface{}) { l.sugar.Fatalf(format, v...) }
