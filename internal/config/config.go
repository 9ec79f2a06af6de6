// Package config 状态机演示程序的配置
package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/junbin-yang/go-fsmkit/pkg/logger"
	"github.com/junbin-yang/go-fsmkit/pkg/statemachine"
)

// Config 应用配置
type Config struct {
	Machine Machine `yaml:"machine" json:"machine" ini:"machine"`
	Logger  Logger  `yaml:"logger" json:"logger" ini:"logger"`
}

// Machine 状态机参数
type Machine struct {
	DeferredTimeout time.Duration `yaml:"deferred_timeout" json:"deferred_timeout" ini:"deferred_timeout" env:"FSM_DEFERRED_TIMEOUT"`
	QueueSize       int           `yaml:"queue_size" json:"queue_size" ini:"queue_size" env:"FSM_QUEUE_SIZE"`
}

// Logger 日志参数。Output 为 stdout、stderr 或文件路径
type Logger struct {
	Level  string `yaml:"level" json:"level" ini:"level" env:"FSM_LOG_LEVEL"`
	Output string `yaml:"output" json:"output" ini:"output" env:"FSM_LOG_OUTPUT"`

	// Rotate 为 size 或 time，仅在输出到文件时生效
	Rotate       string        `yaml:"rotate" json:"rotate" ini:"rotate"`
	MaxSize      int           `yaml:"max_size" json:"max_size" ini:"max_size"`
	MaxBackups   int           `yaml:"max_backups" json:"max_backups" ini:"max_backups"`
	MaxAge       int           `yaml:"max_age" json:"max_age" ini:"max_age"`
	Compress     bool          `yaml:"compress" json:"compress" ini:"compress"`
	RotationTime time.Duration `yaml:"rotation_time" json:"rotation_time" ini:"rotation_time"`
}

// Default 默认配置
func Default() *Config {
	return &Config{
		Machine: Machine{
			DeferredTimeout: statemachine.DefaultDeferredTimeout,
			QueueSize:       statemachine.DefaultQueueSize,
		},
		Logger: Logger{
			Level:        "info",
			Output:       "stdout",
			Rotate:       "size",
			MaxSize:      100,
			MaxBackups:   10,
			MaxAge:       30,
			Compress:     true,
			RotationTime: 24 * time.Hour,
		},
	}
}

// Validate 检查取值范围
func (c *Config) Validate() error {
	if c.Machine.DeferredTimeout <= 0 {
		return fmt.Errorf("machine.deferred_timeout must be positive, got %v", c.Machine.DeferredTimeout)
	}
	if c.Machine.QueueSize < 0 {
		return fmt.Errorf("machine.queue_size must not be negative, got %d", c.Machine.QueueSize)
	}
	switch c.Logger.Rotate {
	case "", "size", "time":
	default:
		return fmt.Errorf("logger.rotate must be size or time, got %q", c.Logger.Rotate)
	}
	return nil
}

// MachineOptions 转换为状态机选项
func (c *Config) MachineOptions() []statemachine.Option {
	return []statemachine.Option{
		statemachine.WithDeferredTimeout(c.Machine.DeferredTimeout),
		statemachine.WithQueueSize(c.Machine.QueueSize),
	}
}

// NewLogger 按日志配置创建 Logger
func (c *Config) NewLogger(opts ...logger.Option) *logger.ZapLogger {
	return logger.New(c.Logger.writer(), logger.ParseLevel(c.Logger.Level), opts...)
}

func (l Logger) writer() io.Writer {
	switch l.Output {
	case "", "stdout":
		return os.Stdout
	case "stderr":
		return os.Stderr
	}

	rc := &logger.RotateConfig{
		Filename:     l.Output,
		MaxSize:      l.MaxSize,
		MaxBackups:   l.MaxBackups,
		MaxAge:       l.MaxAge,
		Compress:     l.Compress,
		RotationTime: l.RotationTime,
		LocalTime:    true,
	}
	if l.Rotate == "time" {
		return logger.NewRotateByTime(rc)
	}
	return logger.NewRotateBySize(rc)
}
