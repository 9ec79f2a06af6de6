package config

import (
	"time"

	"github.com/junbin-yang/go-fsmkit/pkg/logger"
)

// Option 配置管理器选项
type Option func(*ConfigManager)

// WithAppName 设置应用名称，用于拼接默认配置文件名
func WithAppName(name string) Option {
	return func(cm *ConfigManager) {
		cm.appName = name
	}
}

// WithSerializer 设置无法按后缀识别时使用的序列化器
func WithSerializer(s Serializer) Option {
	return func(cm *ConfigManager) {
		cm.serializer = s
	}
}

// WithForceFormat 强制指定配置格式，忽略文件后缀
func WithForceFormat(s Serializer) Option {
	return func(cm *ConfigManager) {
		cm.forceFormat = s
	}
}

// WithDefaultPaths 设置默认查找路径模板，支持 {{.AppName}} 与 {{.ExecDir}}
func WithDefaultPaths(paths ...string) Option {
	return func(cm *ConfigManager) {
		cm.defaultPaths = paths
	}
}

// WithConfigFormats 设置按后缀识别的格式列表
func WithConfigFormats(formats ...Serializer) Option {
	return func(cm *ConfigManager) {
		cm.supportedFormats = formats
	}
}

// WithConfigWatch 文件变化后自动重载，interval 为防抖间隔
func WithConfigWatch(enable bool, interval time.Duration) Option {
	return func(cm *ConfigManager) {
		cm.enableWatch = enable
		cm.debounce = interval
		if interval <= 0 {
			cm.debounce = DefaultDebounce
		}
	}
}

// WithLogger 设置日志
func WithLogger(l logger.Logger) Option {
	return func(cm *ConfigManager) {
		cm.log = l
	}
}
