package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/junbin-yang/go-fsmkit/pkg/logger"
)

// DefaultDebounce 文件变化后的默认重载防抖间隔
const DefaultDebounce = 500 * time.Millisecond

var (
	ErrNotLoaded = errors.New("config: not loaded")
	ErrNotFound  = errors.New("config: no config file found")
	ErrClosed    = errors.New("config: manager closed")
)

// ChangeFunc 配置重载后的回调，old 与 new 均为配置结构体指针
type ChangeFunc func(old, new interface{})

// ConfigManager 配置文件加载、保存与热重载。
//
// 加载顺序：默认值，文件，env 标签。重载时以创建时默认值的副本为底构造新实例，
// 文件中缺省的字段回到默认值；成功后整体替换，调用方持有的旧实例不会被修改。
type ConfigManager struct {
	mu       sync.RWMutex
	instance interface{}
	defaults interface{}
	path     string
	loaded   bool

	appName          string
	serializer       Serializer
	forceFormat      Serializer
	supportedFormats []Serializer
	defaultPaths     []string

	enableWatch bool
	debounce    time.Duration
	watcher     *fsnotify.Watcher
	watchDone   chan struct{}
	closed      bool

	callbacks []ChangeFunc
	log       logger.Logger
}

// NewConfigManager 创建配置管理器，cfg 必须是结构体指针，其中的值作为默认配置
func NewConfigManager(cfg interface{}, options ...Option) *ConfigManager {
	if v := reflect.ValueOf(cfg); cfg == nil || v.Kind() != reflect.Ptr || v.IsNil() {
		panic("config: instance must be a non-nil pointer")
	}

	cm := &ConfigManager{
		instance:         cfg,
		defaults:         clone(cfg),
		appName:          "app",
		serializer:       YAML,
		supportedFormats: []Serializer{YAML, JSON, INI},
		defaultPaths: []string{
			"./{{.AppName}}",
			"{{.ExecDir}}/{{.AppName}}",
			"/etc/{{.AppName}}",
		},
		debounce: DefaultDebounce,
		log:      logger.Default(),
	}

	for _, opt := range options {
		opt(cm)
	}
	return cm
}

// LoadConfig 加载配置。customPath 为空时按默认路径查找。
// 重复调用会重新读取文件，但只有首次成功加载会启动监听。
func (cm *ConfigManager) LoadConfig(customPath string) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.closed {
		return ErrClosed
	}

	path := customPath
	if path != "" {
		if err := checkConfigFile(path); err != nil {
			return err
		}
		cm.serializer = cm.chooseSerializer(path)
	} else {
		var err error
		if path, err = cm.findDefaultConfigPath(); err != nil {
			return err
		}
	}

	if err := cm.decode(path, cm.instance); err != nil {
		return err
	}

	first := !cm.loaded
	cm.path = path
	cm.loaded = true

	cm.log.Info("config loaded",
		logger.String("path", path),
		logger.String("format", cm.serializer.Name()),
	)

	if first && cm.enableWatch {
		return cm.startWatch()
	}
	return nil
}

// GetConfig 返回当前配置实例
func (cm *ConfigManager) GetConfig() (interface{}, error) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if !cm.loaded {
		return nil, ErrNotLoaded
	}
	return cm.instance, nil
}

// Path 返回已加载的配置文件路径
func (cm *ConfigManager) Path() string {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.path
}

// SaveConfig 将当前配置写回文件，先写临时文件再替换
func (cm *ConfigManager) SaveConfig() error {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if !cm.loaded {
		return ErrNotLoaded
	}

	data, err := cm.serializer.Marshal(cm.instance)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	tmp := cm.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := os.Rename(tmp, cm.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}

// ReloadConfig 重新读取配置文件，成功后依次通知回调
func (cm *ConfigManager) ReloadConfig() error {
	cm.mu.Lock()

	if !cm.loaded {
		cm.mu.Unlock()
		return ErrNotLoaded
	}

	next := clone(cm.defaults)
	if err := cm.decode(cm.path, next); err != nil {
		cm.mu.Unlock()
		return err
	}

	old := cm.instance
	cm.instance = next
	callbacks := append([]ChangeFunc(nil), cm.callbacks...)
	cm.mu.Unlock()

	// 回调在锁外执行，允许回调内读取配置
	for _, fn := range callbacks {
		fn(old, next)
	}
	return nil
}

// OnChange 注册重载回调
func (cm *ConfigManager) OnChange(fn ChangeFunc) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks = append(cm.callbacks, fn)
}

// EnableWatch 动态开启或关闭文件监听
func (cm *ConfigManager) EnableWatch(enable bool) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.closed {
		return ErrClosed
	}

	cm.enableWatch = enable
	if !enable {
		cm.stopWatch()
		return nil
	}
	if !cm.loaded {
		return nil
	}
	return cm.startWatch()
}

// Watching 是否正在监听配置文件
func (cm *ConfigManager) Watching() bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.watcher != nil
}

// Close 停止监听，可重复调用
func (cm *ConfigManager) Close() {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.closed = true
	cm.stopWatch()
}

func (cm *ConfigManager) decode(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := cm.serializer.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal config (%s): %w", cm.serializer.Name(), err)
	}
	if err := applyEnvOverrides(v); err != nil {
		return fmt.Errorf("apply env overrides: %w", err)
	}
	return nil
}

// chooseSerializer 强制格式 > 后缀识别 > 当前序列化器
func (cm *ConfigManager) chooseSerializer(path string) Serializer {
	if cm.forceFormat != nil {
		return cm.forceFormat
	}

	ext := filepath.Ext(path)
	for _, format := range cm.supportedFormats {
		for _, e := range format.Extensions() {
			if e == ext {
				return format
			}
		}
	}
	return cm.serializer
}

func (cm *ConfigManager) findDefaultConfigPath() (string, error) {
	execPath, _ := os.Executable()
	vars := map[string]string{
		"AppName": cm.appName,
		"ExecDir": filepath.Dir(execPath),
	}

	for _, tpl := range cm.defaultPaths {
		base, err := expandPath(tpl, vars)
		if err != nil {
			return "", err
		}

		if checkConfigFile(base) == nil {
			cm.serializer = cm.chooseSerializer(base)
			return base, nil
		}

		for _, format := range cm.supportedFormats {
			for _, ext := range format.Extensions() {
				if p := base + ext; checkConfigFile(p) == nil {
					cm.serializer = format
					if cm.forceFormat != nil {
						cm.serializer = cm.forceFormat
					}
					return p, nil
				}
			}
		}
	}

	return "", fmt.Errorf("%w (app %q)", ErrNotFound, cm.appName)
}

// startWatch 监听配置文件所在目录，编辑器以改名方式保存时也能感知
func (cm *ConfigManager) startWatch() error {
	if cm.watcher != nil {
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(cm.path)); err != nil {
		_ = w.Close()
		return fmt.Errorf("watch %s: %w", cm.path, err)
	}

	cm.watcher = w
	cm.watchDone = make(chan struct{})
	go cm.watchLoop(w, filepath.Clean(cm.path), cm.watchDone)

	cm.log.Debug("config watch started", logger.String("path", cm.path))
	return nil
}

func (cm *ConfigManager) stopWatch() {
	if cm.watcher == nil {
		return
	}
	_ = cm.watcher.Close()
	close(cm.watchDone)
	cm.watcher = nil
	cm.watchDone = nil
}

func (cm *ConfigManager) watchLoop(w *fsnotify.Watcher, target string, done <-chan struct{}) {
	debounce := time.NewTimer(time.Hour)
	debounce.Stop()
	defer debounce.Stop()

	for {
		select {
		case <-done:
			return

		case event, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				debounce.Reset(cm.debounce)
			}

		case <-debounce.C:
			if err := cm.ReloadConfig(); err != nil {
				cm.log.Warn("config reload failed", logger.String("path", target), logger.Err(err))
				continue
			}
			cm.log.Info("config reloaded", logger.String("path", target))

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			cm.log.Error("config watch error", logger.Err(err))
		}
	}
}
