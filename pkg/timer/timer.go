package timer

import (
	"errors"
	"sort"
	"sync"
	"time"
)

var (
	// ErrTimerExists 定时器ID已存在
	ErrTimerExists = errors.New("timer: id already exists")

	// ErrTimerNotFound 定时器不存在（可能已触发）
	ErrTimerNotFound = errors.New("timer: not found")

	// ErrInvalidInterval 间隔必须为正
	ErrInvalidInterval = errors.New("timer: interval must be positive")
)

// TimerInfo 定时器信息
type TimerInfo struct {
	ID        string
	Interval  time.Duration
	IsOnce    bool
	CreatedAt time.Time
}

type entry struct {
	info  TimerInfo
	timer *time.Timer
	stop  chan struct{}
}

// Manager 命名定时器管理器，一次性定时器触发后自动移除
type Manager struct {
	mu     sync.Mutex
	timers map[string]*entry
}

// NewManager 创建定时器管理器
func NewManager() *Manager {
	return &Manager{timers: make(map[string]*entry)}
}

// CreateOnceTimer 创建一次性定时器，delay 后执行 fn
func (m *Manager) CreateOnceTimer(id string, delay time.Duration, fn func()) error {
	if delay <= 0 {
		return ErrInvalidInterval
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.timers[id]; exists {
		return ErrTimerExists
	}

	e := &entry{info: TimerInfo{ID: id, Interval: delay, IsOnce: true, CreatedAt: time.Now()}}
	e.timer = time.AfterFunc(delay, func() {
		m.mu.Lock()
		if m.timers[id] == e {
			delete(m.timers, id)
		}
		m.mu.Unlock()
		fn()
	})
	m.timers[id] = e
	return nil
}

// CreateTimer 创建周期性定时器
func (m *Manager) CreateTimer(id string, interval time.Duration, fn func()) error {
	if interval <= 0 {
		return ErrInvalidInterval
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.timers[id]; exists {
		return ErrTimerExists
	}

	e := &entry{
		info: TimerInfo{ID: id, Interval: interval, CreatedAt: time.Now()},
		stop: make(chan struct{}),
	}
	m.timers[id] = e

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-e.stop:
				return
			case <-ticker.C:
				fn()
			}
		}
	}()
	return nil
}

// RemoveTimer 停止并移除定时器
func (m *Manager) RemoveTimer(id string) error {
	m.mu.Lock()
	e, exists := m.timers[id]
	if exists {
		delete(m.timers, id)
	}
	m.mu.Unlock()

	if !exists {
		return ErrTimerNotFound
	}
	e.halt()
	return nil
}

// GetTimer 查询定时器信息
func (m *Manager) GetTimer(id string) (TimerInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.timers[id]
	if !ok {
		return TimerInfo{}, false
	}
	return e.info, true
}

// ListTimers 返回排序后的定时器ID
func (m *Manager) ListTimers() []string {
	m.mu.Lock()
	ids := make([]string, 0, len(m.timers))
	for id := range m.timers {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	sort.Strings(ids)
	return ids
}

// GetTimerCount 返回活跃定时器数量
func (m *Manager) GetTimerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

// StopAll 停止所有定时器
func (m *Manager) StopAll() {
	m.mu.Lock()
	timers := m.timers
	m.timers = make(map[string]*entry)
	m.mu.Unlock()

	for _, e := range timers {
		e.halt()
	}
}

func (e *entry) halt() {
	if e.timer != nil {
		e.timer.Stop()
	}
	if e.stop != nil {
		close(e.stop)
	}
}
