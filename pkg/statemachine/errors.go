package statemachine

import "errors"

var (
	// ErrNoMatchingTransition 当前状态下没有匹配该事件的转换
	ErrNoMatchingTransition = errors.New("statemachine: no matching transition")

	// ErrCancelled 延迟转换在看门狗超时前未完成
	ErrCancelled = errors.New("statemachine: transition cancelled")

	// ErrMachineUnavailable 状态机已关闭
	ErrMachineUnavailable = errors.New("statemachine: machine unavailable")

	// ErrTransitionPanic 转换产出函数发生 panic
	ErrTransitionPanic = errors.New("statemachine: transition panic")

	// ErrInvalidTransition 转换定义不合法
	ErrInvalidTransition = errors.New("statemachine: invalid transition")

	// ErrDuplicateTransition 当转换规则已存在时返回
	ErrDuplicateTransition = errors.New("statemachine: duplicate transition")
)
