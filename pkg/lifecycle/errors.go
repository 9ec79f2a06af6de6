package lifecycle

import "errors"

var (
	// ErrWorkerExists 同名协程已注册
	ErrWorkerExists = errors.New("lifecycle: worker already exists")

	// ErrAlreadyRunning 管理器已在运行，不能再次 Run 或追加协程
	ErrAlreadyRunning = errors.New("lifecycle: manager already running")

	// ErrShutdownTimeout 协程未在超时内退出
	ErrShutdownTimeout = errors.New("lifecycle: shutdown timed out")
)
