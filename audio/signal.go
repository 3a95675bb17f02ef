package audio

import (
	"context"
	"sync"
	"time"
)

// Signal 跨线程的一次性停止信号
//
// 控制线程调用 Signal 请求终止；拥有外层循环的音频线程在两次回调之间用
// IsSignaled 轮询；控制线程的等待者用 Wait 带超时阻塞。实时回调内部不得调用 Wait。
type Signal struct {
	once sync.Once
	done chan struct{}
}

// NewSignal 创建未触发的信号
func NewSignal() *Signal {
	return &Signal{done: make(chan struct{})}
}

// Signal 触发信号，仅第一次生效
func (s *Signal) Signal() {
	s.once.Do(func() { close(s.done) })
}

// IsSignaled 非阻塞查询
func (s *Signal) IsSignaled() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Wait 阻塞直到信号触发或超时，返回是否已触发
func (s *Signal) Wait(timeout time.Duration) bool {
	if s.IsSignaled() {
		return true
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.WaitContext(ctx)
}

// WaitContext 阻塞直到信号触发或 ctx 结束
func (s *Signal) WaitContext(ctx context.Context) bool {
	select {
	case <-s.done:
		return true
	case <-ctx.Done():
		return s.IsSignaled()
	}
}

// Done 返回触发时关闭的通道
func (s *Signal) Done() <-chan struct{} {
	return s.done
}
