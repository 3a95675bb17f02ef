// Package audiotest 提供不依赖硬件的音频后端，用于测试转发会话和生命周期控制。
package audiotest

import (
	"bytes"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"virtual_mic/audio"
)

// DefaultFrames 未指定块大小时每次回调的帧数
const DefaultFrames = 64

// Backend 内存中的音频后端
//
// 每个打开并启动的流都有一个 goroutine 模拟后端的实时线程：在两次回调之间
// 轮询停止信号，按固定节奏调用转发回调。
type Backend struct {
	mu         sync.Mutex
	devices    []audio.Device
	openErr    error
	startErr   error
	closeDelay time.Duration
	closeGate  chan struct{}
	period     time.Duration

	opens   int
	closes  int
	openNow int
	maxOpen int
	streams []*Stream

	status atomic.Uint32
}

// New 创建带有给定设备的后端
func New(devices ...audio.Device) *Backend {
	return &Backend{
		devices: devices,
		period:  time.Millisecond,
	}
}

// SetDevices 替换设备列表
func (b *Backend) SetDevices(devices ...audio.Device) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.devices = devices
}

// FailOpen 之后的 OpenStream 返回 err；nil 取消
func (b *Backend) FailOpen(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.openErr = err
}

// FailStart 之后的 Stream.Start 返回 err；nil 取消
func (b *Backend) FailStart(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.startErr = err
}

// SetCloseDelay 模拟缓慢的设备关闭
func (b *Backend) SetCloseDelay(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closeDelay = d
}

// BlockClose 使之后的 Close 阻塞，直到调用返回的 release
func (b *Backend) BlockClose() (release func()) {
	gate := make(chan struct{})
	b.mu.Lock()
	b.closeGate = gate
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { close(gate) })
	}
}

// InjectStatus 之后的回调都带上该状态标志
func (b *Backend) InjectStatus(status audio.StreamStatus) {
	b.status.Store(uint32(status))
}

// Devices 返回设备列表的副本
func (b *Backend) Devices() ([]audio.Device, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]audio.Device, len(b.devices))
	copy(out, b.devices)
	return out, nil
}

// OpenStream 记录一次打开
func (b *Backend) OpenStream(cfg audio.StreamConfig) (audio.Stream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.openErr != nil {
		return nil, b.openErr
	}

	s := &Stream{
		cfg:     cfg,
		backend: b,
		stop:    make(chan struct{}),
		exited:  make(chan struct{}),
	}
	b.opens++
	b.openNow++
	if b.openNow > b.maxOpen {
		b.maxOpen = b.openNow
	}
	b.streams = append(b.streams, s)
	return s, nil
}

// Opens 累计打开次数
func (b *Backend) Opens() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opens
}

// Closes 累计完成关闭的次数
func (b *Backend) Closes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closes
}

// OpenNow 当前处于打开状态的流数量
func (b *Backend) OpenNow() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.openNow
}

// MaxOpen 同时打开的流数量峰值
func (b *Backend) MaxOpen() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.maxOpen
}

// Streams 所有打开过的流，按打开顺序
func (b *Backend) Streams() []*Stream {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Stream, len(b.streams))
	copy(out, b.streams)
	return out
}

// Last 最近打开的流
func (b *Backend) Last() *Stream {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.streams) == 0 {
		return nil
	}
	return b.streams[len(b.streams)-1]
}

func (b *Backend) closed() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closes++
	b.openNow--
}

// Stream 模拟流
type Stream struct {
	cfg     audio.StreamConfig
	backend *Backend

	stop      chan struct{}
	exited    chan struct{}
	started   atomic.Bool
	closeOnce sync.Once
	closed    atomic.Bool

	calls       atomic.Uint64
	passthrough atomic.Uint64
	silent      atomic.Uint64
}

// Config 打开时的参数
func (s *Stream) Config() audio.StreamConfig { return s.cfg }

// Calls 回调次数
func (s *Stream) Calls() uint64 { return s.calls.Load() }

// Passthrough 输出与输入完全一致的回调次数
func (s *Stream) Passthrough() uint64 { return s.passthrough.Load() }

// Silent 输出全为零的回调次数
func (s *Stream) Silent() uint64 { return s.silent.Load() }

// Closed 是否已完成关闭
func (s *Stream) Closed() bool { return s.closed.Load() }

// WaitCalls 等待至少 n 次回调
func (s *Stream) WaitCalls(n uint64, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if s.calls.Load() >= n {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return s.calls.Load() >= n
}

// Start 启动模拟的实时线程
func (s *Stream) Start() error {
	s.backend.mu.Lock()
	err := s.backend.startErr
	period := s.backend.period
	s.backend.mu.Unlock()
	if err != nil {
		return err
	}
	if !s.started.CompareAndSwap(false, true) {
		return errors.New("stream already started")
	}
	go s.run(period)
	return nil
}

func (s *Stream) run(period time.Duration) {
	defer close(s.exited)

	frames := uint32(DefaultFrames)
	if s.cfg.Format.BlockSize > 0 {
		frames = uint32(s.cfg.Format.BlockSize)
	}
	n := int(frames) * s.cfg.Format.BytesPerFrame()
	in := make([]byte, n)
	out := make([]byte, n)
	zero := make([]byte, n)

	for seq := 0; ; seq++ {
		if s.cfg.Shutdown != nil && s.cfg.Shutdown.IsSignaled() {
			return
		}
		select {
		case <-s.stop:
			return
		default:
		}

		for i := range in {
			in[i] = byte(seq + i*7 + 1)
		}
		for i := range out {
			out[i] = 0xAA
		}

		status := audio.StreamStatus(s.backend.status.Load())
		s.cfg.Callback(out, in, frames, status)
		s.calls.Add(1)

		switch {
		case bytes.Equal(out, in):
			s.passthrough.Add(1)
		case bytes.Equal(out, zero):
			s.silent.Add(1)
		}

		time.Sleep(period)
	}
}

// Close 停止模拟线程并等待其退出，然后按配置延迟或阻塞
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		close(s.stop)
		if s.started.Load() {
			<-s.exited
		}

		s.backend.mu.Lock()
		delay, gate := s.backend.closeDelay, s.backend.closeGate
		s.backend.mu.Unlock()

		if delay > 0 {
			time.Sleep(delay)
		}
		if gate != nil {
			<-gate
		}

		s.closed.Store(true)
		s.backend.closed()
	})
	return nil
}
