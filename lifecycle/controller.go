// Package lifecycle 将外部控制请求（启动、停止、切换输入、退出）串行地映射到转发会话上，
// 并向托盘等外部协作方报告状态变化。
package lifecycle

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"virtual_mic/audio"
)

var (
	// ErrUnknownSession 句柄不是当前会话
	ErrUnknownSession = errors.New("未知的会话句柄")
	// ErrClosed 控制器已退出
	ErrClosed = errors.New("控制器已退出")
)

// SessionHandle 一次启动对应的句柄
type SessionHandle string

// Options 控制器参数
type Options struct {
	// InputName 输入设备名称子串，空表示主机默认输入设备
	InputName string
	// OutputName 虚拟声卡名称子串
	OutputName  string
	Format      audio.Format
	StopTimeout time.Duration
	// EventBuffer 事件通道容量，满时丢弃最旧的事件
	EventBuffer int
}

// Event 对外发布的状态变化
type Event struct {
	State  audio.State
	Detail string
	Handle SessionHandle
	Input  string
	Output string
	At     time.Time
}

// Result 控制请求的结果
type Result struct {
	State  audio.State
	Handle SessionHandle
	Detail string
}

// Controller 生命周期控制器
type Controller struct {
	registry *audio.Registry
	session  *audio.Session
	opts     Options

	mu     sync.Mutex
	closed bool

	handle  atomic.Value
	events  chan Event
	dropped atomic.Uint64
	quit    *audio.Signal
}

// New 创建控制器
func New(backend audio.Backend, opts Options) *Controller {
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 32
	}

	c := &Controller{
		registry: audio.NewRegistry(backend),
		opts:     opts,
		events:   make(chan Event, opts.EventBuffer),
		quit:     audio.NewSignal(),
	}
	c.handle.Store(SessionHandle(""))
	c.session = audio.NewSession(backend, c.registry, audio.SessionOptions{
		StopTimeout: opts.StopTimeout,
		Listener:    c.emit,
	})
	return c
}

// Registry 设备注册表
func (c *Controller) Registry() *audio.Registry { return c.registry }

// Events 状态变化事件；退出后通道关闭
func (c *Controller) Events() <-chan Event { return c.events }

// Done 退出完成后关闭
func (c *Controller) Done() <-chan struct{} { return c.quit.Done() }

// Snapshot 当前会话状态
func (c *Controller) Snapshot() audio.Snapshot { return c.session.Snapshot() }

// Stats 当前转发统计
func (c *Controller) Stats() audio.ForwardStats { return c.session.Stats() }

// Handle 当前会话句柄
func (c *Controller) Handle() SessionHandle { return c.handle.Load().(SessionHandle) }

// DroppedEvents 因消费过慢被丢弃的事件数
func (c *Controller) DroppedEvents() uint64 { return c.dropped.Load() }

// ListDevices 枚举设备
func (c *Controller) ListDevices() ([]audio.Device, error) {
	return c.registry.Enumerate()
}

// Start 以给定设备和格式启动转发；inputID 为空时使用默认输入设备
func (c *Controller) Start(inputID, outputID audio.DeviceID, format audio.Format) (SessionHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startLocked(inputID, outputID, format)
}

// Stop 停止句柄对应的会话
func (c *Controller) Stop(h SessionHandle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkHandle(h); err != nil {
		return err
	}
	return c.session.Stop()
}

// SwitchInput 切换句柄对应会话的输入设备
func (c *Controller) SwitchInput(h SessionHandle, inputID audio.DeviceID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if err := c.checkHandle(h); err != nil {
		return err
	}
	return c.session.SwitchInput(inputID)
}

// HandleStart 按配置的设备名称解析设备并启动转发；解析失败同样使会话进入 Error
func (c *Controller) HandleStart() (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkStartable(); err != nil {
		return c.result(err.Error()), err
	}

	input, err := c.resolveInput(c.opts.InputName)
	if err != nil {
		err = c.session.Fail(fmt.Errorf("解析输入设备失败: %w", err))
		return c.result(err.Error()), err
	}
	output, err := c.registry.FindByName(c.opts.OutputName, audio.CanPlayback())
	if err != nil {
		err = c.session.Fail(fmt.Errorf("解析输出设备失败: %w", err))
		return c.result(err.Error()), err
	}

	if _, err := c.startLocked(input.ID, output.ID, c.opts.Format); err != nil {
		return c.result(err.Error()), err
	}
	return c.result(""), nil
}

// HandleStop 停止当前会话
func (c *Controller) HandleStop() (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.session.Stop(); err != nil {
		return c.result(err.Error()), err
	}
	return c.result(""), nil
}

// HandleSwitchDevice 切换输入设备
func (c *Controller) HandleSwitchDevice(id audio.DeviceID) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return c.result(""), ErrClosed
	}
	if err := c.session.SwitchInput(id); err != nil {
		return c.result(err.Error()), err
	}
	return c.result(""), nil
}

// HandleQuit 停止会话（或等待超时）后通知事件循环退出
func (c *Controller) HandleQuit() (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return c.result(""), nil
	}

	err := c.session.Stop()
	c.closed = true
	close(c.events)
	c.quit.Signal()

	log.Info().Str("module", "lifecycle.controller").Msg("控制器已退出")
	if err != nil {
		return c.result(err.Error()), err
	}
	return c.result(""), nil
}

// ResolveInput 将设备标识或名称子串解析为输入设备
func (c *Controller) ResolveInput(query string) (audio.Device, error) {
	if dev, err := c.registry.Lookup(audio.DeviceID(query)); err == nil && dev.CanCapture() {
		return dev, nil
	}
	return c.registry.FindByName(query, audio.CanCapture())
}

func (c *Controller) resolveInput(name string) (audio.Device, error) {
	if name == "" {
		return c.registry.DefaultInput()
	}
	return c.registry.FindByName(name, audio.CanCapture())
}

func (c *Controller) startLocked(inputID, outputID audio.DeviceID, format audio.Format) (SessionHandle, error) {
	if err := c.checkStartable(); err != nil {
		return "", err
	}

	if inputID == "" {
		dev, err := c.registry.DefaultInput()
		if err != nil {
			return "", c.session.Fail(err)
		}
		inputID = dev.ID
	}

	h := SessionHandle(uuid.NewString())
	c.handle.Store(h)
	if err := c.session.Start(inputID, outputID, format); err != nil {
		return h, fmt.Errorf("启动转发失败: %w", err)
	}

	log.Info().Str("module", "lifecycle.controller").Str("handle", string(h)).Msg("会话已启动")
	return h, nil
}

// checkStartable 在解析任何设备之前检查会话能否启动
func (c *Controller) checkStartable() error {
	if c.closed {
		return ErrClosed
	}
	switch c.session.State() {
	case audio.StateIdle:
		return nil
	case audio.StateError:
		return audio.ErrSessionFailed
	default:
		return audio.ErrAlreadyRunning
	}
}

func (c *Controller) checkHandle(h SessionHandle) error {
	if h == "" || h != c.Handle() {
		return fmt.Errorf("%w: %s", ErrUnknownSession, h)
	}
	return nil
}

func (c *Controller) result(detail string) Result {
	snap := c.session.Snapshot()
	if detail == "" {
		detail = snap.Detail
	}
	return Result{State: snap.State, Handle: c.Handle(), Detail: detail}
}

// emit 在控制线程上调用；通道满时丢弃最旧的事件，保证最新状态总能送达
func (c *Controller) emit(snap audio.Snapshot) {
	if c.closed {
		return
	}

	ev := Event{
		State:  snap.State,
		Detail: snap.Detail,
		Handle: c.Handle(),
		Input:  snap.Input.Name,
		Output: snap.Output.Name,
		At:     time.Now(),
	}

	log.Debug().
		Str("module", "lifecycle.controller").
		Str("state", ev.State.String()).
		Str("detail", ev.Detail).
		Msg("状态变化")

	for {
		select {
		case c.events <- ev:
			return
		default:
		}
		select {
		case <-c.events:
			c.dropped.Add(1)
		default:
		}
	}
}
