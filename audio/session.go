package audio

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// State 转发会话状态
type State int32

const (
	StateIdle State = iota
	StateOpening
	StateRunning
	StateStopping
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateOpening:
		return "Opening"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	case StateError:
		return "Error"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Snapshot 会话状态快照
type Snapshot struct {
	State  State
	Input  Device
	Output Device
	Format Format
	Detail string
}

// Listener 状态变化回调，在控制线程上同步调用，不得回调 Session 的方法
type Listener func(Snapshot)

// DefaultStopTimeout 停止时等待音频线程退出的默认上限
const DefaultStopTimeout = 2 * time.Second

// SessionOptions 会话参数
type SessionOptions struct {
	StopTimeout time.Duration
	Listener    Listener
}

// Session 转发会话
//
// Start/Stop/SwitchInput 由 mu 串行化，只有它们会修改会话字段。
// 音频线程只读取打开时捕获的格式，并写入后端提供的输出缓冲区。
type Session struct {
	backend     Backend
	registry    *Registry
	stopTimeout time.Duration
	listener    Listener

	mu       sync.Mutex
	input    Device
	output   Device
	format   Format
	stream   Stream
	shutdown *Signal

	snapshot  atomic.Pointer[Snapshot]
	forwarder atomic.Pointer[Forwarder]
}

// NewSession 创建空闲的转发会话
func NewSession(backend Backend, registry *Registry, opts SessionOptions) *Session {
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = DefaultStopTimeout
	}
	s := &Session{
		backend:     backend,
		registry:    registry,
		stopTimeout: opts.StopTimeout,
		listener:    opts.Listener,
	}
	s.snapshot.Store(&Snapshot{State: StateIdle})
	return s
}

// Snapshot 返回当前状态快照，不会阻塞
func (s *Session) Snapshot() Snapshot {
	return *s.snapshot.Load()
}

// State 当前状态
func (s *Session) State() State {
	return s.snapshot.Load().State
}

// Stats 最近一次（或当前）转发的统计
func (s *Session) Stats() ForwardStats {
	if f := s.forwarder.Load(); f != nil {
		return f.Stats()
	}
	return ForwardStats{}
}

// Start 打开输入输出设备对并开始转发，仅在 Idle 状态有效
func (s *Session) Start(inputID, outputID DeviceID, format Format) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.State() {
	case StateIdle:
	case StateError:
		return ErrSessionFailed
	default:
		return ErrAlreadyRunning
	}

	if err := s.openLocked(inputID, outputID, format, true); err != nil {
		s.publish(StateError, err.Error())
		log.Error().Str("module", "audio.session").Err(err).Msg("启动转发失败")
		return err
	}

	s.publish(StateRunning, "")
	log.Info().
		Str("module", "audio.session").
		Str("input", s.input.Name).
		Str("output", s.output.Name).
		Str("format", s.format.String()).
		Msg("转发已启动")
	return nil
}

// Fail 记录会话之外发生的启动失败（如按名称解析设备失败），将空闲会话置为 Error
//
// 返回 err；会话不处于 Idle 时返回对应的状态错误，不修改状态。
func (s *Session) Fail(err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.State() {
	case StateIdle:
	case StateError:
		return ErrSessionFailed
	default:
		return ErrAlreadyRunning
	}

	s.publish(StateError, err.Error())
	log.Error().Str("module", "audio.session").Err(err).Msg("启动转发失败")
	return err
}

// Stop 停止转发并回到 Idle；Idle 状态下调用为空操作
//
// 等待音频线程退出的时间不超过 stopTimeout，超时返回 ErrShutdownTimeout，
// 但会话仍会回到 Idle，流句柄也不再被持有。
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.State() {
	case StateIdle:
		return nil
	case StateError:
		err := s.teardownLocked()
		s.publish(StateIdle, detailOf(err))
		return err
	}

	s.publish(StateStopping, "")
	err := s.teardownLocked()
	s.publish(StateIdle, detailOf(err))
	if err == nil {
		log.Info().Str("module", "audio.session").Msg("转发已停止")
	}
	return err
}

// SwitchInput 以相同输出和格式切换到新的输入设备，仅在 Running 状态有效
//
// 对调用方而言切换是原子的：过程中状态保持 Running，且任一时刻最多只有一个流处于打开状态。
// 新设备解析或格式校验失败时原有的流不受影响。
func (s *Session) SwitchInput(newInputID DeviceID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State() != StateRunning {
		return ErrNotRunning
	}

	input, err := s.registry.Lookup(newInputID)
	if err != nil {
		return fmt.Errorf("解析输入设备失败: %w", err)
	}
	if err := s.format.ValidateFor(input, s.output); err != nil {
		return err
	}

	outputID, format := s.output.ID, s.format
	if err := s.teardownLocked(); err != nil {
		s.publish(StateIdle, err.Error())
		return err
	}

	if err := s.openLocked(input.ID, outputID, format, false); err != nil {
		s.publish(StateError, err.Error())
		log.Error().Str("module", "audio.session").Err(err).Msg("切换输入设备失败")
		return err
	}

	s.publish(StateRunning, "输入已切换: "+input.Name)
	log.Info().Str("module", "audio.session").Str("input", input.Name).Msg("输入设备已切换")
	return nil
}

// openLocked 解析设备、校验格式并启动流；失败时不持有任何流
func (s *Session) openLocked(inputID, outputID DeviceID, format Format, announce bool) error {
	input, err := s.registry.Lookup(inputID)
	if err != nil {
		return fmt.Errorf("解析输入设备失败: %w", err)
	}
	output, err := s.registry.Lookup(outputID)
	if err != nil {
		return fmt.Errorf("解析输出设备失败: %w", err)
	}
	if err := format.ValidateFor(input, output); err != nil {
		return err
	}

	s.input, s.output, s.format = input, output, format
	if announce {
		s.publish(StateOpening, "")
	}

	sig := NewSignal()
	fwd := NewForwarder(format)
	stream, err := s.backend.OpenStream(StreamConfig{
		Input:    input,
		Output:   output,
		Format:   format,
		Callback: fwd.Process,
		Shutdown: sig,
	})
	if err != nil {
		return asOpenError(err)
	}

	fwd.Arm()
	s.forwarder.Store(fwd)
	if err := stream.Start(); err != nil {
		fwd.Disarm()
		sig.Signal()
		if cerr := s.closeBounded(stream); cerr != nil {
			log.Warn().Str("module", "audio.session").Err(cerr).Msg("释放未启动的音频流失败")
		}
		return asOpenError(err)
	}

	s.stream, s.shutdown = stream, sig
	return nil
}

// teardownLocked 触发停止信号、关闭流并在限定时间内等待音频线程退出
func (s *Session) teardownLocked() error {
	stream, sig := s.stream, s.shutdown
	s.stream, s.shutdown = nil, nil
	if stream == nil {
		return nil
	}

	sig.Signal()
	if f := s.forwarder.Load(); f != nil {
		f.Disarm()
	}

	err := s.closeBounded(stream)

	stats := s.Stats()
	log.Debug().
		Str("module", "audio.session").
		Uint64("blocks", stats.Blocks).
		Uint64("frames", stats.Frames).
		Uint64("xruns", stats.Xruns).
		Uint64("short_blocks", stats.ShortBlocks).
		Msg("转发统计")
	return err
}

// closeBounded 在独立 goroutine 中关闭流，最多等待 stopTimeout
func (s *Session) closeBounded(stream Stream) error {
	closed := NewSignal()
	var closeErr error
	go func() {
		closeErr = stream.Close()
		closed.Signal()
	}()

	if !closed.Wait(s.stopTimeout) {
		log.Warn().Str("module", "audio.session").Dur("timeout", s.stopTimeout).Msg("等待音频线程退出超时")
		return fmt.Errorf("%w: %s 内未能关闭音频流", ErrShutdownTimeout, s.stopTimeout)
	}
	if closeErr != nil {
		log.Warn().Str("module", "audio.session").Err(closeErr).Msg("关闭音频流出错")
	}
	return nil
}

func (s *Session) publish(state State, detail string) {
	snap := &Snapshot{
		State:  state,
		Input:  s.input,
		Output: s.output,
		Format: s.format,
		Detail: detail,
	}
	s.snapshot.Store(snap)
	if s.listener != nil {
		s.listener(*snap)
	}
}

func asOpenError(err error) error {
	var oe *DeviceOpenError
	if errors.As(err, &oe) {
		return err
	}
	return &DeviceOpenError{Diagnostic: err.Error(), Err: err}
}

func detailOf(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
