package audio

// StreamStatus 后端在回调中报告的状态标志
type StreamStatus uint8

const (
	StatusInputOverflow StreamStatus = 1 << iota
	StatusOutputUnderflow
)

// Callback 实时回调，out 与 in 均为交错 S16LE 数据
type Callback func(out, in []byte, frames uint32, status StreamStatus)

// StreamConfig 打开流所需的参数
type StreamConfig struct {
	Input    Device
	Output   Device
	Format   Format
	Callback Callback
	// Shutdown 由会话持有；拥有外层循环的后端在两次回调之间轮询它
	Shutdown *Signal
}

// Backend 音频后端能力接口
type Backend interface {
	// Devices 枚举当前设备，每次返回新的快照
	Devices() ([]Device, error)
	// OpenStream 打开输入输出设备对，但不启动
	OpenStream(cfg StreamConfig) (Stream, error)
}

// Stream 已打开的音频流，由会话独占
type Stream interface {
	Start() error
	// Close 停止并释放流，可能阻塞直到音频线程退出；重复调用无副作用
	Close() error
}
