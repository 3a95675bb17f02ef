package audio

import "fmt"

// DeviceID 设备标识，仅在进程生命周期内有效
type DeviceID string

// Device 音频端点快照，枚举后不再修改
type Device struct {
	ID                DeviceID
	Name              string
	MaxInputChannels  int
	MaxOutputChannels int
	IsDefaultInput    bool
	IsDefaultOutput   bool
}

// CanCapture 是否可作为输入
func (d Device) CanCapture() bool { return d.MaxInputChannels > 0 }

// CanPlayback 是否可作为输出
func (d Device) CanPlayback() bool { return d.MaxOutputChannels > 0 }

// BytesPerSample 每个采样的字节数（S16LE）
const BytesPerSample = 2

// Format 流格式
type Format struct {
	SampleRate int
	Channels   int
	// BlockSize 每次回调的帧数，0 表示由后端决定
	BlockSize int
}

// BytesPerFrame 每帧字节数
func (f Format) BytesPerFrame() int {
	return f.Channels * BytesPerSample
}

// Samples 返回 frames 帧对应的采样数
func (f Format) Samples(frames int) int {
	return f.Channels * frames
}

// Validate 检查格式本身是否有效
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("%w: 采样率必须大于0 (got %d)", ErrInvalidFormat, f.SampleRate)
	}
	if f.Channels < 1 {
		return fmt.Errorf("%w: 声道数必须至少为1 (got %d)", ErrInvalidFormat, f.Channels)
	}
	if f.BlockSize < 0 {
		return fmt.Errorf("%w: 块大小不能为负 (got %d)", ErrInvalidFormat, f.BlockSize)
	}
	return nil
}

// ValidateFor 检查格式是否同时被输入和输出设备支持
func (f Format) ValidateFor(input, output Device) error {
	if err := f.Validate(); err != nil {
		return err
	}
	if f.Channels > input.MaxInputChannels {
		return fmt.Errorf("%w: 输入设备 %q 最多支持 %d 声道，请求 %d",
			ErrInvalidFormat, input.Name, input.MaxInputChannels, f.Channels)
	}
	if f.Channels > output.MaxOutputChannels {
		return fmt.Errorf("%w: 输出设备 %q 最多支持 %d 声道，请求 %d",
			ErrInvalidFormat, output.Name, output.MaxOutputChannels, f.Channels)
	}
	return nil
}

func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dch/%d", f.SampleRate, f.Channels, f.BlockSize)
}
