package audio

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/rs/zerolog/log"
)

// fallbackChannels 设备未报告原生格式时假定的最大声道数
const fallbackChannels = 2

// MalgoBackend 基于 miniaudio 的音频后端
type MalgoBackend struct {
	context *malgo.AllocatedContext

	mu  sync.Mutex
	ids map[DeviceID]malgo.DeviceID
}

// NewMalgoBackend 初始化音频上下文
func NewMalgoBackend() (*MalgoBackend, error) {
	context, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		log.Debug().Str("module", "audio.malgo").Msg(strings.TrimSpace(message))
	})
	if err != nil {
		return nil, fmt.Errorf("初始化音频上下文失败: %w", err)
	}

	return &MalgoBackend{
		context: context,
		ids:     make(map[DeviceID]malgo.DeviceID),
	}, nil
}

// Devices 枚举输入和输出设备，输入设备在前
func (b *MalgoBackend) Devices() ([]Device, error) {
	inputDevices, err := b.context.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("枚举输入设备失败: %w", err)
	}

	outputDevices, err := b.context.Devices(malgo.Playback)
	if err != nil {
		return nil, fmt.Errorf("枚举输出设备失败: %w", err)
	}

	ids := make(map[DeviceID]malgo.DeviceID, len(inputDevices)+len(outputDevices))
	devices := make([]Device, 0, len(inputDevices)+len(outputDevices))
	for _, info := range inputDevices {
		id := DeviceID("in:" + info.ID.String())
		ids[id] = info.ID
		devices = append(devices, Device{
			ID:               id,
			Name:             strings.TrimSpace(info.Name()),
			MaxInputChannels: b.maxChannels(malgo.Capture, info),
			IsDefaultInput:   info.IsDefault != 0,
		})
	}

	for _, info := range outputDevices {
		id := DeviceID("out:" + info.ID.String())
		ids[id] = info.ID
		devices = append(devices, Device{
			ID:                id,
			Name:              strings.TrimSpace(info.Name()),
			MaxOutputChannels: b.maxChannels(malgo.Playback, info),
			IsDefaultOutput:   info.IsDefault != 0,
		})
	}

	b.replaceIDs(ids)
	return devices, nil
}

// replaceIDs 以最近一次枚举结果替换标识映射，已消失的设备无法再被打开
func (b *MalgoBackend) replaceIDs(ids map[DeviceID]malgo.DeviceID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ids = ids
}

// maxChannels 取设备原生格式中的最大声道数；枚举结果未带格式时查询详细信息
func (b *MalgoBackend) maxChannels(kind malgo.DeviceType, info malgo.DeviceInfo) int {
	channels := formatMaxChannels(info)
	if channels == 0 {
		if full, err := b.context.DeviceInfo(kind, info.ID, malgo.Shared); err == nil {
			channels = formatMaxChannels(full)
		}
	}
	if channels == 0 {
		channels = fallbackChannels
	}
	return channels
}

func formatMaxChannels(info malgo.DeviceInfo) int {
	n := int(info.FormatCount)
	if n > len(info.Formats) {
		n = len(info.Formats)
	}
	channels := 0
	for _, f := range info.Formats[:n] {
		if int(f.Channels) > channels {
			channels = int(f.Channels)
		}
	}
	return channels
}

func (b *MalgoBackend) lookup(id DeviceID) (malgo.DeviceID, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	dev, ok := b.ids[id]
	return dev, ok
}

// OpenStream 以双工模式打开输入输出设备对
func (b *MalgoBackend) OpenStream(cfg StreamConfig) (Stream, error) {
	inputID, ok := b.lookup(cfg.Input.ID)
	if !ok {
		return nil, &DeviceOpenError{Diagnostic: "未知输入设备: " + string(cfg.Input.ID)}
	}
	outputID, ok := b.lookup(cfg.Output.ID)
	if !ok {
		return nil, &DeviceOpenError{Diagnostic: "未知输出设备: " + string(cfg.Output.ID)}
	}

	// 创建设备配置
	deviceConfig := malgo.DefaultDeviceConfig(malgo.Duplex)
	deviceConfig.SampleRate = uint32(cfg.Format.SampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(cfg.Format.BlockSize)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(cfg.Format.Channels)
	deviceConfig.Capture.DeviceID = inputID.Pointer()
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = uint32(cfg.Format.Channels)
	deviceConfig.Playback.DeviceID = outputID.Pointer()
	deviceConfig.Alsa.NoMMap = 1

	stream := &malgoStream{
		callback:      cfg.Callback,
		shutdown:      cfg.Shutdown,
		bytesPerFrame: cfg.Format.BytesPerFrame(),
		name:          cfg.Input.Name + " -> " + cfg.Output.Name,
	}

	device, err := malgo.InitDevice(b.context.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: stream.onData,
		Stop: stream.onStop,
	})
	if err != nil {
		return nil, &DeviceOpenError{
			Diagnostic: fmt.Sprintf("创建双工设备失败 (%s): %v", stream.name, err),
			Err:        err,
		}
	}
	stream.device = device

	return stream, nil
}

// Close 释放音频上下文
func (b *MalgoBackend) Close() error {
	if b.context != nil {
		b.context.Uninit()
		b.context.Free()
		b.context = nil
	}
	return nil
}
