package audio

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/rs/zerolog/log"
)

// malgoStream 双工设备，回调线程由 miniaudio 创建和持有
type malgoStream struct {
	device        *malgo.Device
	callback      Callback
	shutdown      *Signal
	bytesPerFrame int
	name          string

	closeOnce sync.Once
	closeErr  error
}

// onData 运行在实时线程上
func (m *malgoStream) onData(pOutputSample, pInputSamples []byte, frameCount uint32) {
	need := int(frameCount) * m.bytesPerFrame
	var status StreamStatus
	if len(pInputSamples) < need {
		status |= StatusInputOverflow
	}
	if len(pOutputSample) < need {
		status |= StatusOutputUnderflow
	}
	m.callback(pOutputSample, pInputSamples, frameCount, status)
}

// onStop 设备停止时调用；未收到停止信号说明设备被后端自行停止（如被拔出）
func (m *malgoStream) onStop() {
	if m.shutdown != nil && m.shutdown.IsSignaled() {
		return
	}
	log.Warn().Str("module", "audio.stream").Str("stream", m.name).Msg("音频设备意外停止")
}

// Start 启动设备
func (m *malgoStream) Start() error {
	if err := m.device.Start(); err != nil {
		return fmt.Errorf("启动双工设备失败 (%s): %w", m.name, err)
	}
	return nil
}

// Close 停止并释放设备，阻塞直到回调线程退出
func (m *malgoStream) Close() error {
	m.closeOnce.Do(func() {
		if m.device == nil {
			return
		}
		if err := m.device.Stop(); err != nil {
			m.closeErr = fmt.Errorf("停止双工设备失败 (%s): %w", m.name, err)
		}
		m.device.Uninit()
		m.device = nil
	})
	return m.closeErr
}
