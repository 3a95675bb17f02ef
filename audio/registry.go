package audio

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// Predicate 设备匹配条件
type Predicate func(Device) bool

// NameContains 名称包含子串（不区分大小写）
func NameContains(sub string) Predicate {
	needle := strings.ToLower(strings.TrimSpace(sub))
	return func(d Device) bool {
		return strings.Contains(strings.ToLower(d.Name), needle)
	}
}

// CanCapture 可作为输入的设备
func CanCapture() Predicate {
	return func(d Device) bool { return d.CanCapture() }
}

// CanPlayback 可作为输出的设备
func CanPlayback() Predicate {
	return func(d Device) bool { return d.CanPlayback() }
}

// All 所有条件同时满足
func All(preds ...Predicate) Predicate {
	return func(d Device) bool {
		for _, p := range preds {
			if !p(d) {
				return false
			}
		}
		return true
	}
}

// Registry 设备注册表
//
// 每次查询都重新枚举，调用方拿到的是独立快照，之前返回的结果不会被修改。
type Registry struct {
	backend Backend
}

// NewRegistry 创建设备注册表
func NewRegistry(backend Backend) *Registry {
	return &Registry{backend: backend}
}

// Enumerate 枚举所有设备
func (r *Registry) Enumerate() ([]Device, error) {
	devices, err := r.backend.Devices()
	if err != nil {
		return nil, fmt.Errorf("枚举音频设备失败: %w", err)
	}
	out := make([]Device, len(devices))
	copy(out, devices)
	return out, nil
}

// DefaultInput 返回主机当前默认输入设备
func (r *Registry) DefaultInput() (Device, error) {
	dev, err := r.Find(func(d Device) bool { return d.IsDefaultInput && d.CanCapture() })
	if err != nil {
		if errors.Is(err, ErrDeviceNotFound) {
			return Device{}, ErrNoDefaultDevice
		}
		return Device{}, err
	}
	return dev, nil
}

// Find 按枚举顺序返回第一个满足条件的设备；多个设备匹配时总是第一个胜出
func (r *Registry) Find(match Predicate) (Device, error) {
	devices, err := r.Enumerate()
	if err != nil {
		return Device{}, err
	}
	for _, d := range devices {
		if match(d) {
			return d, nil
		}
	}
	return Device{}, ErrDeviceNotFound
}

// FindByName 按名称子串查找
func (r *Registry) FindByName(name string, extra ...Predicate) (Device, error) {
	dev, err := r.Find(All(append([]Predicate{NameContains(name)}, extra...)...))
	if err != nil {
		return Device{}, fmt.Errorf("%w: %q", err, name)
	}
	return dev, nil
}

// Lookup 按标识查找
func (r *Registry) Lookup(id DeviceID) (Device, error) {
	dev, err := r.Find(func(d Device) bool { return d.ID == id })
	if err != nil {
		return Device{}, fmt.Errorf("%w: %s", err, id)
	}
	return dev, nil
}

// LogDevices 记录当前设备列表
func (r *Registry) LogDevices() {
	devices, err := r.Enumerate()
	if err != nil {
		log.Error().Str("module", "audio.registry").Err(err).Msg("枚举音频设备失败")
		return
	}
	if len(devices) == 0 {
		log.Warn().Str("module", "audio.registry").Msg("未找到音频设备")
		return
	}
	for i, d := range devices {
		log.Info().
			Str("module", "audio.registry").
			Int("index", i+1).
			Str("id", string(d.ID)).
			Str("name", d.Name).
			Int("max_in", d.MaxInputChannels).
			Int("max_out", d.MaxOutputChannels).
			Bool("default_in", d.IsDefaultInput).
			Bool("default_out", d.IsDefaultOutput).
			Msg("音频设备")
	}
}
