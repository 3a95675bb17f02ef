package audio

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// ErrSinkUnsupported 当前平台无法创建虚拟声卡
var ErrSinkUnsupported = errors.New("当前平台不支持创建虚拟声卡")

type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// VirtualSink PulseAudio/PipeWire 空声卡及其重映射的麦克风源
//
// 转发写入名为 Name 的声卡，其他程序选择 Name+"_mic" 作为麦克风。
// moduleIDs 为空表示声卡在启动前就已存在，退出时不卸载。
type VirtualSink struct {
	Name      string
	moduleIDs []string
	run       commandRunner
}

// SourceName 供其他程序选择的麦克风源名称
func (s *VirtualSink) SourceName() string {
	return s.Name + "_mic"
}

// Owned 声卡是否由本进程加载
func (s *VirtualSink) Owned() bool {
	return len(s.moduleIDs) > 0
}

// Remove 按加载的逆序卸载模块
func (s *VirtualSink) Remove(ctx context.Context) error {
	var errs []error
	for i := len(s.moduleIDs) - 1; i >= 0; i-- {
		id := s.moduleIDs[i]
		if _, err := s.run(ctx, "pactl", "unload-module", id); err != nil {
			errs = append(errs, fmt.Errorf("卸载模块 %s 失败: %w", id, err))
		}
	}
	s.moduleIDs = nil
	return errors.Join(errs...)
}

// ensureVirtualSink 已存在同名声卡时直接复用，否则加载 module-null-sink 和 module-remap-source
func ensureVirtualSink(ctx context.Context, name string, run commandRunner) (*VirtualSink, error) {
	output, err := run(ctx, "pactl", "list", "short", "sinks")
	if err != nil {
		return nil, fmt.Errorf("查询声卡列表失败: %w", err)
	}

	sink := &VirtualSink{Name: name, run: run}
	for _, existing := range parseShortList(string(output)) {
		if existing == name {
			log.Info().Str("module", "audio.sink").Str("sink", name).Msg("复用已存在的虚拟声卡")
			return sink, nil
		}
	}

	output, err = run(ctx, "pactl", "load-module", "module-null-sink",
		"sink_name="+name,
		"sink_properties=device.description="+name)
	if err != nil {
		return nil, fmt.Errorf("加载 module-null-sink 失败: %w", err)
	}
	sink.moduleIDs = append(sink.moduleIDs, strings.TrimSpace(string(output)))

	output, err = run(ctx, "pactl", "load-module", "module-remap-source",
		"master="+name+".monitor",
		"source_name="+sink.SourceName(),
		"source_properties=device.description="+sink.SourceName())
	if err != nil {
		rerr := sink.Remove(ctx)
		return nil, errors.Join(fmt.Errorf("加载 module-remap-source 失败: %w", err), rerr)
	}
	sink.moduleIDs = append(sink.moduleIDs, strings.TrimSpace(string(output)))

	log.Info().
		Str("module", "audio.sink").
		Str("sink", name).
		Str("source", sink.SourceName()).
		Strs("modules", sink.moduleIDs).
		Msg("已创建虚拟声卡")
	return sink, nil
}

// parseShortList 解析 `pactl list short sinks|sources` 的输出，返回名称列
func parseShortList(output string) []string {
	var names []string
	for _, line := range strings.Split(strings.TrimSpace(output), "\n") {
		if line == "" {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) >= 2 {
			names = append(names, strings.TrimSpace(parts[1]))
		}
	}
	return names
}
