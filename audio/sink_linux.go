//go:build linux

package audio

import (
	"context"
	"fmt"
	"os/exec"
)

// EnsureVirtualSink 确保存在名为 name 的虚拟声卡
func EnsureVirtualSink(ctx context.Context, name string) (*VirtualSink, error) {
	if _, err := exec.LookPath("pactl"); err != nil {
		return nil, fmt.Errorf("%w: 未找到 pactl", ErrSinkUnsupported)
	}
	return ensureVirtualSink(ctx, name, runCommand)
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}
