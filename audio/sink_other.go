//go:build !linux

package audio

import "context"

// EnsureVirtualSink 非 Linux 系统需要预先安装虚拟声卡驱动（如 VB-Cable、BlackHole）
func EnsureVirtualSink(ctx context.Context, name string) (*VirtualSink, error) {
	return nil, ErrSinkUnsupported
}
