package audio

import "sync/atomic"

// ForwardStats 转发统计
type ForwardStats struct {
	Blocks uint64
	Frames uint64
	// Xruns 后端报告的溢出/欠载次数
	Xruns uint64
	// ShortBlocks 输入不足一整块、剩余部分补零的次数
	ShortBlocks uint64
}

// Forwarder 实时转发回调
//
// Process 运行在后端的实时线程上：只做逐采样复制，不分配内存、不加锁、不记录日志。
// 计数器全部为原子变量，控制线程可随时读取。
type Forwarder struct {
	bytesPerFrame int
	armed         atomic.Bool

	blocks      atomic.Uint64
	frames      atomic.Uint64
	xruns       atomic.Uint64
	shortBlocks atomic.Uint64
}

// NewForwarder 按格式创建转发器，初始为未启用
func NewForwarder(format Format) *Forwarder {
	return &Forwarder{bytesPerFrame: format.BytesPerFrame()}
}

// Arm 允许回调写入输入数据
func (f *Forwarder) Arm() { f.armed.Store(true) }

// Disarm 之后的回调只输出静音
func (f *Forwarder) Disarm() { f.armed.Store(false) }

// Process 将 in 的 frames 帧原样复制到 out
func (f *Forwarder) Process(out, in []byte, frames uint32, status StreamStatus) {
	if status != 0 {
		f.xruns.Add(1)
	}

	if !f.armed.Load() {
		clear(out)
		return
	}

	n := int(frames) * f.bytesPerFrame
	if n > len(out) {
		n = len(out)
	}
	copied := copy(out[:n], in)
	if copied < n {
		clear(out[copied:n])
		f.shortBlocks.Add(1)
	}
	if n < len(out) {
		clear(out[n:])
	}

	f.blocks.Add(1)
	f.frames.Add(uint64(frames))
}

// Stats 读取当前统计
func (f *Forwarder) Stats() ForwardStats {
	return ForwardStats{
		Blocks:      f.blocks.Load(),
		Frames:      f.frames.Load(),
		Xruns:       f.xruns.Load(),
		ShortBlocks: f.shortBlocks.Load(),
	}
}
