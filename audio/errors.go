package audio

import (
	"errors"
	"fmt"
)

// 转发核心的错误分类
var (
	ErrDeviceNotFound   = errors.New("未找到设备")
	ErrNoDefaultDevice  = errors.New("主机未报告默认输入设备")
	ErrInvalidFormat    = errors.New("音频格式无效")
	ErrDeviceOpenFailed = errors.New("打开音频设备失败")
	ErrShutdownTimeout  = errors.New("停止音频流超时")
	ErrAlreadyRunning   = errors.New("转发会话已在运行")
	ErrNotRunning       = errors.New("转发会话未运行")
	ErrSessionFailed    = errors.New("转发会话处于错误状态，需先停止")
)

// DeviceOpenError 驱动层打开失败，附带驱动诊断信息
type DeviceOpenError struct {
	Diagnostic string
	Err        error
}

func (e *DeviceOpenError) Error() string {
	if e.Diagnostic == "" && e.Err != nil {
		return fmt.Sprintf("%s: %v", ErrDeviceOpenFailed, e.Err)
	}
	return fmt.Sprintf("%s: %s", ErrDeviceOpenFailed, e.Diagnostic)
}

func (e *DeviceOpenError) Unwrap() error { return e.Err }

// Is 使 errors.Is(err, ErrDeviceOpenFailed) 成立
func (e *DeviceOpenError) Is(target error) bool {
	return target == ErrDeviceOpenFailed
}
