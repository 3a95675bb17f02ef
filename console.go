package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"virtual_mic/audio"
	"virtual_mic/lifecycle"
)

// console 从标准输入读取控制命令，相当于托盘菜单的文本版
type console struct {
	ctrl *lifecycle.Controller
	in   io.Reader

	mu  sync.Mutex
	out io.Writer

	eventsDone chan struct{}
}

func newConsole(ctrl *lifecycle.Controller, in io.Reader, out io.Writer) *console {
	return &console{
		ctrl:       ctrl,
		in:         in,
		out:        out,
		eventsDone: make(chan struct{}),
	}
}

// run 逐行执行命令，直到 quit、输入结束或 ctx 取消
func (c *console) run(ctx context.Context) {
	scanner := bufio.NewScanner(c.in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		if quit := c.execute(scanner.Text()); quit {
			return
		}
	}
	if err := scanner.Err(); err != nil {
		log.Warn().Str("module", "main.console").Err(err).Msg("读取标准输入失败")
	}
}

// execute 执行一条命令，返回是否应退出
func (c *console) execute(line string) bool {
	cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(cmd) {
	case "":
	case "start":
		c.report(c.ctrl.HandleStart())
	case "stop":
		c.report(c.ctrl.HandleStop())
	case "switch":
		if arg == "" {
			c.printf("用法: switch <设备标识|名称>\n")
			return false
		}
		dev, err := c.ctrl.ResolveInput(arg)
		if err != nil {
			c.printf("错误: %v\n", err)
			return false
		}
		c.report(c.ctrl.HandleSwitchDevice(dev.ID))
	case "devices":
		devices, err := c.ctrl.ListDevices()
		if err != nil {
			c.printf("错误: %v\n", err)
			return false
		}
		c.mu.Lock()
		writeDevices(c.out, devices)
		c.mu.Unlock()
	case "status":
		c.status()
	case "quit", "exit":
		c.report(c.ctrl.HandleQuit())
		return true
	case "help":
		c.printf("命令: start | stop | switch <设备标识|名称> | devices | status | quit\n")
	default:
		c.printf("未知命令 %q，输入 help 查看命令\n", cmd)
	}
	return false
}

// printEvents 打印状态变化，事件通道关闭后返回
func (c *console) printEvents() {
	defer close(c.eventsDone)
	for ev := range c.ctrl.Events() {
		if ev.Detail != "" {
			c.printf("[%s] %s: %s\n", ev.At.Format("15:04:05"), ev.State, ev.Detail)
			continue
		}
		c.printf("[%s] %s\n", ev.At.Format("15:04:05"), ev.State)
	}
}

func (c *console) status() {
	snap := c.ctrl.Snapshot()
	c.printf("状态: %s\n", snap.State)
	if snap.State == audio.StateIdle && snap.Input.ID == "" {
		return
	}
	stats := c.ctrl.Stats()
	c.printf("输入: %s\n输出: %s\n格式: %s\n", snap.Input.Name, snap.Output.Name, snap.Format)
	c.printf("已转发: %d 块 / %d 帧，xrun: %d，短块: %d\n", stats.Blocks, stats.Frames, stats.Xruns, stats.ShortBlocks)
	if snap.Detail != "" {
		c.printf("详情: %s\n", snap.Detail)
	}
}

func (c *console) report(res lifecycle.Result, err error) {
	if err != nil {
		c.printf("错误: %v (状态: %s)\n", err, res.State)
		return
	}
	c.printf("状态: %s\n", res.State)
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}
