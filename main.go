package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"virtual_mic/audio"
	"virtual_mic/config"
	"virtual_mic/lifecycle"
)

var (
	version     = "0.1.0"
	cfgFile     string
	inputName   string
	outputName  string
	noConsole   bool
	sinkTimeout = 5 * time.Second
)

var rootCmd = &cobra.Command{
	Use:   "virtual-mic",
	Short: "把物理麦克风转发到虚拟声卡",
	Long:  `virtual-mic 以低延迟把输入设备的音频逐块转发到虚拟声卡，其他程序可将虚拟声卡当作麦克风使用`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "启动音频转发",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runForwarder()
	},
}

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "列出音频设备",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listDevices()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "打印版本号",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("virtual-mic v%s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "app.conf", "配置文件路径")

	runCmd.Flags().StringVar(&inputName, "input", "", "输入设备名称或标识（默认使用系统默认输入设备）")
	runCmd.Flags().StringVar(&outputName, "output", "", "输出设备名称（覆盖配置文件）")
	runCmd.Flags().BoolVar(&noConsole, "no-console", false, "不读取标准输入命令")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupLogging() {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"}).
		With().
		Timestamp().
		Logger()
}

func runForwarder() error {
	// 加载配置
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("加载配置失败: %w", err)
	}
	zerolog.SetGlobalLevel(cfg.GetLogLevel())

	if inputName != "" {
		cfg.Audio.InputDevice = inputName
	}
	if outputName != "" {
		cfg.Audio.OutputDevice = outputName
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 虚拟声卡需要在音频上下文初始化前创建，才能出现在设备列表中
	if cfg.Audio.CreateVirtualSink {
		sink, err := audio.EnsureVirtualSink(ctx, cfg.Audio.VirtualSinkName)
		if err != nil {
			log.Warn().Str("module", "main").Err(err).Msg("创建虚拟声卡失败，继续使用配置的输出设备")
		} else {
			cfg.Audio.OutputDevice = sink.Name
			log.Info().Str("module", "main").Str("source", sink.SourceName()).Msg("其他程序请选择该麦克风")
			defer removeSink(sink)
		}
	}

	backend, err := audio.NewMalgoBackend()
	if err != nil {
		return fmt.Errorf("初始化音频后端失败: %w", err)
	}
	defer backend.Close()

	ctrl := lifecycle.New(backend, lifecycle.Options{
		InputName:  cfg.Audio.InputDevice,
		OutputName: cfg.Audio.OutputDevice,
		Format: audio.Format{
			SampleRate: cfg.GetSampleRate(),
			Channels:   cfg.GetChannels(),
			BlockSize:  cfg.GetBlockSize(),
		},
		StopTimeout: cfg.GetStopTimeout(),
	})

	// 列出可用设备
	if cfg.ShouldListDevicesOnStartup() {
		ctrl.Registry().LogDevices()
	}

	con := newConsole(ctrl, os.Stdin, os.Stdout)
	go con.printEvents()

	if _, err := ctrl.HandleStart(); err != nil {
		log.Error().Str("module", "main").Err(err).Msg("转发未启动，可输入 stop 后再 start 重试")
	}

	if !noConsole {
		go con.run(ctx)
	}
	fmt.Println("音频转发已启动，输入 help 查看命令，按 Ctrl+C 退出...")

	select {
	case <-ctx.Done():
		fmt.Println("\n正在关闭音频转发...")
	case <-ctrl.Done():
	}

	if _, err := ctrl.HandleQuit(); err != nil {
		log.Warn().Str("module", "main").Err(err).Msg("退出时停止转发失败")
	}
	<-con.eventsDone
	return nil
}

func removeSink(sink *audio.VirtualSink) {
	if !sink.Owned() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
	defer cancel()
	if err := sink.Remove(ctx); err != nil {
		log.Warn().Str("module", "main").Err(err).Msg("卸载虚拟声卡失败")
		return
	}
	log.Info().Str("module", "main").Str("sink", sink.Name).Msg("已卸载虚拟声卡")
}

func listDevices() error {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("加载配置失败: %w", err)
	}
	zerolog.SetGlobalLevel(cfg.GetLogLevel())

	backend, err := audio.NewMalgoBackend()
	if err != nil {
		return fmt.Errorf("初始化音频后端失败: %w", err)
	}
	defer backend.Close()

	devices, err := audio.NewRegistry(backend).Enumerate()
	if err != nil {
		return err
	}
	writeDevices(os.Stdout, devices)
	return nil
}

func writeDevices(w io.Writer, devices []audio.Device) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\t名称\t输入\t输出\t默认")
	for _, d := range devices {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", d.ID, d.Name, d.MaxInputChannels, d.MaxOutputChannels, defaultMark(d))
	}
	tw.Flush()
}

func defaultMark(d audio.Device) string {
	switch {
	case d.IsDefaultInput && d.IsDefaultOutput:
		return "in,out"
	case d.IsDefaultInput:
		return "in"
	case d.IsDefaultOutput:
		return "out"
	}
	return ""
}
