package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀，例如 VIRTUAL_MIC_AUDIO_OUTPUT_DEVICE
const EnvPrefix = "VIRTUAL_MIC"

// Config 表示应用程序的配置结构
type Config struct {
	Audio  AudioConfig  `mapstructure:"audio"`
	System SystemConfig `mapstructure:"system"`
}

// AudioConfig 音频转发配置
type AudioConfig struct {
	InputDevice       string `mapstructure:"input_device"`
	OutputDevice      string `mapstructure:"output_device"`
	SampleRate        int    `mapstructure:"sample_rate"`
	Channels          int    `mapstructure:"channels"`
	BlockSize         int    `mapstructure:"block_size"`
	CreateVirtualSink bool   `mapstructure:"create_virtual_sink"`
	VirtualSinkName   string `mapstructure:"virtual_sink_name"`
}

// SystemConfig 系统配置
type SystemConfig struct {
	LogLevel             string `mapstructure:"log_level"`
	ListDevicesOnStartup bool   `mapstructure:"list_devices_on_startup"`
	// StopTimeout 停止转发时等待音频线程退出的上限（毫秒）
	StopTimeout int `mapstructure:"stop_timeout"`
}

// LoadConfig 从文件加载配置；文件不存在时使用默认值
func LoadConfig(filename string) (*Config, error) {
	v := viper.New()

	// 设置默认值
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if filename != "" {
		v.SetConfigFile(filename)
		v.SetConfigType(configType(filename))

		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.Is(err, os.ErrNotExist) && !errors.As(err, &notFound) {
				return nil, fmt.Errorf("读取配置文件失败: %w", err)
			}
			log.Warn().Str("module", "config").Str("file", filename).Msg("配置文件不存在，使用默认值")
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	// 验证配置
	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}

	return &config, nil
}

// configType 按扩展名推断配置格式，默认 ini
func configType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		return "yaml"
	case ".toml":
		return "toml"
	case ".json":
		return "json"
	default:
		return "ini"
	}
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	v.SetDefault("audio.input_device", "")
	v.SetDefault("audio.output_device", "CABLE Input")
	v.SetDefault("audio.sample_rate", 44100)
	v.SetDefault("audio.channels", 1)
	v.SetDefault("audio.block_size", 0)
	v.SetDefault("audio.create_virtual_sink", false)
	v.SetDefault("audio.virtual_sink_name", "virtual_mic")

	v.SetDefault("system.log_level", "info")
	v.SetDefault("system.list_devices_on_startup", true)
	v.SetDefault("system.stop_timeout", 2000)
}

// validateConfig 验证配置的有效性
func validateConfig(config *Config) error {
	if config.Audio.SampleRate <= 0 {
		return fmt.Errorf("采样率必须大于0")
	}

	if config.Audio.Channels <= 0 || config.Audio.Channels > 8 {
		return fmt.Errorf("声道数必须在1-8之间")
	}

	if config.Audio.BlockSize < 0 {
		return fmt.Errorf("块大小不能为负数")
	}

	if strings.TrimSpace(config.Audio.OutputDevice) == "" {
		return fmt.Errorf("必须指定输出设备")
	}

	if config.Audio.CreateVirtualSink && strings.TrimSpace(config.Audio.VirtualSinkName) == "" {
		return fmt.Errorf("启用虚拟声卡时必须指定名称")
	}

	if config.System.StopTimeout <= 0 {
		return fmt.Errorf("停止超时必须大于0")
	}

	if _, err := zerolog.ParseLevel(config.System.LogLevel); err != nil {
		return fmt.Errorf("无效的日志级别 %q", config.System.LogLevel)
	}

	return nil
}

// GetSampleRate 获取采样率
func (c *Config) GetSampleRate() int {
	return c.Audio.SampleRate
}

// GetChannels 获取声道数
func (c *Config) GetChannels() int {
	return c.Audio.Channels
}

// GetBlockSize 获取块大小
func (c *Config) GetBlockSize() int {
	return c.Audio.BlockSize
}

// GetLogLevel 获取日志级别
func (c *Config) GetLogLevel() zerolog.Level {
	level, err := zerolog.ParseLevel(c.System.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}

// ShouldListDevicesOnStartup 是否在启动时列出设备
func (c *Config) ShouldListDevicesOnStartup() bool {
	return c.System.ListDevicesOnStartup
}

// GetStopTimeout 获取停止超时
func (c *Config) GetStopTimeout() time.Duration {
	return time.Duration(c.System.StopTimeout) * time.Millisecond
}
