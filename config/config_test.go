package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, "app.conf", `[audio]
input_device = "USB Microphone"
output_device = "CABLE Input"
sample_rate = 48000
channels = 2
block_size = 480
create_virtual_sink = true
virtual_sink_name = "my_mic"

[system]
log_level = "debug"
list_devices_on_startup = false
stop_timeout = 3000`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "USB Microphone", cfg.Audio.InputDevice)
	assert.Equal(t, "CABLE Input", cfg.Audio.OutputDevice)
	assert.Equal(t, 48000, cfg.GetSampleRate())
	assert.Equal(t, 2, cfg.GetChannels())
	assert.Equal(t, 480, cfg.GetBlockSize())
	assert.True(t, cfg.Audio.CreateVirtualSink)
	assert.Equal(t, "my_mic", cfg.Audio.VirtualSinkName)
	assert.Equal(t, zerolog.DebugLevel, cfg.GetLogLevel())
	assert.False(t, cfg.ShouldListDevicesOnStartup())
	assert.Equal(t, 3*time.Second, cfg.GetStopTimeout())
}

func TestLoadConfigYAML(t *testing.T) {
	path := writeConfig(t, "app.yaml", `audio:
  output_device: "BlackHole"
  channels: 2
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "BlackHole", cfg.Audio.OutputDevice)
	assert.Equal(t, 2, cfg.Audio.Channels)
	assert.Equal(t, 44100, cfg.Audio.SampleRate)
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.conf"))
	require.NoError(t, err)

	assert.Equal(t, "", cfg.Audio.InputDevice)
	assert.Equal(t, "CABLE Input", cfg.Audio.OutputDevice)
	assert.Equal(t, 44100, cfg.Audio.SampleRate)
	assert.Equal(t, 1, cfg.Audio.Channels)
	assert.Equal(t, 0, cfg.Audio.BlockSize)
	assert.False(t, cfg.Audio.CreateVirtualSink)
	assert.Equal(t, "info", cfg.System.LogLevel)
	assert.True(t, cfg.System.ListDevicesOnStartup)
	assert.Equal(t, 2*time.Second, cfg.GetStopTimeout())
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("VIRTUAL_MIC_AUDIO_OUTPUT_DEVICE", "VB-Cable")
	t.Setenv("VIRTUAL_MIC_SYSTEM_STOP_TIMEOUT", "500")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "VB-Cable", cfg.Audio.OutputDevice)
	assert.Equal(t, 500*time.Millisecond, cfg.GetStopTimeout())
}

func TestLoadConfigInvalid(t *testing.T) {
	path := writeConfig(t, "bad.conf", `[audio]
channels = 12`)

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestValidateConfig(t *testing.T) {
	valid := func() Config {
		return Config{
			Audio: AudioConfig{
				OutputDevice: "CABLE Input",
				SampleRate:   44100,
				Channels:     1,
			},
			System: SystemConfig{
				LogLevel:    "info",
				StopTimeout: 2000,
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"有效配置", func(*Config) {}, false},
		{"无效采样率", func(c *Config) { c.Audio.SampleRate = 0 }, true},
		{"无效声道数", func(c *Config) { c.Audio.Channels = 0 }, true},
		{"声道数过多", func(c *Config) { c.Audio.Channels = 9 }, true},
		{"负块大小", func(c *Config) { c.Audio.BlockSize = -1 }, true},
		{"缺少输出设备", func(c *Config) { c.Audio.OutputDevice = " " }, true},
		{"虚拟声卡缺少名称", func(c *Config) { c.Audio.CreateVirtualSink = true }, true},
		{"无效停止超时", func(c *Config) { c.System.StopTimeout = 0 }, true},
		{"无效日志级别", func(c *Config) { c.System.LogLevel = "loud" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := validateConfig(&cfg)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
