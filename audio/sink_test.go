package audio

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePactl struct {
	sinks    string
	failOn   string
	nextID   int
	commands []string
}

func (f *fakePactl) run(_ context.Context, name string, args ...string) ([]byte, error) {
	cmd := name + " " + strings.Join(args, " ")
	f.commands = append(f.commands, cmd)
	if f.failOn != "" && strings.Contains(cmd, f.failOn) {
		return nil, errors.New("exit status 1")
	}
	switch {
	case strings.HasPrefix(cmd, "pactl list short sinks"):
		return []byte(f.sinks), nil
	case strings.HasPrefix(cmd, "pactl load-module"):
		f.nextID++
		return []byte(strings.Repeat("2", f.nextID) + "\n"), nil
	}
	return nil, nil
}

const shortSinks = `0	alsa_output.pci-0000_00_1f.3.analog-stereo	module-alsa-card.c	s16le 2ch 44100Hz	SUSPENDED
1	virtual_mic	module-null-sink.c	float32le 2ch 48000Hz	IDLE
`

func TestParseShortList(t *testing.T) {
	assert.Equal(t, []string{
		"alsa_output.pci-0000_00_1f.3.analog-stereo",
		"virtual_mic",
	}, parseShortList(shortSinks))
	assert.Empty(t, parseShortList("\n"))
}

func TestEnsureVirtualSinkReusesExisting(t *testing.T) {
	pactl := &fakePactl{sinks: shortSinks}

	sink, err := ensureVirtualSink(context.Background(), "virtual_mic", pactl.run)
	require.NoError(t, err)
	assert.False(t, sink.Owned())
	assert.Len(t, pactl.commands, 1)

	require.NoError(t, sink.Remove(context.Background()))
	assert.Len(t, pactl.commands, 1)
}

func TestEnsureVirtualSinkLoadsModules(t *testing.T) {
	pactl := &fakePactl{sinks: "0\talsa_output.analog-stereo\tmodule-alsa-card.c\n"}

	sink, err := ensureVirtualSink(context.Background(), "virtual_mic", pactl.run)
	require.NoError(t, err)
	assert.True(t, sink.Owned())
	assert.Equal(t, "virtual_mic_mic", sink.SourceName())
	require.Len(t, pactl.commands, 3)
	assert.Contains(t, pactl.commands[1], "module-null-sink sink_name=virtual_mic")
	assert.Contains(t, pactl.commands[2], "master=virtual_mic.monitor")

	require.NoError(t, sink.Remove(context.Background()))
	assert.Equal(t, "pactl unload-module 22", pactl.commands[3])
	assert.Equal(t, "pactl unload-module 2", pactl.commands[4])
	assert.False(t, sink.Owned())
}

func TestEnsureVirtualSinkRollsBack(t *testing.T) {
	pactl := &fakePactl{failOn: "module-remap-source"}

	_, err := ensureVirtualSink(context.Background(), "virtual_mic", pactl.run)
	require.Error(t, err)
	assert.Equal(t, "pactl unload-module 2", pactl.commands[len(pactl.commands)-1])
}
