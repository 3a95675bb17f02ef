package audio_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"virtual_mic/audio"
	"virtual_mic/audio/audiotest"
)

func TestRegistryFindFirstMatchWins(t *testing.T) {
	backend := audiotest.New(
		audio.Device{ID: "in:mic", Name: "Microphone", MaxInputChannels: 1},
		audio.Device{ID: "out:cable1", Name: "CABLE Input (VB-Audio Virtual Cable)", MaxOutputChannels: 2},
		audio.Device{ID: "out:cable2", Name: "CABLE Input 2 (VB-Audio Virtual Cable B)", MaxOutputChannels: 2},
	)
	reg := audio.NewRegistry(backend)

	for i := 0; i < 50; i++ {
		dev, err := reg.Find(audio.NameContains("Cable Input"))
		require.NoError(t, err)
		assert.Equal(t, audio.DeviceID("out:cable1"), dev.ID)
	}
}

func TestRegistryFindNotFound(t *testing.T) {
	reg := audio.NewRegistry(audiotest.New(
		audio.Device{ID: "in:mic", Name: "Microphone", MaxInputChannels: 1},
	))

	_, err := reg.Find(audio.NameContains("CABLE"))
	assert.ErrorIs(t, err, audio.ErrDeviceNotFound)

	_, err = reg.FindByName("Microphone", audio.CanPlayback())
	assert.ErrorIs(t, err, audio.ErrDeviceNotFound)

	_, err = reg.Lookup("in:missing")
	assert.ErrorIs(t, err, audio.ErrDeviceNotFound)
}

func TestRegistryDefaultInput(t *testing.T) {
	backend := audiotest.New(
		audio.Device{ID: "out:spk", Name: "Speakers", MaxOutputChannels: 2, IsDefaultOutput: true},
		audio.Device{ID: "in:a", Name: "Line In", MaxInputChannels: 2},
		audio.Device{ID: "in:b", Name: "Microphone", MaxInputChannels: 1, IsDefaultInput: true},
	)
	reg := audio.NewRegistry(backend)

	dev, err := reg.DefaultInput()
	require.NoError(t, err)
	assert.Equal(t, audio.DeviceID("in:b"), dev.ID)

	backend.SetDevices(audio.Device{ID: "in:a", Name: "Line In", MaxInputChannels: 2})
	_, err = reg.DefaultInput()
	assert.ErrorIs(t, err, audio.ErrNoDefaultDevice)
}

func TestRegistryEnumerateSnapshot(t *testing.T) {
	backend := audiotest.New(
		audio.Device{ID: "in:a", Name: "Microphone", MaxInputChannels: 1},
	)
	reg := audio.NewRegistry(backend)

	first, err := reg.Enumerate()
	require.NoError(t, err)
	first[0].Name = "changed"

	backend.SetDevices(
		audio.Device{ID: "in:a", Name: "Microphone", MaxInputChannels: 1},
		audio.Device{ID: "in:b", Name: "Headset", MaxInputChannels: 2},
	)
	second, err := reg.Enumerate()
	require.NoError(t, err)

	assert.Len(t, first, 1)
	assert.Len(t, second, 2)
	assert.Equal(t, "Microphone", second[0].Name)
}

func TestNameContainsIgnoresCase(t *testing.T) {
	match := audio.NameContains("cable input")
	assert.True(t, match(audio.Device{Name: "CABLE Input (VB-Audio Virtual Cable)"}))
	assert.False(t, match(audio.Device{Name: "Speakers"}))
}
