package audio

import (
	"testing"

	"github.com/gen2brain/malgo"
	"github.com/stretchr/testify/assert"
)

func TestMalgoBackendIDsFollowLatestEnumeration(t *testing.T) {
	b := &MalgoBackend{ids: make(map[DeviceID]malgo.DeviceID)}

	var usb, cable malgo.DeviceID
	usb[0], cable[0] = 1, 2

	b.replaceIDs(map[DeviceID]malgo.DeviceID{"in:usb": usb, "out:cable": cable})
	got, ok := b.lookup("in:usb")
	assert.True(t, ok)
	assert.Equal(t, usb, got)

	// USB 麦克风被拔出后重新枚举
	b.replaceIDs(map[DeviceID]malgo.DeviceID{"out:cable": cable})
	_, ok = b.lookup("in:usb")
	assert.False(t, ok)
	_, ok = b.lookup("out:cable")
	assert.True(t, ok)
	assert.Len(t, b.ids, 1)
}
