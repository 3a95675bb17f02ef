package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMalgoStreamStatusFlags(t *testing.T) {
	tests := []struct {
		name   string
		out    int
		in     int
		expect StreamStatus
	}{
		{"完整缓冲区", 8, 8, 0},
		{"输入不足", 8, 4, StatusInputOverflow},
		{"输出不足", 4, 8, StatusOutputUnderflow},
		{"两者不足", 4, 4, StatusInputOverflow | StatusOutputUnderflow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got StreamStatus
			m := &malgoStream{
				bytesPerFrame: 2,
				callback: func(out, in []byte, frames uint32, status StreamStatus) {
					got = status
				},
			}
			m.onData(make([]byte, tt.out), make([]byte, tt.in), 4)
			assert.Equal(t, tt.expect, got)
		})
	}
}
