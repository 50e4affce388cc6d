package oto

import (
	"encoding/binary"
	"math"

	"github.com/regenmon/regentheme"
)

const bytesPerFrame = 8 // two float32 channels

// FloatBufferTo32BitLE appends the interleaved samples of buff to dst as
// 32-bit little-endian floats, clamped to [-1, 1].
func FloatBufferTo32BitLE(buff regentheme.AudioBuffer, dst []byte) []byte {
	for _, s := range buff {
		for _, v := range s {
			v = max(-1, min(1, v))
			dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(v))
		}
	}
	return dst
}
