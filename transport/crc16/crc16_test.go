package crc16

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestChecksumKnownFrame(t *testing.T) {
	// Ref: spec end-to-end scenario 4 - frame 01 03 00 00 00 01 has CRC 0x840B
	frame := []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x01}
	require.Equal(t, uint16(0x840B), Checksum(frame))
}

func TestAppendKnownFrame(t *testing.T) {
	frame := []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x01}
	encoded := Append(frame)
	assert.Equal(t, []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x01, 0x0B, 0x84}, encoded)
}

func TestValidateDetectsCorruption(t *testing.T) {
	encoded := Append([]byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x01})
	require.True(t, Validate(encoded))

	for i := range encoded {
		corrupted := append([]byte(nil), encoded...)
		corrupted[i] ^= 0xFF
		assert.False(t, Validate(corrupted), "byte %d flip should invalidate CRC", i)
	}
}

// Residue check: crc16(B || crc16(B)) == 0 for any byte sequence B.
// Ref: spec testable property 3.
func TestResidueProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		data := rapid.SliceOfN(rapid.Byte(), 0, 256).Draw(t, "data")
		framed := Append(append([]byte(nil), data...))
		require.Equal(t, uint16(0), Checksum(framed))
	})
}
