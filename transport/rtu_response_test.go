package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightfield-io/gomodbus/common"
)

func TestRTUResponseEncodeDecodeRoundTrip(t *testing.T) {
	original := NewRTUResponse(1, common.FuncReadHoldingRegisters, []byte{0x02, 0x00, 0x64})

	encoded, err := original.Encode()
	require.NoError(t, err)

	decoded := &RTUResponse{}
	require.NoError(t, decoded.Decode(encoded))

	assert.Equal(t, original.SlaveID, decoded.SlaveID)
	assert.Equal(t, original.PDU.FunctionCode, decoded.PDU.FunctionCode)
	assert.Equal(t, original.PDU.Data, decoded.PDU.Data)
}

func TestRTUResponseIsExceptionAndToError(t *testing.T) {
	resp := NewRTUResponse(1, common.FuncReadHoldingRegisters|0x80, []byte{byte(common.ExceptionDataAddressNotAvailable)})

	assert.True(t, resp.IsException())
	assert.Equal(t, common.ExceptionDataAddressNotAvailable, resp.GetException())

	err := resp.ToError()
	require.Error(t, err)

	var modbusErr *common.ModbusError
	require.ErrorAs(t, err, &modbusErr)
	assert.Equal(t, common.FuncReadHoldingRegisters, modbusErr.FunctionCode)
	assert.Equal(t, common.ExceptionDataAddressNotAvailable, modbusErr.ExceptionCode)
}

func TestRTUResponseNormalFrameIsNotException(t *testing.T) {
	resp := NewRTUResponse(1, common.FuncReadCoils, []byte{0x01, 0xFF})
	assert.False(t, resp.IsException())
	assert.NoError(t, resp.ToError())
}

func TestRTUResponseDecodeRejectsCorruptCRC(t *testing.T) {
	resp := NewRTUResponse(1, common.FuncReadCoils, []byte{0x01, 0xFF})
	encoded, err := resp.Encode()
	require.NoError(t, err)

	encoded[0] ^= 0xFF

	decoded := &RTUResponse{}
	assert.ErrorIs(t, decoded.Decode(encoded), common.ErrInvalidCRC)
}
