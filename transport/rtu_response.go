package transport

import (
	"github.com/brightfield-io/gomodbus/common"
	"github.com/brightfield-io/gomodbus/transport/crc16"
)

// RTUResponse implements the common.Response interface for Modbus RTU.
type RTUResponse struct {
	SlaveID common.UnitID
	PDU     *common.PDU
}

// NewRTUResponse creates a new RTUResponse.
func NewRTUResponse(slaveID common.UnitID, functionCode common.FunctionCode, data []byte) *RTUResponse {
	return &RTUResponse{
		SlaveID: slaveID,
		PDU: &common.PDU{
			FunctionCode: functionCode,
			Data:         data,
		},
	}
}

// GetTransactionID always returns 0: RTU has no transaction identifier.
func (r *RTUResponse) GetTransactionID() common.TransactionID {
	return 0
}

// GetUnitID returns the slave ID.
func (r *RTUResponse) GetUnitID() common.UnitID {
	return r.SlaveID
}

// GetPDU returns the PDU.
func (r *RTUResponse) GetPDU() *common.PDU {
	return r.PDU
}

// Encode encodes the response into an RTU frame: slave_id || PDU || CRC16.
func (r *RTUResponse) Encode() ([]byte, error) {
	frame := make([]byte, 0, 2+len(r.PDU.Data)+2)
	frame = append(frame, byte(r.SlaveID), byte(r.PDU.FunctionCode))
	frame = append(frame, r.PDU.Data...)
	return crc16.Append(frame), nil
}

// Decode decodes an RTU frame into the response, validating its CRC.
func (r *RTUResponse) Decode(data []byte) error {
	if len(data) < 4 {
		return common.ErrInvalidResponseLength
	}
	if !crc16.Validate(data) {
		return common.ErrInvalidCRC
	}

	r.SlaveID = common.UnitID(data[0])
	r.PDU = &common.PDU{
		FunctionCode: common.FunctionCode(data[1]),
		Data:         append([]byte(nil), data[2:len(data)-2]...),
	}
	return nil
}

// IsException checks if the response is an exception.
func (r *RTUResponse) IsException() bool {
	return common.IsFunctionException(r.PDU.FunctionCode)
}

// GetException returns the exception code if the response is an exception.
func (r *RTUResponse) GetException() common.ExceptionCode {
	if r.IsException() && len(r.PDU.Data) > 0 {
		return common.ExceptionCode(r.PDU.Data[0])
	}
	return 0
}

// ToError converts an exception response to an error.
func (r *RTUResponse) ToError() error {
	if r.IsException() {
		return common.NewModbusError(r.PDU.FunctionCode, r.GetException())
	}
	return nil
}
