package transport

import (
	"time"

	"github.com/brightfield-io/gomodbus/common"
	"github.com/brightfield-io/gomodbus/transport/crc16"
)

// RTURequest implements the common.Request interface for Modbus RTU.
// RTU has no transaction identifier on the wire: because a single RTU
// transport is strictly half-duplex, the in-flight request is correlated
// implicitly by being the only one outstanding.
// Ref: Modbus over Serial Line - Specification and Implementation Guide, Section 2.5.1
type RTURequest struct {
	SlaveID common.UnitID
	PDU     *common.PDU
	Create  time.Time
}

// NewRTURequest creates a new RTURequest.
func NewRTURequest(slaveID common.UnitID, functionCode common.FunctionCode, data []byte) *RTURequest {
	return &RTURequest{
		SlaveID: slaveID,
		PDU: &common.PDU{
			FunctionCode: functionCode,
			Data:         data,
		},
		Create: time.Now(),
	}
}

// GetTransactionID always returns 0: RTU has no transaction identifier.
func (r *RTURequest) GetTransactionID() common.TransactionID {
	return 0
}

// SetTransactionID is a no-op for RTU requests.
func (r *RTURequest) SetTransactionID(id common.TransactionID) {}

// GetUnitID returns the slave ID.
func (r *RTURequest) GetUnitID() common.UnitID {
	return r.SlaveID
}

// GetPDU returns the PDU.
func (r *RTURequest) GetPDU() *common.PDU {
	return r.PDU
}

// IsBroadcast reports whether this request addresses all responders.
// Ref: Modbus over Serial Line - Specification and Implementation Guide, Section 2.5.1.1
func (r *RTURequest) IsBroadcast() bool {
	return r.SlaveID == 0
}

// Encode encodes the request into an RTU frame: slave_id || PDU || CRC16.
func (r *RTURequest) Encode() ([]byte, error) {
	frame := make([]byte, 0, 2+len(r.PDU.Data)+2)
	frame = append(frame, byte(r.SlaveID), byte(r.PDU.FunctionCode))
	frame = append(frame, r.PDU.Data...)
	return crc16.Append(frame), nil
}

// Decode decodes an RTU frame into the request, validating its CRC.
func (r *RTURequest) Decode(data []byte) error {
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

// GetLifetime returns how long the request has been outstanding.
func (r *RTURequest) GetLifetime() time.Duration {
	return time.Since(r.Create)
}

// Cancel is called when a request is abandoned (e.g. on timeout).
func (r *RTURequest) Cancel(err error) {}
