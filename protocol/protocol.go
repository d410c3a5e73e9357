package protocol

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/brightfield-io/gomodbus/common"
	"github.com/brightfield-io/gomodbus/logging"
)

// ProtocolHandler implements the common.Protocol interface for Modbus protocol
type ProtocolHandler struct {
	logger common.LoggerInterface
}

// Option is a function that configures a ProtocolHandler
type Option func(*ProtocolHandler)

// WithLogger sets the logger for the protocol handler
func WithLogger(logger common.LoggerInterface) Option {
	return func(p *ProtocolHandler) {
		p.logger = logger
	}
}

// NewProtocolHandler creates a new ProtocolHandler with options
func NewProtocolHandler(options ...Option) *ProtocolHandler {
	handler := &ProtocolHandler{
		logger: logging.NewLogger(), // Default logger
	}

	// Apply options
	for _, option := range options {
		option(handler)
	}

	return handler
}

// WithLogger returns a new ProtocolHandler with the given logger
func (h *ProtocolHandler) WithLogger(logger common.LoggerInterface) common.Protocol {
	return NewProtocolHandler(WithLogger(logger))
}

// generateReadRequest is a helper function for generating read requests that follow the same pattern
// (read coils, read discrete inputs, read holding registers, read input registers)
func (h *ProtocolHandler) generateReadRequest(itemType string, address common.Address, quantity common.Quantity, maxQuantity common.Quantity) ([]byte, error) {
	ctx := context.Background()
	h.logger.Debug(ctx, "Generating read %s request: address=%d, quantity=%d", itemType, address, quantity)

	if quantity == 0 || quantity > maxQuantity {
		h.logger.Error(ctx, "Invalid quantity for read %s request: %d (max %d)", itemType, quantity, maxQuantity)
		return nil, common.ErrInvalidQuantity
	}

	data := make([]byte, 4)
	binary.BigEndian.PutUint16(data[0:2], uint16(address))
	binary.BigEndian.PutUint16(data[2:4], uint16(quantity))

	h.logger.Debug(ctx, "Generated read %s request data: %v", itemType, data)
	return data, nil
}

// parseBitResponse is a helper function for parsing responses that contain bit values
// (coils and discrete inputs)
func (h *ProtocolHandler) parseBitResponse(itemType string, data []byte, quantity common.Quantity) ([]bool, error) {
	ctx := context.Background()
	h.logger.Debug(ctx, "Parsing read %s response: data=%v, quantity=%d", itemType, data, quantity)

	if len(data) == 0 {
		h.logger.Error(ctx, "Empty response for read %s", itemType)
		return nil, common.ErrEmptyResponse
	}

	// First byte is the byte count
	byteCount := int(data[0])
	if len(data) != byteCount+1 {
		h.logger.Error(ctx, "Invalid response length for read %s: expected %d, got %d",
			itemType, byteCount+1, len(data))
		return nil, common.ErrInvalidResponseLength
	}

	// Calculate the expected byte count
	expectedByteCount := int(math.Ceil(float64(quantity) / 8.0))
	if byteCount != expectedByteCount {
		h.logger.Error(ctx, "Invalid byte count for read %s: expected %d, got %d",
			itemType, expectedByteCount, byteCount)
		return nil, common.ErrInvalidResponseLength
	}

	// Parse the values
	values := make([]bool, quantity)
	for i := 0; i < int(quantity); i++ {
		byteIndex := i / 8
		bitIndex := i % 8
		byteValue := data[1+byteIndex]
		values[i] = ((byteValue >> uint(bitIndex)) & 0x01) == 1
	}

	h.logger.Debug(ctx, "Parsed %d %s values", len(values), itemType)
	return values, nil
}

// parseRegisterResponse is a helper function for parsing responses that contain register values
// (holding registers and input registers)
func (h *ProtocolHandler) parseRegisterResponse(itemType string, data []byte, quantity common.Quantity) ([]uint16, error) {
	ctx := context.Background()
	h.logger.Debug(ctx, "Parsing read %s response: data=%v, quantity=%d", itemType, data, quantity)

	if len(data) == 0 {
		h.logger.Error(ctx, "Empty response for read %s", itemType)
		return nil, common.ErrEmptyResponse
	}

	// First byte is the byte count
	byteCount := int(data[0])
	if len(data) != byteCount+1 {
		h.logger.Error(ctx, "Invalid response length for read %s: expected %d, got %d",
			itemType, byteCount+1, len(data))
		return nil, common.ErrInvalidResponseLength
	}

	// Calculate the expected byte count
	expectedByteCount := int(quantity) * 2
	if byteCount != expectedByteCount {
		h.logger.Error(ctx, "Invalid byte count for read %s: expected %d, got %d",
			itemType, expectedByteCount, byteCount)
		return nil, common.ErrInvalidResponseLength
	}

	// Parse the values
	values := make([]uint16, quantity)
	for i := 0; i < int(quantity); i++ {
		values[i] = binary.BigEndian.Uint16(data[1+i*2 : 1+i*2+2])
	}

	h.logger.Debug(ctx, "Parsed %d %s values", len(values), itemType)
	return values, nil
}

// GenerateReadCoilsRequest generates a request to read coils
// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6.1 (Read Coils)
//
// PDU Data:
// Starting Address (2 bytes) - Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6.1
// Quantity of Coils (2 bytes) - Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6.1
// Quantity constraints: 1 to 2000 - Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6.1
func (h *ProtocolHandler) GenerateReadCoilsRequest(address common.Address, quantity common.Quantity) ([]byte, error) {
	return h.generateReadRequest("coils", address, quantity, common.MaxCoilCount)
}

// ParseReadCoilsResponse parses a response to a read coils request
// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6.1 (Read Coils)
//
// PDU Data:
// Byte Count (1 byte) - Number of data bytes to follow (N) - Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6.1
// Coil Status (Byte Count bytes, packed bits, LSB of first byte = lowest address) - Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6.1
func (h *ProtocolHandler) ParseReadCoilsResponse(data []byte, quantity common.Quantity) ([]common.CoilValue, error) {
	// Use the parseBitResponse helper and cast the result to the expected type
	values, err := h.parseBitResponse("coils", data, quantity)
	if err != nil {
		return nil, err
	}

	// Convert []bool to []common.CoilValue (type alias, so this is a no-op in Go)
	coilValues := make([]common.CoilValue, len(values))
	for i, v := range values {
		coilValues[i] = common.CoilValue(v)
	}

	return coilValues, nil
}

// GenerateReadDiscreteInputsRequest generates a request to read discrete inputs
// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6.2 (Read Discrete Inputs)
func (h *ProtocolHandler) GenerateReadDiscreteInputsRequest(address common.Address, quantity common.Quantity) ([]byte, error) {
	return h.generateReadRequest("discrete inputs", address, quantity, common.MaxCoilCount)
}

// ParseReadDiscreteInputsResponse parses a response to a read discrete inputs request
// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6.2 (Read Discrete Inputs)
func (h *ProtocolHandler) ParseReadDiscreteInputsResponse(data []byte, quantity common.Quantity) ([]common.DiscreteInputValue, error) {
	// Use the parseBitResponse helper and cast the result to the expected type
	values, err := h.parseBitResponse("discrete inputs", data, quantity)
	if err != nil {
		return nil, err
	}

	// Convert []bool to []common.DiscreteInputValue (type alias, so this is a no-op in Go)
	discreteValues := make([]common.DiscreteInputValue, len(values))
	for i, v := range values {
		discreteValues[i] = common.DiscreteInputValue(v)
	}

	return discreteValues, nil
}

// GenerateReadHoldingRegistersRequest generates a request to read holding registers
// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6.3 (Read Holding Registers)
func (h *ProtocolHandler) GenerateReadHoldingRegistersRequest(address common.Address, quantity common.Quantity) ([]byte, error) {
	return h.generateReadRequest("holding registers", address, quantity, common.MaxRegisterCount)
}

// ParseReadHoldingRegistersResponse parses a response to a read holding registers request
// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6.3 (Read Holding Registers)
func (h *ProtocolHandler) ParseReadHoldingRegistersResponse(data []byte, quantity common.Quantity) ([]common.RegisterValue, error) {
	// Use the parseRegisterResponse helper and cast the result to the expected type
	values, err := h.parseRegisterResponse("holding registers", data, quantity)
	if err != nil {
		return nil, err
	}

	// Convert []uint16 to []common.RegisterValue (type alias, so this is a no-op in Go)
	registerValues := make([]common.RegisterValue, len(values))
	for i, v := range values {
		registerValues[i] = common.RegisterValue(v)
	}

	return registerValues, nil
}

// GenerateReadInputRegistersRequest generates a request to read input registers
// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6.4 (Read Input Registers)
func (h *ProtocolHandler) GenerateReadInputRegistersRequest(address common.Address, quantity common.Quantity) ([]byte, error) {
	return h.generateReadRequest("input registers", address, quantity, common.MaxRegisterCount)
}

// ParseReadInputRegistersResponse parses a response to a read input registers request
// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6.4 (Read Input Registers)
func (h *ProtocolHandler) ParseReadInputRegistersResponse(data []byte, quantity common.Quantity) ([]common.InputRegisterValue, error) {
	// Use the parseRegisterResponse helper and cast the result to the expected type
	values, err := h.parseRegisterResponse("input registers", data, quantity)
	if err != nil {
		return nil, err
	}

	// Convert []uint16 to []common.InputRegisterValue (type alias, so this is a no-op in Go)
	inputValues := make([]common.InputRegisterValue, len(values))
	for i, v := range values {
		inputValues[i] = common.InputRegisterValue(v)
	}

	return inputValues, nil
}

// GenerateWriteSingleCoilRequest generates a request to write a single coil
// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6.5 (Write Single Coil)
//
// PDU Data:
// Output Address (2 bytes) - Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6.5
// Output Value (2 bytes: 0xFF00 for ON, 0x0000 for OFF) - Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6.5
func (h *ProtocolHandler) GenerateWriteSingleCoilRequest(address common.Address, value common.CoilValue) ([]byte, error) {
	ctx := context.Background()
	h.logger.Debug(ctx, "Generating write single coil request: address=%d, value=%t", address, value)

	data := make([]byte, 4)
	// Write address in big-endian format (most significant byte first)
	// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 4.3 (Data Encoding)
	binary.BigEndian.PutUint16(data[0:2], uint16(address))

	// Encode boolean as 0xFF00 (on) or 0x0000 (off)
	// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6.5
	// The requested ON/OFF state is specified by a constant in the Coil Value field.
	// A value of 0xFF00 requests the coil to be ON. A value of 0x0000 requests the coil to be OFF.
	if value {
		binary.BigEndian.PutUint16(data[2:4], common.CoilOnU16)
	} else {
		binary.BigEndian.PutUint16(data[2:4], common.CoilOffU16)
	}

	h.logger.Debug(ctx, "Generated write single coil request data: %v", data)
	return data, nil
}

// ParseWriteSingleCoilResponse parses a response to a write single coil request
// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6.5 (Write Single Coil)
//
// PDU Data (Echo of request):
// Output Address (2 bytes) - Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6.5
// Output Value (2 bytes) - Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6.5
func (h *ProtocolHandler) ParseWriteSingleCoilResponse(data []byte) (common.Address, common.CoilValue, error) {
	ctx := context.Background()
	h.logger.Debug(ctx, "Parsing write single coil response: data=%v", data)

	if len(data) != 4 {
		h.logger.Error(ctx, "Invalid response length for write single coil: expected 4, got %d", len(data))
		return 0, false, common.ErrInvalidResponseLength
	}

	// Parse address from big-endian format
	// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 4.3 (Data Encoding)
	address := common.Address(binary.BigEndian.Uint16(data[0:2]))
	value := binary.BigEndian.Uint16(data[2:4])

	// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6.5
	// The normal response is an echo of the request
	switch value {
	case common.CoilOnU16:
		h.logger.Debug(ctx, "Parsed write single coil response: address=%d, value=true", address)
		return address, true, nil
	case common.CoilOffU16:
		h.logger.Debug(ctx, "Parsed write single coil response: address=%d, value=false", address)
		return address, false, nil
	default:
		h.logger.Error(ctx, "Invalid coil value in response: %d", value)
		return address, false, fmt.Errorf("invalid coil value: %d", value)
	}
}

// GenerateWriteSingleRegisterRequest generates a request to write a single register
func (h *ProtocolHandler) GenerateWriteSingleRegisterRequest(address common.Address, value common.RegisterValue) ([]byte, error) {
	ctx := context.Background()
	h.logger.Debug(ctx, "Generating write single register request: address=%d, value=%d", address, value)

	data := make([]byte, 4)
	binary.BigEndian.PutUint16(data[0:2], uint16(address))
	binary.BigEndian.PutUint16(data[2:4], value)

	h.logger.Debug(ctx, "Generated write single register request data: %v", data)
	return data, nil
}

// ParseWriteSingleRegisterResponse parses a response to a write single register request
func (h *ProtocolHandler) ParseWriteSingleRegisterResponse(data []byte) (common.Address, common.RegisterValue, error) {
	ctx := context.Background()
	h.logger.Debug(ctx, "Parsing write single register response: data=%v", data)

	if len(data) != 4 {
		h.logger.Error(ctx, "Invalid response length for write single register: expected 4, got %d", len(data))
		return 0, 0, common.ErrInvalidResponseLength
	}

	address := common.Address(binary.BigEndian.Uint16(data[0:2]))
	value := common.RegisterValue(binary.BigEndian.Uint16(data[2:4]))

	h.logger.Debug(ctx, "Parsed write single register response: address=%d, value=%d", address, value)
	return address, value, nil
}

// GenerateWriteMultipleCoilsRequest generates a request to write multiple coils
// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6.11 (Write Multiple Coils)
//
// PDU Data:
// Starting Address (2 bytes) - Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6.11
// Quantity of Outputs (2 bytes) - Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6.11
// Byte Count (1 byte) - Number of data bytes to follow - Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6.11
// Output Value (Byte Count bytes, packed bits) - Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6.11
// Quantity constraints: 1 to 1968 (0x07B0) - Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6.11 (Table of Constraints)
func (h *ProtocolHandler) GenerateWriteMultipleCoilsRequest(address common.Address, values []common.CoilValue) ([]byte, error) {
	ctx := context.Background()
	h.logger.Debug(ctx, "Generating write multiple coils request: address=%d, count=%d",
		address, len(values))

	if len(values) == 0 || len(values) > common.MaxWriteCoilCount {
		h.logger.Error(ctx, "Invalid quantity for write multiple coils request: %d", len(values))
		return nil, common.ErrInvalidQuantity
	}

	// Calculate byte count and allocate data
	byteCount := int(math.Ceil(float64(len(values)) / 8.0))
	data := make([]byte, 5+byteCount)

	// Address - in big-endian format
	// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 4.3 (Data Encoding)
	binary.BigEndian.PutUint16(data[0:2], uint16(address))
	// Quantity - in big-endian format
	binary.BigEndian.PutUint16(data[2:4], uint16(len(values)))
	// Byte count
	data[4] = byte(byteCount)

	// Pack coil values - LSB of first byte is the lowest coil address
	// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6.11
	for i, value := range values {
		byteIndex := i / 8
		bitIndex := i % 8

		if value {
			data[5+byteIndex] |= (1 << uint(bitIndex))
		}
	}

	h.logger.Debug(ctx, "Generated write multiple coils request data: %v", data)
	return data, nil
}

// ParseWriteMultipleCoilsResponse parses a response to a write multiple coils request
// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6.11 (Write Multiple Coils)
//
// PDU Data:
// Starting Address (2 bytes) - Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6.11
// Quantity of Outputs (2 bytes) - Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6.11
func (h *ProtocolHandler) ParseWriteMultipleCoilsResponse(data []byte) (common.Address, common.Quantity, error) {
	ctx := context.Background()
	h.logger.Debug(ctx, "Parsing write multiple coils response: data=%v", data)

	if len(data) != 4 {
		h.logger.Error(ctx, "Invalid response length for write multiple coils: expected 4, got %d", len(data))
		return 0, 0, common.ErrInvalidResponseLength
	}

	// Parse address and quantity from big-endian format
	// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 4.3 (Data Encoding)
	address := common.Address(binary.BigEndian.Uint16(data[0:2]))
	quantity := common.Quantity(binary.BigEndian.Uint16(data[2:4]))

	h.logger.Debug(ctx, "Parsed write multiple coils response: address=%d, quantity=%d", address, quantity)
	return address, quantity, nil
}

// GenerateWriteMultipleRegistersRequest generates a request to write multiple registers
func (h *ProtocolHandler) GenerateWriteMultipleRegistersRequest(address common.Address, values []common.RegisterValue) ([]byte, error) {
	ctx := context.Background()
	h.logger.Debug(ctx, "Generating write multiple registers request: address=%d, count=%d",
		address, len(values))

	if len(values) == 0 || len(values) > common.MaxWriteRegisterCount {
		h.logger.Error(ctx, "Invalid quantity for write multiple registers request: %d", len(values))
		return nil, common.ErrInvalidQuantity
	}

	// Calculate byte count
	byteCount := len(values) * 2

	// Allocate data
	data := make([]byte, 5+byteCount)

	// Address
	binary.BigEndian.PutUint16(data[0:2], uint16(address))
	// Quantity
	binary.BigEndian.PutUint16(data[2:4], uint16(len(values)))
	// Byte count
	data[4] = byte(byteCount)

	// Pack register values
	for i, value := range values {
		binary.BigEndian.PutUint16(data[5+i*2:5+i*2+2], value)
	}

	h.logger.Debug(ctx, "Generated write multiple registers request data: %v", data)
	return data, nil
}

// ParseWriteMultipleRegistersResponse parses a response to a write multiple registers request
func (h *ProtocolHandler) ParseWriteMultipleRegistersResponse(data []byte) (common.Address, common.Quantity, error) {
	ctx := context.Background()
	h.logger.Debug(ctx, "Parsing write multiple registers response: data=%v", data)

	if len(data) != 4 {
		h.logger.Error(ctx, "Invalid response length for write multiple registers: expected 4, got %d", len(data))
		return 0, 0, common.ErrInvalidResponseLength
	}

	address := common.Address(binary.BigEndian.Uint16(data[0:2]))
	quantity := common.Quantity(binary.BigEndian.Uint16(data[2:4]))

	h.logger.Debug(ctx, "Parsed write multiple registers response: address=%d, quantity=%d", address, quantity)
	return address, quantity, nil
}

