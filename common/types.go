package common

import "fmt"

// TransactionID is a unique identifier for a transaction
// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 4.1 (MBAP Header), Field 1
type TransactionID uint16

// ProtocolID identifies the protocol used (e.g., Modbus TCP, RTU)
// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 4.1 (MBAP Header), Field 2
type ProtocolID uint16

// UnitID identifies a specific device on a Modbus network
// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 4.1 (MBAP Header), Field 4
type UnitID byte

// ExceptionCode represents an exception code in a Modbus response
// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 7 (Exception Responses)
type ExceptionCode byte

// FunctionCode represents a Modbus function code
// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6 (MODBUS Function Codes)
type FunctionCode byte

// Address represents a Modbus address (coil, register, etc.)
// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 4.3 (MODBUS Data Model)
// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 4.4 (Addressing Model - specifies 0-65535 range)
type Address uint16

// Quantity represents the number of coils or registers to read/write
// Ref: Modbus_Application_Protocol_V1_1b3.pdf, e.g., Section 6.1 (Read Coils Request PDU defines "Quantity of Coils")
type Quantity uint16

// CoilValue alias represents a coil value
// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6.1 (Read Coils) and 6.5 (Write Single Coil)
type CoilValue = bool

// DiscreteInputValue alias represents a discrete input value
// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6.2 (Read Discrete Inputs)
type DiscreteInputValue = bool

// RegisterValue alias represents a holding register value
// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6.3 (Read Holding Registers)
type RegisterValue = uint16

// InputRegisterValue alias represents an input register value
// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6.4 (Read Input Registers)
type InputRegisterValue = uint16

// Function codes as defined by the Modbus specification
// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6 (Function Codes)
// This library implements the eight primary data-access codes only.
const (
	FuncReadCoils              FunctionCode = 0x01 // Ref: Section 6.1
	FuncReadDiscreteInputs     FunctionCode = 0x02 // Ref: Section 6.2
	FuncReadHoldingRegisters   FunctionCode = 0x03 // Ref: Section 6.3
	FuncReadInputRegisters     FunctionCode = 0x04 // Ref: Section 6.4
	FuncWriteSingleCoil        FunctionCode = 0x05 // Ref: Section 6.5
	FuncWriteSingleRegister    FunctionCode = 0x06 // Ref: Section 6.6
	FuncWriteMultipleCoils     FunctionCode = 0x0F // Ref: Section 6.11
	FuncWriteMultipleRegisters FunctionCode = 0x10 // Ref: Section 6.12

	// Exception codes
	// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 7 (Exception Codes)
	ExceptionFunctionCodeNotSupported ExceptionCode = 0x01 // Ref: Section 7.1
	ExceptionDataAddressNotAvailable  ExceptionCode = 0x02 // Ref: Section 7.2
	ExceptionInvalidDataValue         ExceptionCode = 0x03 // Ref: Section 7.3
	ExceptionServerDeviceFailure      ExceptionCode = 0x04 // Ref: Section 7.4
)

// String returns the string representation of a FunctionCode
func (f FunctionCode) String() string {
	switch f {
	case FuncReadCoils:
		return "ReadCoils"
	case FuncReadDiscreteInputs:
		return "ReadDiscreteInputs"
	case FuncReadHoldingRegisters:
		return "ReadHoldingRegisters"
	case FuncReadInputRegisters:
		return "ReadInputRegisters"
	case FuncWriteSingleCoil:
		return "WriteSingleCoil"
	case FuncWriteSingleRegister:
		return "WriteSingleRegister"
	case FuncWriteMultipleCoils:
		return "WriteMultipleCoils"
	case FuncWriteMultipleRegisters:
		return "WriteMultipleRegisters"
	default:
		// If it's an exception response
		if IsException(byte(f)) {
			original := GetOriginalFunctionCode(byte(f))
			return fmt.Sprintf("Exception(%s)", FunctionCode(original).String())
		}
		return fmt.Sprintf("Unknown(0x%02X)", byte(f))
	}
}

func (e ExceptionCode) String() string {
	switch e {
	case ExceptionFunctionCodeNotSupported:
		return "FunctionCodeNotSupported"
	case ExceptionDataAddressNotAvailable:
		return "DataAddressNotAvailable"
	case ExceptionInvalidDataValue:
		return "InvalidDataValue"
	case ExceptionServerDeviceFailure:
		return "ServerDeviceFailure"
	default:
		return fmt.Sprintf("Unknown(0x%02X)", byte(e))
	}
}

// Protocol-specific constants
// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 4 (Data Model)
const (
	// Modbus TCP
	// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 4.1 (MBAP Header)
	TCPHeaderLength = 7   // Transaction ID (2) + Protocol ID (2) + Length (2) + Unit ID (1)
	MaxPDULength    = 253 // Maximum PDU length
	MaxADULength    = 260 // Maximum ADU length (TCP with header)
	DefaultTCPPort  = 502 // Default Modbus TCP port

	// Data sizes
	// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 4.3 (Data Encoding)
	// BytesPerCoil and BytesPerDiscreteInput refer to how individual statuses are packed,
	// not that each coil/input uses a full byte in a multi-item request/response.
	// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6.1 (Read Coils Response - "coil status ... packed as one coil per bit")
	BytesPerCoil          = 1 // Represents a single status bit; multiple are packed.
	BytesPerDiscreteInput = 1 // Represents a single status bit; multiple are packed.
	BytesPerRegister      = 2 // Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6.3 (Read Holding Registers Response - "Each register data in two bytes")
	BytesPerInputRegister = 2 // Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6.4 (Read Input Registers Response)

	// Modbus limits
	// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6.x (various function specific limits)
	MaxCoilCount     = 2000 // Maximum number of coils in a single request, Ref: Section 6.11
	MaxRegisterCount = 125  // Maximum number of registers in a single request, Ref: Section 6.12

	MaxWriteCoilCount     = 1968 // Maximum quantity of outputs for Write Multiple Coils, Ref: Section 6.11
	MaxWriteRegisterCount = 123  // Maximum quantity of registers for Write Multiple Registers, Ref: Section 6.12

	// Coil Values as defined in the Modbus specification
	// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6.5 (Write Single Coil)
	//
	// "The requested ON/OFF state is specified by a constant in the Coil Value field.
	// A value of 0xFF00 requests the coil to be ON.
	// A value of 0x0000 requests the coil to be OFF.
	// All other values are illegal and will not affect the coil."
	//
	CoilOnU16  = 0xFF00 // ON value for coils in register format
	CoilOffU16 = 0x0000 // OFF value for coils in register format

	// Modbus RTU (serial line)
	// Ref: Modbus over Serial Line - Specification and Implementation Guide, Section 2.5.1
	RTUMinADULength     = 4     // Slave ID (1) + Function code (1) + CRC (2)
	RTUMaxADULength     = 256   // Slave ID (1) + PDU (253) + CRC (2)
	RTUExceptionLength  = 5     // Slave ID (1) + Function code (1) + Exception code (1) + CRC (2)
	BroadcastUnitID     = 0     // Ref: Section 2.5.1.1, broadcast elicits no response
	DefaultBaudRate     = 9600  // Ref: Section 6, common serial line default
	DefaultDataBits     = 8
	DefaultStopBits     = 1
	DefaultParity       = "N"
)

// TCPProtocolIdentifier is the standard identifier for Modbus TCP
// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 4.1
const TCPProtocolIdentifier = ProtocolID(0)

// ExceptionBit is the bit that is set in the function code to indicate an exception response
// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 7 (Exception Responses)
const ExceptionBit byte = 0x80

// IsException checks if a function code represents an exception
func IsException(functionCode byte) bool {
	return (functionCode & ExceptionBit) != 0
}

// IsFunctionException checks if a FunctionCode represents an exception
func IsFunctionException(functionCode FunctionCode) bool {
	return IsException(byte(functionCode))
}

// GetOriginalFunctionCode extracts the original function code from an exception
func GetOriginalFunctionCode(exceptionCode byte) byte {
	return exceptionCode & ^ExceptionBit
}

// GetOriginalFunction extracts the original FunctionCode from an exception
func GetOriginalFunction(exceptionCode FunctionCode) FunctionCode {
	return FunctionCode(GetOriginalFunctionCode(byte(exceptionCode)))
}
