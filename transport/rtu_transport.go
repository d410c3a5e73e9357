package transport

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/goburrow/serial"

	"github.com/brightfield-io/gomodbus/common"
	"github.com/brightfield-io/gomodbus/logging"
	"github.com/brightfield-io/gomodbus/transport/crc16"
)

// RTUTransport implements the common.Transport interface for Modbus RTU over
// a serial line. A serial line is half-duplex: only one request may be
// outstanding at a time, so Send holds a single mutex for the round trip
// instead of the TransactionPool/writeChan pipeline TCPTransport uses.
// Ref: Modbus over Serial Line - Specification and Implementation Guide, Section 2.5.1
type RTUTransport struct {
	logger    common.LoggerInterface
	address   string
	baudRate  int
	dataBits  int
	stopBits  int
	parity    string
	timeout   time.Duration

	mutex     sync.Mutex // serializes Send; a serial line has at most one in-flight request
	port      io.ReadWriteCloser
	connected bool

	stats transportCounters
}

// RTUTransportOption configures an RTUTransport.
type RTUTransportOption func(*RTUTransport)

// WithBaudRate sets the serial baud rate.
func WithBaudRate(baudRate int) RTUTransportOption {
	return func(t *RTUTransport) {
		t.baudRate = baudRate
	}
}

// WithDataBits sets the number of serial data bits.
func WithDataBits(dataBits int) RTUTransportOption {
	return func(t *RTUTransport) {
		t.dataBits = dataBits
	}
}

// WithStopBits sets the number of serial stop bits.
func WithStopBits(stopBits int) RTUTransportOption {
	return func(t *RTUTransport) {
		t.stopBits = stopBits
	}
}

// WithParity sets the serial parity mode ("N", "E", or "O").
func WithParity(parity string) RTUTransportOption {
	return func(t *RTUTransport) {
		t.parity = parity
	}
}

// WithRTUTimeout sets the serial read timeout.
func WithRTUTimeout(timeout time.Duration) RTUTransportOption {
	return func(t *RTUTransport) {
		t.timeout = timeout
	}
}

// WithRTULogger sets the logger for the transport.
func WithRTULogger(logger common.LoggerInterface) RTUTransportOption {
	return func(t *RTUTransport) {
		t.logger = logger
	}
}

// NewRTUTransport creates a new RTUTransport for the given serial device
// (e.g. "/dev/ttyUSB0" or "COM3"), defaulting to 9600 8N1.
// Ref: Modbus over Serial Line - Specification and Implementation Guide, Section 6
func NewRTUTransport(address string, options ...RTUTransportOption) *RTUTransport {
	t := &RTUTransport{
		logger:   logging.NewLogger(),
		address:  address,
		baudRate: common.DefaultBaudRate,
		dataBits: common.DefaultDataBits,
		stopBits: common.DefaultStopBits,
		parity:   common.DefaultParity,
		timeout:  1 * time.Second,
	}

	for _, option := range options {
		option(t)
	}

	return t
}

// WithLogger sets the logger for the transport and returns the modified transport.
func (t *RTUTransport) WithLogger(logger common.LoggerInterface) common.Transport {
	t.logger = logger
	return t
}

// Stats returns a snapshot of the transport's traffic counters.
func (t *RTUTransport) Stats() common.TransportStatistics {
	return t.stats.snapshot()
}

// Connect opens the serial port.
func (t *RTUTransport) Connect(ctx context.Context) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.connected {
		return common.ErrAlreadyConnected
	}

	t.logger.Info(ctx, "Opening serial port %s at %d baud", t.address, t.baudRate)

	port, err := serial.Open(&serial.Config{
		Address:  t.address,
		BaudRate: t.baudRate,
		DataBits: t.dataBits,
		StopBits: t.stopBits,
		Parity:   t.parity,
		Timeout:  t.timeout,
	})
	if err != nil {
		t.logger.Error(ctx, "Failed to open serial port %s: %v", t.address, err)
		return err
	}

	t.port = port
	t.connected = true

	t.logger.Info(ctx, "Serial port %s opened", t.address)
	return nil
}

// Disconnect closes the serial port.
func (t *RTUTransport) Disconnect(ctx context.Context) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if !t.connected {
		return nil
	}

	t.logger.Info(ctx, "Closing serial port %s", t.address)
	t.connected = false

	err := t.port.Close()
	t.port = nil
	return err
}

// IsConnected returns true if the serial port is open.
func (t *RTUTransport) IsConnected() bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.connected
}

// Send writes the request's RTU frame and, unless it addresses the broadcast
// unit ID 0, waits for and decodes the matching RTU response. Because the
// line is half-duplex, Send holds the transport mutex for the whole round
// trip: a second concurrent Send call blocks until the first completes.
// Ref: Modbus over Serial Line - Specification and Implementation Guide, Section 2.5.1.1
func (t *RTUTransport) Send(ctx context.Context, request common.Request) (common.Response, error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if !t.connected {
		return nil, common.ErrNotConnected
	}

	select {
	case <-ctx.Done():
		t.stats.timeouts.Add(1)
		return nil, ctx.Err()
	default:
	}

	unitID := request.GetUnitID()
	pdu := request.GetPDU()

	frame := make([]byte, 0, 2+len(pdu.Data)+2)
	frame = append(frame, byte(unitID), byte(pdu.FunctionCode))
	frame = append(frame, pdu.Data...)
	frame = crc16.Append(frame)

	if hexLogger, ok := t.logger.(common.LoggerInterfaceHexdump); ok {
		hexLogger.Hexdump(ctx, frame)
	}

	if _, err := t.port.Write(frame); err != nil {
		t.stats.errors.Add(1)
		t.logger.Error(ctx, "Error writing RTU frame: %v", err)
		return nil, err
	}
	t.stats.requestsSent.Add(1)
	t.stats.bytesSent.Add(uint64(len(frame)))

	// Broadcast requests (unit ID 0) elicit no response.
	// Ref: Modbus over Serial Line - Specification and Implementation Guide, Section 2.5.1.1
	if unitID == common.BroadcastUnitID {
		return nil, nil
	}

	// Allow the line to settle for the inter-character/inter-frame gap before reading.
	time.Sleep(t.interFrameDelay(len(frame) + expectedResponseLength(pdu.FunctionCode, pdu.Data)))

	response, err := t.readResponse(ctx, unitID, pdu.FunctionCode)
	if err != nil {
		t.stats.errors.Add(1)
		return nil, err
	}

	t.stats.responsesReceived.Add(1)
	return response, nil
}

// readResponse reads and validates a single RTU response frame.
func (t *RTUTransport) readResponse(ctx context.Context, expectedUnitID common.UnitID, requestFunction common.FunctionCode) (common.Response, error) {
	buf := make([]byte, common.RTUMaxADULength)

	n, err := io.ReadAtLeast(t.port, buf, common.RTUMinADULength)
	if err != nil {
		t.logger.Error(ctx, "Error reading RTU response: %v", err)
		return nil, err
	}
	t.stats.bytesReceived.Add(uint64(n))

	functionCode := common.FunctionCode(buf[1])
	if common.IsFunctionException(functionCode) {
		if n < common.RTUExceptionLength {
			extra, err := io.ReadFull(t.port, buf[n:common.RTUExceptionLength])
			if err != nil {
				return nil, err
			}
			t.stats.bytesReceived.Add(uint64(extra))
			n = common.RTUExceptionLength
		}
	} else {
		want := expectedResponseLength(requestFunction, nil)
		// Read the fixed header first response already has; if the function code
		// indicates a variable-length read reply, the byte count lives at buf[2].
		if functionCode == common.FuncReadCoils || functionCode == common.FuncReadDiscreteInputs ||
			functionCode == common.FuncReadHoldingRegisters || functionCode == common.FuncReadInputRegisters {
			if n >= 3 {
				want = 1 + 1 + 1 + int(buf[2]) + 2 // unit + function + byteCount + data + CRC
			}
		}
		if n < want && want <= common.RTUMaxADULength {
			extra, err := io.ReadFull(t.port, buf[n:want])
			if err != nil {
				return nil, err
			}
			t.stats.bytesReceived.Add(uint64(extra))
			n = want
		}
	}

	frame := buf[:n]

	if hexLogger, ok := t.logger.(common.LoggerInterfaceHexdump); ok {
		hexLogger.Hexdump(ctx, frame)
	}

	resp := &RTUResponse{}
	if err := resp.Decode(frame); err != nil {
		return nil, err
	}

	if resp.SlaveID != expectedUnitID {
		return nil, fmt.Errorf("%w: expected unit %d, got %d", common.ErrInvalidResponseFormat, expectedUnitID, resp.SlaveID)
	}

	return resp, nil
}

// interFrameDelay approximates the 3.5-character silent interval the spec
// uses to mark frame boundaries, scaled by the number of characters expected
// on the wire for this exchange.
// Ref: Modbus over Serial Line - Specification and Implementation Guide, Section 2.5.1.1
func (t *RTUTransport) interFrameDelay(chars int) time.Duration {
	var charDelay, frameDelay int // microseconds
	if t.baudRate <= 0 || t.baudRate > 19200 {
		charDelay = 750
		frameDelay = 1750
	} else {
		charDelay = 15000000 / t.baudRate
		frameDelay = 35000000 / t.baudRate
	}
	return time.Duration(charDelay*chars+frameDelay) * time.Microsecond
}

// expectedResponseLength returns the RTU frame length expected for a normal
// (non-exception) response to the given function, where known in advance.
// Read* functions have a variable length driven by the byte count in the
// reply itself, so their minimum is returned here and corrected once that
// byte is seen.
func expectedResponseLength(functionCode common.FunctionCode, requestData []byte) int {
	switch functionCode {
	case common.FuncWriteSingleCoil, common.FuncWriteSingleRegister,
		common.FuncWriteMultipleCoils, common.FuncWriteMultipleRegisters:
		return common.RTUMinADULength + 4 // unit + function + address(2) + value/quantity(2) + CRC
	default:
		return common.RTUMinADULength
	}
}
