package server

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/goburrow/serial"

	"github.com/brightfield-io/gomodbus/common"
	"github.com/brightfield-io/gomodbus/logging"
	"github.com/brightfield-io/gomodbus/transport"
)

// RTUServer implements a Modbus RTU server listening on a single serial line.
// Unlike TCPServer, there is exactly one "connection" (the serial port) and
// a single task reads and dispatches frames sequentially; Modbus RTU is
// inherently half-duplex, so there is no concurrent-connection model to manage.
// Ref: Modbus over Serial Line - Specification and Implementation Guide, Section 2.5.1
type RTUServer struct {
	address  string
	baudRate int
	dataBits int
	stopBits int
	parity   string
	unitID   common.UnitID

	port io.ReadWriteCloser

	handlers     map[common.FunctionCode]common.HandlerFunc
	defaultStore common.DataStore

	running  bool
	mutex    sync.RWMutex
	stopChan chan struct{}
	logger   common.LoggerInterface
	protocol *serverProtocolHandler

	stats     serverCounters
	startedAt time.Time
}

// RTUServerOption configures an RTUServer.
type RTUServerOption func(*RTUServer)

// WithRTUServerBaudRate sets the serial baud rate.
func WithRTUServerBaudRate(baudRate int) RTUServerOption {
	return func(s *RTUServer) {
		s.baudRate = baudRate
	}
}

// WithRTUServerUnitID sets the slave address this server answers to.
func WithRTUServerUnitID(unitID common.UnitID) RTUServerOption {
	return func(s *RTUServer) {
		s.unitID = unitID
	}
}

// WithRTUServerLogger sets the logger for the RTU server.
func WithRTUServerLogger(logger common.LoggerInterface) RTUServerOption {
	return func(s *RTUServer) {
		s.logger = logger
	}
}

// WithRTUServerDataStore sets the data store for the RTU server.
func WithRTUServerDataStore(store common.DataStore) RTUServerOption {
	return func(s *RTUServer) {
		s.defaultStore = store
	}
}

// NewRTUServer creates a new Modbus RTU server for the given serial device,
// defaulting to 9600 8N1 and unit ID 1.
func NewRTUServer(address string, options ...RTUServerOption) *RTUServer {
	server := &RTUServer{
		address:      address,
		baudRate:     common.DefaultBaudRate,
		dataBits:     common.DefaultDataBits,
		stopBits:     common.DefaultStopBits,
		parity:       common.DefaultParity,
		unitID:       1,
		handlers:     make(map[common.FunctionCode]common.HandlerFunc),
		defaultStore: NewMemoryStore(),
		logger:       logging.NewLogger(),
		protocol:     newServerProtocolHandler(),
	}

	for _, option := range options {
		option(server)
	}

	server.setupDefaultHandlers()

	return server
}

// WithLogger sets the logger for the server.
func (s *RTUServer) WithLogger(logger common.LoggerInterface) common.Server {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.logger = logger
	return s
}

// WithDataStore sets the data store for the server.
func (s *RTUServer) WithDataStore(dataStore common.DataStore) common.Server {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.defaultStore = dataStore
	s.setupDefaultHandlers()
	return s
}

// setupDefaultHandlers wires the eight core function codes to the data store.
func (s *RTUServer) setupDefaultHandlers() {
	s.handlers = make(map[common.FunctionCode]common.HandlerFunc)

	s.SetHandler(common.FuncReadCoils, func(ctx context.Context, req common.Request) (common.Response, error) {
		return s.protocol.HandleReadCoils(ctx, req, s.defaultStore)
	})
	s.SetHandler(common.FuncReadDiscreteInputs, func(ctx context.Context, req common.Request) (common.Response, error) {
		return s.protocol.HandleReadDiscreteInputs(ctx, req, s.defaultStore)
	})
	s.SetHandler(common.FuncReadHoldingRegisters, func(ctx context.Context, req common.Request) (common.Response, error) {
		return s.protocol.HandleReadHoldingRegisters(ctx, req, s.defaultStore)
	})
	s.SetHandler(common.FuncReadInputRegisters, func(ctx context.Context, req common.Request) (common.Response, error) {
		return s.protocol.HandleReadInputRegisters(ctx, req, s.defaultStore)
	})
	s.SetHandler(common.FuncWriteSingleCoil, func(ctx context.Context, req common.Request) (common.Response, error) {
		return s.protocol.HandleWriteSingleCoil(ctx, req, s.defaultStore)
	})
	s.SetHandler(common.FuncWriteSingleRegister, func(ctx context.Context, req common.Request) (common.Response, error) {
		return s.protocol.HandleWriteSingleRegister(ctx, req, s.defaultStore)
	})
	s.SetHandler(common.FuncWriteMultipleCoils, func(ctx context.Context, req common.Request) (common.Response, error) {
		return s.protocol.HandleWriteMultipleCoils(ctx, req, s.defaultStore)
	})
	s.SetHandler(common.FuncWriteMultipleRegisters, func(ctx context.Context, req common.Request) (common.Response, error) {
		return s.protocol.HandleWriteMultipleRegisters(ctx, req, s.defaultStore)
	})
}

// SetHandler sets the handler for a specific Modbus function code.
func (s *RTUServer) SetHandler(functionCode common.FunctionCode, handler common.HandlerFunc) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.handlers[functionCode] = handler
}

// Stats returns a snapshot of the server's request counters.
func (s *RTUServer) Stats() common.ServerStatistics {
	s.mutex.RLock()
	startedAt := s.startedAt
	running := s.running
	s.mutex.RUnlock()

	var uptime uint64
	if running && !startedAt.IsZero() {
		uptime = uint64(time.Since(startedAt).Seconds())
	}

	return common.ServerStatistics{
		TotalRequests:      s.stats.totalRequests.Load(),
		SuccessfulRequests: s.stats.successfulRequests.Load(),
		FailedRequests:     s.stats.failedRequests.Load(),
		ConnectionsCount:   s.stats.connectionsCount.Load(),
		BytesReceived:      s.stats.bytesReceived.Load(),
		BytesSent:          s.stats.bytesSent.Load(),
		UptimeSeconds:      uptime,
	}
}

// Start opens the serial port and begins serving requests.
func (s *RTUServer) Start(ctx context.Context) error {
	s.mutex.Lock()
	if s.running {
		s.mutex.Unlock()
		return fmt.Errorf("server already running")
	}

	port, err := serial.Open(&serial.Config{
		Address:  s.address,
		BaudRate: s.baudRate,
		DataBits: s.dataBits,
		StopBits: s.stopBits,
		Parity:   s.parity,
		Timeout:  100 * time.Millisecond,
	})
	if err != nil {
		s.mutex.Unlock()
		return err
	}

	s.port = port
	s.running = true
	s.startedAt = time.Now()
	s.stopChan = make(chan struct{})
	s.stats.connectionsCount.Add(1)
	s.mutex.Unlock()

	s.logger.Info(ctx, "Modbus RTU server listening on %s as unit %d", s.address, s.unitID)

	go s.serveLoop(ctx)

	return nil
}

// Stop closes the serial port.
func (s *RTUServer) Stop(ctx context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.running {
		return nil
	}

	close(s.stopChan)
	s.running = false

	var err error
	if s.port != nil {
		err = s.port.Close()
		s.port = nil
	}

	s.logger.Info(ctx, "Modbus RTU server stopped")
	return err
}

// IsRunning returns true if the server is running.
func (s *RTUServer) IsRunning() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.running
}

// serveLoop reads RTU frames off the serial line and dispatches them.
// Ref: Modbus over Serial Line - Specification and Implementation Guide, Section 2.5.1.1
func (s *RTUServer) serveLoop(ctx context.Context) {
	buf := make([]byte, common.RTUMaxADULength)

	for {
		select {
		case <-s.stopChan:
			return
		default:
		}

		n, err := s.port.Read(buf)
		if err != nil {
			select {
			case <-s.stopChan:
				return
			default:
				// Read timeouts are expected while idle; keep polling.
				continue
			}
		}
		if n < common.RTUMinADULength {
			continue
		}

		frame := append([]byte(nil), buf[:n]...)
		s.stats.bytesReceived.Add(uint64(n))

		request := &transport.RTURequest{}
		if err := request.Decode(frame); err != nil {
			s.logger.Debug(ctx, "Dropping malformed RTU frame: %v", err)
			continue
		}

		// Ignore frames not addressed to us, unless broadcast.
		if request.SlaveID != s.unitID && request.SlaveID != common.BroadcastUnitID {
			continue
		}

		s.stats.totalRequests.Add(1)
		response, err := s.dispatchRequest(ctx, request)

		if request.IsBroadcast() {
			// Broadcasts elicit no response regardless of outcome.
			if err != nil {
				s.stats.failedRequests.Add(1)
			} else {
				s.stats.successfulRequests.Add(1)
			}
			continue
		}

		if err != nil {
			if modbusErr, ok := err.(*common.ModbusError); ok {
				s.stats.failedRequests.Add(1)
				exceptionResponse := transport.NewRTUResponse(
					s.unitID,
					modbusErr.FunctionCode|0x80,
					[]byte{byte(modbusErr.ExceptionCode)},
				)
				s.sendResponse(ctx, exceptionResponse)
			} else {
				s.stats.failedRequests.Add(1)
				s.logger.Error(ctx, "Error processing RTU request: %v", err)
			}
			continue
		}

		s.stats.successfulRequests.Add(1)
		rtuResponse := transport.NewRTUResponse(s.unitID, response.GetPDU().FunctionCode, response.GetPDU().Data)
		s.sendResponse(ctx, rtuResponse)
	}
}

// dispatchRequest routes a decoded request to its registered handler.
func (s *RTUServer) dispatchRequest(ctx context.Context, request common.Request) (common.Response, error) {
	functionCode := request.GetPDU().FunctionCode

	s.mutex.RLock()
	handler, exists := s.handlers[functionCode]
	s.mutex.RUnlock()

	if !exists {
		return nil, &common.ModbusError{
			FunctionCode:  functionCode,
			ExceptionCode: common.ExceptionFunctionCodeNotSupported,
		}
	}

	return handler(ctx, request)
}

// sendResponse encodes and writes an RTU response frame to the serial line.
func (s *RTUServer) sendResponse(ctx context.Context, response *transport.RTUResponse) {
	data, err := response.Encode()
	if err != nil {
		s.logger.Error(ctx, "Error encoding RTU response: %v", err)
		return
	}

	if _, err := s.port.Write(data); err != nil {
		s.logger.Error(ctx, "Error writing RTU response: %v", err)
		return
	}
	s.stats.bytesSent.Add(uint64(len(data)))
}
