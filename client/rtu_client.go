package client

import (
	"github.com/brightfield-io/gomodbus/common"
	"github.com/brightfield-io/gomodbus/transport"
)

// RTUClient is a Modbus RTU client communicating over a serial line.
type RTUClient struct {
	*BaseClient
	rtuTransport *transport.RTUTransport
}

// RTUOption is a function that configures an RTUClient.
type RTUOption func(*RTUClient)

// WithRTULogger sets the logger for the RTU client.
func WithRTULogger(logger common.LoggerInterface) RTUOption {
	return func(c *RTUClient) {
		c.BaseClient = c.BaseClient.WithLogger(logger).(*BaseClient)
	}
}

// WithRTUUnitID sets the unit ID (slave address) for the RTU client.
func WithRTUUnitID(unitID common.UnitID) RTUOption {
	return func(c *RTUClient) {
		c.BaseClient = NewBaseClient(
			c.rtuTransport,
			WithUnitID(unitID),
			WithLogger(c.BaseClient.logger),
			WithProtocol(c.BaseClient.protocol),
		)
	}
}

// NewRTUClient creates a new Modbus RTU client for the given serial device.
func NewRTUClient(address string, options ...transport.RTUTransportOption) *RTUClient {
	rtuTransport := transport.NewRTUTransport(address, options...)
	baseClient := NewBaseClient(rtuTransport)

	return &RTUClient{
		BaseClient:   baseClient,
		rtuTransport: rtuTransport,
	}
}

// WithOptions applies the given options to the RTUClient.
func (c *RTUClient) WithOptions(options ...RTUOption) *RTUClient {
	for _, option := range options {
		option(c)
	}
	return c
}

// WithUnitID sets the unit ID for the client and returns the client.
func (c *RTUClient) WithUnitID(unitID common.UnitID) *RTUClient {
	return c.WithOptions(WithRTUUnitID(unitID))
}

// WithLogger sets the logger for the client and returns the client.
func (c *RTUClient) WithLogger(logger common.LoggerInterface) common.Client {
	return c.WithOptions(WithRTULogger(logger))
}
