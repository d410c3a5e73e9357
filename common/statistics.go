package common

// TransportStatistics is an atomically-sampled snapshot of a transport's
// traffic counters, observable but not part of protocol semantics.
// Ref: Modbus_Application_Protocol_V1_1b3.pdf does not define this; it mirrors
// the stats surface exposed by the Rust reference implementation's transports.
type TransportStatistics struct {
	RequestsSent     uint64
	ResponsesReceived uint64
	Errors           uint64
	Timeouts         uint64
	BytesSent        uint64
	BytesReceived    uint64
}

// ServerStatistics is an atomically-sampled snapshot of a server's
// request/connection counters.
type ServerStatistics struct {
	TotalRequests      uint64
	SuccessfulRequests uint64
	FailedRequests     uint64
	ConnectionsCount   uint64
	BytesReceived      uint64
	BytesSent          uint64
	UptimeSeconds      uint64
}
