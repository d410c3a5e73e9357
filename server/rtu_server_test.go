package server

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightfield-io/gomodbus/common"
	"github.com/brightfield-io/gomodbus/transport"
)

// newServingRTUServer builds an RTUServer wired to one end of an in-memory
// net.Pipe and starts its serve loop, with the other end handed back so a
// test can act as the RTU master. There is no serial hardware in this test,
// so Start/serial.Open is bypassed in favor of wiring the pipe directly.
func newServingRTUServer(t *testing.T, store *MemoryStore, unitID common.UnitID) (*RTUServer, net.Conn) {
	t.Helper()
	master, slave := net.Pipe()

	s := NewRTUServer("/dev/test",
		WithRTUServerUnitID(unitID),
		WithRTUServerDataStore(store),
	)
	s.port = slave
	s.running = true
	s.startedAt = time.Now()
	s.stopChan = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	go s.serveLoop(ctx)

	t.Cleanup(func() {
		cancel()
		close(s.stopChan)
		master.Close()
		slave.Close()
	})

	return s, master
}

func readResponseFrame(t *testing.T, conn net.Conn) *transport.RTUResponse {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, common.RTUMaxADULength)
	n, err := conn.Read(buf)
	require.NoError(t, err)

	resp := &transport.RTUResponse{}
	require.NoError(t, resp.Decode(buf[:n]))
	return resp
}

func TestRTUServerRespondsToUnicastReadHoldingRegisters(t *testing.T) {
	store := NewMemoryStore()
	store.SetHoldingRegister(100, 4242)

	_, master := newServingRTUServer(t, store, 1)

	req := transport.NewRTURequest(1, common.FuncReadHoldingRegisters, []byte{0x00, 0x64, 0x00, 0x01})
	frame, err := req.Encode()
	require.NoError(t, err)
	_, err = master.Write(frame)
	require.NoError(t, err)

	resp := readResponseFrame(t, master)
	assert.Equal(t, common.UnitID(1), resp.SlaveID)
	assert.False(t, resp.IsException())
	assert.Equal(t, []byte{0x02, 0x10, 0x92}, resp.PDU.Data)
}

func TestRTUServerIgnoresFramesAddressedToOtherUnits(t *testing.T) {
	store := NewMemoryStore()
	_, master := newServingRTUServer(t, store, 1)

	req := transport.NewRTURequest(2, common.FuncReadHoldingRegisters, []byte{0x00, 0x00, 0x00, 0x01})
	frame, err := req.Encode()
	require.NoError(t, err)
	_, err = master.Write(frame)
	require.NoError(t, err)

	master.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	buf := make([]byte, common.RTUMaxADULength)
	_, err = master.Read(buf)
	assert.Error(t, err, "server must not answer a frame addressed to a different unit")
}

func TestRTUServerBroadcastWritesButNeverResponds(t *testing.T) {
	store := NewMemoryStore()
	_, master := newServingRTUServer(t, store, 1)

	req := transport.NewRTURequest(common.BroadcastUnitID, common.FuncWriteSingleCoil, []byte{0x00, 0x05, 0xFF, 0x00})
	frame, err := req.Encode()
	require.NoError(t, err)
	_, err = master.Write(frame)
	require.NoError(t, err)

	master.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	buf := make([]byte, common.RTUMaxADULength)
	_, err = master.Read(buf)
	assert.Error(t, err, "broadcast requests must never elicit a response")

	require.Eventually(t, func() bool {
		v, ok := store.GetCoil(5)
		return ok && bool(v)
	}, time.Second, 10*time.Millisecond)
}

func TestRTUServerSendsExceptionResponseWithBitSet(t *testing.T) {
	store := NewMemoryStore()
	_, master := newServingRTUServer(t, store, 1)

	// Quantity 0 is invalid for ReadHoldingRegisters.
	req := transport.NewRTURequest(1, common.FuncReadHoldingRegisters, []byte{0x00, 0x00, 0x00, 0x00})
	frame, err := req.Encode()
	require.NoError(t, err)
	_, err = master.Write(frame)
	require.NoError(t, err)

	resp := readResponseFrame(t, master)
	assert.True(t, resp.IsException())
	assert.Equal(t, common.FuncReadHoldingRegisters|0x80, resp.PDU.FunctionCode)
	assert.Equal(t, common.ExceptionInvalidDataValue, resp.GetException())
}

func TestRTUServerStatsCountSuccessfulRequest(t *testing.T) {
	store := NewMemoryStore()
	store.SetHoldingRegister(0, 1)
	s, master := newServingRTUServer(t, store, 1)

	req := transport.NewRTURequest(1, common.FuncReadHoldingRegisters, []byte{0x00, 0x00, 0x00, 0x01})
	frame, err := req.Encode()
	require.NoError(t, err)
	_, err = master.Write(frame)
	require.NoError(t, err)

	readResponseFrame(t, master)

	stats := s.Stats()
	assert.Equal(t, uint64(1), stats.TotalRequests)
	assert.Equal(t, uint64(1), stats.SuccessfulRequests)
	assert.Equal(t, uint64(0), stats.FailedRequests)
}
