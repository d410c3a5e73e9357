package transport

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightfield-io/gomodbus/common"
)

// newConnectedRTUTransport builds an RTUTransport wired to one end of an
// in-memory net.Pipe, with the other end handed back so a test can act as
// the serial slave. The transport is marked connected without going through
// Connect/serial.Open, since there is no serial hardware in this test.
func newConnectedRTUTransport(t *testing.T) (*RTUTransport, net.Conn) {
	t.Helper()
	client, slave := net.Pipe()
	tr := NewRTUTransport("/dev/test", WithRTUTimeout(time.Second))
	tr.port = client
	tr.connected = true
	return tr, slave
}

func TestRTUTransportSendReceivesMatchingResponse(t *testing.T) {
	tr, slave := newConnectedRTUTransport(t)
	defer slave.Close()

	go func() {
		buf := make([]byte, common.RTUMaxADULength)
		n, err := slave.Read(buf)
		if err != nil {
			return
		}
		_ = n
		resp := NewRTUResponse(1, common.FuncReadHoldingRegisters, []byte{0x02, 0x00, 0x7B})
		encoded, _ := resp.Encode()
		slave.Write(encoded)
	}()

	req := NewRTURequest(1, common.FuncReadHoldingRegisters, []byte{0x00, 0x00, 0x00, 0x01})
	resp, err := tr.Send(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, common.UnitID(1), resp.GetUnitID())
	assert.Equal(t, []byte{0x02, 0x00, 0x7B}, resp.GetPDU().Data)

	stats := tr.Stats()
	assert.Equal(t, uint64(1), stats.RequestsSent)
	assert.Equal(t, uint64(1), stats.ResponsesReceived)
}

func TestRTUTransportBroadcastReturnsNoResponse(t *testing.T) {
	tr, slave := newConnectedRTUTransport(t)
	defer slave.Close()

	received := make(chan []byte, 1)
	go func() {
		buf := make([]byte, common.RTUMaxADULength)
		n, err := slave.Read(buf)
		if err != nil {
			return
		}
		received <- append([]byte(nil), buf[:n]...)
	}()

	req := NewRTURequest(common.BroadcastUnitID, common.FuncWriteSingleCoil, []byte{0x00, 0x64, 0xFF, 0x00})
	resp, err := tr.Send(context.Background(), req)
	require.NoError(t, err)
	assert.Nil(t, resp)

	select {
	case frame := <-received:
		assert.Equal(t, byte(0), frame[0])
	case <-time.After(time.Second):
		t.Fatal("slave never received the broadcast frame")
	}
}

func TestRTUTransportSendRejectsWhenDisconnected(t *testing.T) {
	tr := NewRTUTransport("/dev/test")
	_, err := tr.Send(context.Background(), NewRTURequest(1, common.FuncReadCoils, nil))
	assert.ErrorIs(t, err, common.ErrNotConnected)
}

func TestRTUTransportSendSerializesConcurrentCalls(t *testing.T) {
	// A serial line is half-duplex: two concurrent Send calls share one line.
	// The slave holds the first exchange open until a second goroutine has
	// started and is about to Send; the test asserts that the first Send did
	// not return before that point and that both Send calls succeed.
	tr, slave := newConnectedRTUTransport(t)
	defer slave.Close()

	var order []int
	var mu sync.Mutex
	record := func(i int) {
		mu.Lock()
		order = append(order, i)
		mu.Unlock()
	}

	unblockFirst := make(chan struct{})
	go func() {
		buf := make([]byte, common.RTUMaxADULength)
		slave.Read(buf) // first request
		<-unblockFirst
		resp := NewRTUResponse(1, common.FuncReadCoils, []byte{0x01, 0x01})
		encoded, _ := resp.Encode()
		slave.Write(encoded)

		slave.Read(buf) // second request
		resp2 := NewRTUResponse(1, common.FuncReadCoils, []byte{0x01, 0x00})
		encoded2, _ := resp2.Encode()
		slave.Write(encoded2)
	}()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := tr.Send(context.Background(), NewRTURequest(1, common.FuncReadCoils, []byte{0x00, 0x00, 0x00, 0x08}))
		require.NoError(t, err)
		record(1)
	}()
	go func() {
		defer wg.Done()
		time.Sleep(20 * time.Millisecond) // give the first Send time to take the mutex
		record(2)
		close(unblockFirst)
		_, err := tr.Send(context.Background(), NewRTURequest(1, common.FuncReadCoils, []byte{0x00, 0x00, 0x00, 0x08}))
		require.NoError(t, err)
	}()

	wg.Wait()
	require.Len(t, order, 2)
	assert.Equal(t, 2, order[0], "second goroutine records its start before the first Send can complete")
}

func TestRTUTransportInterFrameDelayScalesWithBaudRate(t *testing.T) {
	slow := NewRTUTransport("/dev/test", WithBaudRate(9600))
	fast := NewRTUTransport("/dev/test", WithBaudRate(115200))

	assert.Greater(t, slow.interFrameDelay(8), fast.interFrameDelay(8))
}

func TestRTUTransportIsConnectedReflectsState(t *testing.T) {
	tr := NewRTUTransport("/dev/test")
	assert.False(t, tr.IsConnected())

	tr.connected = true
	assert.True(t, tr.IsConnected())
}
