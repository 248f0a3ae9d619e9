package agent

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/ampiolux/lcs-gateway/internal/lcsframe"
)

func waitForState(t *testing.T, c *Client, want State, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if c.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for state %v, got %v", want, c.State())
}

func respondOnce(conn net.Conn, data []byte) {
	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	if err != nil || n == 0 {
		return
	}
	dest := lcsframe.Addr{DeviceType: lcsframe.DeviceLCS}
	_, _ = conn.Write(lcsframe.Encode(dest, 0x16, 0x00, data))
}

func TestSendPositionalOrdering(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	dial := func(ctx context.Context, addr string) (net.Conn, error) { return clientConn, nil }
	c := New("a1", "h", 1, WithDialFunc(dial))
	c.Connect()
	defer c.Disconnect()
	waitForState(t, c, StateConnected, time.Second)

	f1 := lcsframe.Encode(lcsframe.Addr{DeviceType: lcsframe.DeviceLCS, Master: 1, CU: 1}, 0x96, 0x00, nil)
	f2 := lcsframe.Encode(lcsframe.Addr{DeviceType: lcsframe.DeviceLCS, Master: 1, CU: 2}, 0x96, 0x00, nil)

	go func() {
		respondOnce(serverConn, []byte{11})
		respondOnce(serverConn, []byte{22})
	}()

	var wg sync.WaitGroup
	var res1, res2 []byte
	var err1, err2 error
	wg.Add(2)
	go func() {
		defer wg.Done()
		r, err := c.Send(context.Background(), f1)
		res1, err1 = r.Values, err
	}()
	go func() {
		defer wg.Done()
		time.Sleep(10 * time.Millisecond) // ensure send1 enqueues first
		r, err := c.Send(context.Background(), f2)
		res2, err2 = r.Values, err
	}()
	wg.Wait()

	if err1 != nil || err2 != nil {
		t.Fatalf("unexpected errors: %v, %v", err1, err2)
	}
	if len(res1) != 1 || res1[0] != 11 {
		t.Fatalf("send1 result = %v, want [11]", res1)
	}
	if len(res2) != 1 || res2[0] != 22 {
		t.Fatalf("send2 result = %v, want [22]", res2)
	}
}

func TestConnectionLossFansOutAndBlocksNewSends(t *testing.T) {
	clientConn, serverConn := net.Pipe()

	dialCalls := 0
	var mu sync.Mutex
	dial := func(ctx context.Context, addr string) (net.Conn, error) {
		mu.Lock()
		defer mu.Unlock()
		dialCalls++
		if dialCalls == 1 {
			return clientConn, nil
		}
		return nil, errors.New("connection refused")
	}

	c := New("a1", "h", 1, WithDialFunc(dial))
	c.Connect()
	defer c.Disconnect()
	waitForState(t, c, StateConnected, time.Second)

	// Drain the first write on the server side, then drop the connection
	// without responding, simulating a peer-initiated close mid-request.
	go func() {
		buf := make([]byte, 4096)
		_, _ = serverConn.Read(buf)
		_ = serverConn.Close()
	}()

	f := lcsframe.Encode(lcsframe.Addr{DeviceType: lcsframe.DeviceLCS, Master: 1, CU: 1}, 0x96, 0x00, nil)

	results := make(chan error, 3)
	for i := 0; i < 3; i++ {
		go func() {
			_, err := c.Send(context.Background(), f)
			results <- err
		}()
	}

	for i := 0; i < 3; i++ {
		select {
		case err := <-results:
			if !errors.Is(err, ErrConnectionLost) {
				t.Fatalf("request %d: err = %v, want ErrConnectionLost", i, err)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for request %d to resolve", i)
		}
	}

	waitForState(t, c, StateReconnecting, time.Second)
	time.Sleep(100 * time.Millisecond)

	_, err := c.Send(context.Background(), f)
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("send after 100ms: err = %v, want ErrNotConnected", err)
	}
}

func TestSendWithoutConnectFailsImmediately(t *testing.T) {
	c := New("a1", "h", 1)
	_, err := c.Send(context.Background(), []byte{1})
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("err = %v, want ErrNotConnected", err)
	}
}

func TestRequestTimeout(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer serverConn.Close()

	dial := func(ctx context.Context, addr string) (net.Conn, error) { return clientConn, nil }
	c := New("a1", "h", 1, WithDialFunc(dial), WithRequestTimeout(50*time.Millisecond))
	c.Connect()
	defer c.Disconnect()
	waitForState(t, c, StateConnected, time.Second)

	// Drain the write but never respond.
	go func() {
		buf := make([]byte, 4096)
		_, _ = serverConn.Read(buf)
	}()

	f := lcsframe.Encode(lcsframe.Addr{DeviceType: lcsframe.DeviceLCS, Master: 1, CU: 1}, 0x96, 0x00, nil)
	_, err := c.Send(context.Background(), f)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
}

func TestDisconnectIsIdempotentAndCancelsPending(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer serverConn.Close()

	dial := func(ctx context.Context, addr string) (net.Conn, error) { return clientConn, nil }
	c := New("a1", "h", 1, WithDialFunc(dial))
	c.Connect()
	waitForState(t, c, StateConnected, time.Second)

	// The server side never reads, so this request stays in flight (its
	// write blocks on the pipe) until Disconnect tears the connection down.
	pending := make(chan error, 1)
	go func() {
		f := lcsframe.Encode(lcsframe.Addr{DeviceType: lcsframe.DeviceLCS, Master: 1, CU: 1}, 0x96, 0x00, nil)
		_, err := c.Send(context.Background(), f)
		pending <- err
	}()
	time.Sleep(20 * time.Millisecond) // let the request reach the dispatcher

	c.Disconnect()
	c.Disconnect() // idempotent
	if c.State() != StateDisconnected {
		t.Fatalf("state = %v, want disconnected", c.State())
	}
	select {
	case err := <-pending:
		if !errors.Is(err, ErrCancelled) {
			t.Fatalf("pending request: err = %v, want ErrCancelled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("pending request never resolved after Disconnect")
	}
}
