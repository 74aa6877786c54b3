package hub

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type written struct {
	kind int
	data []byte
}

type fakeConn struct {
	writes    chan written
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{writes: make(chan written, 16), closed: make(chan struct{})}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	<-f.closed
	return 0, nil, errors.New("connection closed")
}

func (f *fakeConn) WriteMessage(kind int, data []byte) error {
	select {
	case <-f.closed:
		return errors.New("connection closed")
	default:
	}
	f.writes <- written{kind: kind, data: data}
	return nil
}

func (f *fakeConn) SetReadLimit(int64)                        {}
func (f *fakeConn) SetReadDeadline(time.Time) error           { return nil }
func (f *fakeConn) SetWriteDeadline(time.Time) error          { return nil }
func (f *fakeConn) SetPongHandler(func(appData string) error) {}

func (f *fakeConn) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) next(t *testing.T) written {
	t.Helper()
	select {
	case w := <-f.writes:
		return w
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a write")
		return written{}
	}
}

func startHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	h := New("test")
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	require.Eventually(t, h.IsRunning, time.Second, 5*time.Millisecond)
	return h, cancel
}

func connect(t *testing.T, h *Hub, want int) (*fakeConn, chan struct{}) {
	t.Helper()
	conn := newFakeConn()
	served := make(chan struct{})
	go func() {
		h.Serve(conn)
		close(served)
	}()
	require.Eventually(t, func() bool { return h.ClientCount() == want }, time.Second, 5*time.Millisecond)
	return conn, served
}

func TestHub_Broadcast(t *testing.T) {
	h, cancel := startHub(t)
	defer cancel()

	conn, _ := connect(t, h, 1)

	require.NoError(t, h.BroadcastJSON(map[string]int{"frame": 1}))
	w := conn.next(t)
	assert.Equal(t, websocket.TextMessage, w.kind)
	assert.JSONEq(t, `{"frame":1}`, string(w.data))

	h.BroadcastBinary([]byte{0xff, 0xd8})
	w = conn.next(t)
	assert.Equal(t, websocket.BinaryMessage, w.kind)
	assert.Equal(t, []byte{0xff, 0xd8}, w.data)
}

func TestHub_ReplaysLatestToNewClients(t *testing.T) {
	h, cancel := startHub(t)
	defer cancel()

	first, _ := connect(t, h, 1)
	require.NoError(t, h.BroadcastJSON(map[string]int{"frame": 7}))
	first.next(t)

	h.BroadcastBinary([]byte{1, 2, 3})
	first.next(t)

	second, _ := connect(t, h, 2)
	w := second.next(t)
	assert.Equal(t, websocket.TextMessage, w.kind, "binary frames are not replayed")
	assert.JSONEq(t, `{"frame":7}`, string(w.data))
}

func TestHub_Disconnect(t *testing.T) {
	h, cancel := startHub(t)
	defer cancel()

	conn, served := connect(t, h, 1)
	conn.Close()

	select {
	case <-served:
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after the connection closed")
	}
	assert.Eventually(t, func() bool { return h.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestHub_DropsSlowClient(t *testing.T) {
	h, cancel := startHub(t)
	defer cancel()

	slow := &Client{hub: h, send: make(chan Message)}
	h.register <- slow
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	h.BroadcastBinary([]byte{1})
	assert.Eventually(t, func() bool { return h.ClientCount() == 0 }, time.Second, 5*time.Millisecond)

	_, open := <-slow.send
	assert.False(t, open, "dropped client's queue is closed")
}

func TestHub_StopClosesClients(t *testing.T) {
	h, cancel := startHub(t)
	conn, served := connect(t, h, 1)

	cancel()
	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}
	assert.False(t, h.IsRunning())

	w := conn.next(t)
	assert.Equal(t, websocket.CloseMessage, w.kind)

	select {
	case <-served:
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after the hub stopped")
	}

	late := newFakeConn()
	h.Serve(late)
	select {
	case <-late.closed:
	default:
		t.Error("connection to a stopped hub should be closed")
	}
}

func TestHub_BroadcastJSONError(t *testing.T) {
	h := New("test")
	assert.Error(t, h.BroadcastJSON(make(chan int)))
}

func TestHub_QueuedDropsWhenFull(t *testing.T) {
	h := New("test")
	for i := 0; i < 300; i++ {
		h.BroadcastBinary([]byte{byte(i)})
	}
	assert.Equal(t, 256, h.Queued(), "queue is bounded while the loop is stopped")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)
	assert.Eventually(t, func() bool { return h.Queued() == 0 }, time.Second, 5*time.Millisecond)
}
