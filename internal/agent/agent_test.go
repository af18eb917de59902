package agent

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/mrcpd/internal/resource"
	"firestige.xyz/mrcpd/internal/task"
)

func testCatalogue(t *testing.T) *resource.Catalogue {
	t.Helper()
	cat, err := resource.LoadFromConfig(nil)
	require.NoError(t, err)
	return cat
}

func newReplyTarget(t *testing.T) (*task.Base, chan Response) {
	t.Helper()
	respCh := make(chan Response, 8)
	b := task.NewBase("caller", task.Hooks{
		Run: task.RunUntilTerminate(func(m task.Msg) {
			if resp, ok := m.Data.(Response); ok {
				respCh <- resp
			}
		}),
	}, 8)
	require.NoError(t, b.Start())
	return b, respCh
}

func waitForResponse(t *testing.T, ch <-chan Response) Response {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for agent response")
		return Response{}
	}
}

// TestConnectionReuseOnModifyChannelWithExisting implements spec
// scenario 6: two sessions requesting a channel on the same (ip,port)
// share exactly one connection, whose reference count reaches 2; a
// RemoveChannel decrements without closing the socket.
func TestConnectionReuseOnModifyChannelWithExisting(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	// Accept and hold the peer side open so the dialed connection
	// survives for the duration of the test.
	accepted := make(chan net.Conn, 2)
	go func() {
		for i := 0; i < 2; i++ {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			accepted <- c
		}
	}()

	a := New(Config{Role: RoleClient, Catalogue: testCatalogue(t)})
	require.NoError(t, a.Start())
	defer a.Terminate(true)

	replyTo, respCh := newReplyTarget(t)
	defer replyTo.Terminate(true)

	remote := ln.Addr().String()

	a.Submit(Request{Kind: ModifyChannel, ChannelID: "sess1@speechsynth", RemoteAddr: remote, ConnectionType: ConnectionExisting, ReplyTo: replyTo})
	resp := waitForResponse(t, respCh)
	require.NoError(t, resp.Err)

	a.Submit(Request{Kind: ModifyChannel, ChannelID: "sess2@speechsynth", RemoteAddr: remote, ConnectionType: ConnectionExisting, ReplyTo: replyTo})
	resp = waitForResponse(t, respCh)
	require.NoError(t, resp.Err)

	a.mu.Lock()
	conn, ok := a.conns[remote]
	a.mu.Unlock()
	require.True(t, ok)
	assert.Equal(t, 2, conn.refCount)

	a.Submit(Request{Kind: RemoveChannel, ChannelID: "sess2@speechsynth", RemoteAddr: remote, ReplyTo: replyTo})
	resp = waitForResponse(t, respCh)
	require.NoError(t, resp.Err)

	a.mu.Lock()
	conn, ok = a.conns[remote]
	a.mu.Unlock()
	require.True(t, ok, "connection must still be open after decrementing to 1")
	assert.Equal(t, 1, conn.refCount)
}

func TestControlDatagramRoundTrip(t *testing.T) {
	d := ControlDatagram{Discriminant: CtlModifyChannel, Correlation: 42, Argument: 7}
	b := d.Encode()
	assert.Len(t, b, controlHeaderSize)

	got, err := DecodeControlDatagram(b)
	require.NoError(t, err)
	assert.Equal(t, d, got)
}

func TestDecodeControlDatagramTooShort(t *testing.T) {
	_, err := DecodeControlDatagram([]byte{1, 2, 3})
	assert.Error(t, err)
}
