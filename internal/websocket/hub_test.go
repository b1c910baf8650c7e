package websocket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func recv(t *testing.T, c *Client) map[string]any {
	t.Helper()
	select {
	case data := <-c.Send:
		var out map[string]any
		require.NoError(t, json.Unmarshal(data, &out))
		return out
	case <-time.After(time.Second):
		t.Fatal("no message")
		return nil
	}
}

func TestHub_BroadcastsAndReplaysLastSnapshot(t *testing.T) {
	h := NewHub(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { h.Run(ctx); close(done) }()
	defer func() { cancel(); <-done }()

	a := NewClient()
	require.True(t, h.Register(ctx, a))

	h.OnSnapshot(session.Snapshot{State: session.StateActive, RemainingMs: 5000})
	msg := recv(t, a)
	assert.Equal(t, "snapshot", msg["event"])
	assert.Equal(t, "ACTIVE", msg["snapshot"].(map[string]any)["state"])

	h.OnNotice(session.Notice{Kind: session.NoticeWarning, Code: session.CodeViolationWarning, Message: "hati-hati"})
	msg = recv(t, a)
	assert.Equal(t, "notice", msg["event"])

	// A late page gets the latest snapshot on connect.
	b := NewClient()
	require.True(t, h.Register(ctx, b))
	msg = recv(t, b)
	assert.Equal(t, "snapshot", msg["event"])

	h.Unregister(ctx, a)
	<-a.Done()
	assert.False(t, a.Offer([]byte("{}")))
}

func TestHub_ShutdownClosesClients(t *testing.T) {
	h := NewHub(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { h.Run(ctx); close(done) }()

	c := NewClient()
	require.True(t, h.Register(ctx, c))
	cancel()
	<-done

	<-c.Done()
	assert.False(t, h.Register(ctx, NewClient()))
}
