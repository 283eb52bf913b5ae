package bridge

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func echoRouter() *Router {
	r := NewRouter()
	r.Handle("echo", func(_ context.Context, m Message) (any, error) {
		var v map[string]string
		if err := m.Decode(&v); err != nil {
			return nil, err
		}
		return v, nil
	})
	r.Handle("fail", func(context.Context, Message) (any, error) {
		return nil, eris.New("nope")
	})
	r.Handle("explode", func(context.Context, Message) (any, error) {
		panic("kaboom")
	})
	r.Handle("block", func(ctx context.Context, _ Message) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	return r
}

func TestDispatch(t *testing.T) {
	t.Parallel()

	r := echoRouter()
	ctx := context.Background()

	tests := []struct {
		name    string
		msg     Message
		success bool
		errSub  string
		data    string
	}{
		{"echo", Message{ID: "1", Action: "echo", Payload: json.RawMessage(`{"a":"b"}`)}, true, "", `{"a":"b"}`},
		{"unknown action", Message{ID: "2", Action: "teleport"}, false, "unknown action", ""},
		{"handler error", Message{ID: "3", Action: "fail"}, false, "nope", ""},
		{"panic contained", Message{ID: "4", Action: "explode"}, false, "explode panicked", ""},
		{"bad payload", Message{ID: "5", Action: "echo", Payload: json.RawMessage(`[1,`)}, false, "malformed payload", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply := r.Dispatch(ctx, tt.msg)
			assert.Equal(t, tt.msg.ID, reply.ID)
			assert.Equal(t, tt.msg.Action, reply.Action)
			assert.Equal(t, tt.success, reply.Success)
			if tt.errSub != "" {
				assert.Contains(t, reply.Error, tt.errSub)
			}
			if tt.data != "" {
				assert.JSONEq(t, tt.data, string(reply.Data))
			}
		})
	}
}

func TestRouter_Actions(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"block", "echo", "explode", "fail"}, echoRouter().Actions())
}

func TestChannel_RoundTrip(t *testing.T) {
	t.Parallel()

	ch := NewChannel(echoRouter(), ChannelOptions{Workers: 2, Timeout: time.Second})
	defer ch.Close()

	reply, err := ch.Send(context.Background(), Message{ID: "x", Action: "echo", Payload: json.RawMessage(`{"k":"v"}`)})
	require.NoError(t, err)
	assert.True(t, reply.Success)
	assert.JSONEq(t, `{"k":"v"}`, string(reply.Data))
}

func TestChannel_Timeout(t *testing.T) {
	t.Parallel()

	ch := NewChannel(echoRouter(), ChannelOptions{Workers: 1, Timeout: 20 * time.Millisecond})
	defer ch.Close()

	_, err := ch.Send(context.Background(), Message{Action: "block"})
	assert.True(t, eris.Is(err, ErrTimeout))

	// The worker is free again once the blocked handler saw its deadline.
	reply, err := ch.Send(context.Background(), Message{Action: "echo"})
	require.NoError(t, err)
	assert.True(t, reply.Success)
}

func TestChannel_CallerCancel(t *testing.T) {
	t.Parallel()

	ch := NewChannel(echoRouter(), ChannelOptions{Workers: 1, Timeout: time.Minute})
	defer ch.Close()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)
	_, err := ch.Send(ctx, Message{Action: "block"})
	require.Error(t, err)
	assert.True(t, eris.Is(err, context.Canceled))
}

func TestChannel_CloseCancelsInFlight(t *testing.T) {
	t.Parallel()

	ch := NewChannel(echoRouter(), ChannelOptions{Workers: 1, Timeout: time.Minute})
	errc := make(chan error, 1)
	go func() {
		_, err := ch.Send(context.Background(), Message{Action: "block"})
		errc <- err
	}()
	time.Sleep(10 * time.Millisecond)
	ch.Close()
	ch.Close()

	select {
	case err := <-errc:
		assert.True(t, eris.Is(err, ErrClosed))
	case <-time.After(time.Second):
		t.Fatal("send did not return after close")
	}

	_, err := ch.Send(context.Background(), Message{Action: "echo"})
	assert.True(t, eris.Is(err, ErrClosed))
}
