package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/sells-group/formpilot/internal/bridge"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type senderFunc func(ctx context.Context, msg bridge.Message) (bridge.Reply, error)

func (f senderFunc) Send(ctx context.Context, msg bridge.Message) (bridge.Reply, error) {
	return f(ctx, msg)
}

func newServer(s Sender) http.Handler {
	return New(s, Options{Addr: "127.0.0.1:0", AllowedOrigins: []string{"chrome-extension://*"}}).Handler()
}

func do(h http.Handler, method, path, body string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	t.Parallel()

	rec := do(newServer(nil), http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMessage_RoundTripThroughChannel(t *testing.T) {
	t.Parallel()

	r := bridge.NewRouter()
	r.Handle("ping", func(_ context.Context, m bridge.Message) (any, error) {
		return map[string]int{"tab": m.TabID}, nil
	})
	ch := bridge.NewChannel(r, bridge.ChannelOptions{Workers: 1})
	defer ch.Close()

	rec := do(newServer(ch), http.MethodPost, "/v1/message", `{"id":"1","action":"ping","tab_id":9}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var reply bridge.Reply
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reply))
	assert.True(t, reply.Success)
	assert.Equal(t, "1", reply.ID)
	assert.JSONEq(t, `{"tab":9}`, string(reply.Data))
}

func TestMessage_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{"bad json", `{"action":`, nil, http.StatusBadRequest},
		{"missing action", `{"id":"1"}`, nil, http.StatusBadRequest},
		{"timeout", `{"action":"fill"}`, eris.Wrap(bridge.ErrTimeout, "fill"), http.StatusGatewayTimeout},
		{"closed", `{"action":"fill"}`, bridge.ErrClosed, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := senderFunc(func(context.Context, bridge.Message) (bridge.Reply, error) {
				return bridge.Reply{}, tt.err
			})
			rec := do(newServer(s), http.MethodPost, "/v1/message", tt.body, nil)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestCORS_ExtensionOrigin(t *testing.T) {
	t.Parallel()

	h := newServer(nil)
	rec := do(h, http.MethodOptions, "/v1/message", "", map[string]string{
		"Origin":                        "chrome-extension://abcdef",
		"Access-Control-Request-Method": http.MethodPost,
	})
	assert.Equal(t, "chrome-extension://abcdef", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = do(h, http.MethodOptions, "/v1/message", "", map[string]string{
		"Origin":                        "https://evil.example",
		"Access-Control-Request-Method": http.MethodPost,
	})
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
