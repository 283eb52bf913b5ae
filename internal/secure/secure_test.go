package secure

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/formpilot/internal/model"
	"github.com/sells-group/formpilot/internal/store"
)

const testRounds = 1000

func testKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, keyLen)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.Open(context.Background(), "sqlite", filepath.Join(t.TempDir(), "secure.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	return st
}

type countingSource struct {
	calls atomic.Int32
}

func (c *countingSource) InstallID(context.Context) (string, error) {
	c.calls.Add(1)
	return "install-1234", nil
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	t.Parallel()
	key := testKey(t)

	for _, s := range []string{"", "a", `{"api_key":"sk-test"}`, "ünïcødé ✓", string(bytes.Repeat([]byte("x"), 4096))} {
		data, err := Encrypt(key, s)
		require.NoError(t, err)
		assert.True(t, IsEncrypted(data))

		got, err := Decrypt(key, data)
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
}

func TestEncrypt_EnvelopeShape(t *testing.T) {
	data, err := Encrypt(testKey(t), "secret")
	require.NoError(t, err)

	var env map[string]any
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, float64(1), env["v"])
	assert.NotEmpty(t, env["iv"])
	assert.NotEmpty(t, env["ct"])
	assert.NotContains(t, string(data), "secret")
}

func TestIsEncrypted(t *testing.T) {
	t.Parallel()

	valid, err := Encrypt(testKey(t), "x")
	require.NoError(t, err)

	tests := []struct {
		name string
		data string
		want bool
	}{
		{"valid envelope", string(valid), true},
		{"plain text", "hello world", false},
		{"empty", "", false},
		{"json without envelope fields", `{"token":"abc"}`, false},
		{"wrong version", `{"v":2,"iv":"AAAAAAAAAAAAAAAA","ct":"AA=="}`, false},
		{"short iv", `{"v":1,"iv":"AAAA","ct":"AA=="}`, false},
		{"bad base64", `{"v":1,"iv":"!!!","ct":"AA=="}`, false},
		{"json array", `[1,2,3]`, false},
		{"string version", `{"v":"1","iv":"AAAAAAAAAAAAAAAA","ct":"AA=="}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsEncrypted([]byte(tt.data)))
		})
	}
}

func TestDecrypt_UnsupportedVersionIsHardError(t *testing.T) {
	key := testKey(t)
	data, err := Encrypt(key, "x")
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	env.V = 2
	bumped, err := json.Marshal(env)
	require.NoError(t, err)

	_, err = Decrypt(key, bumped)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrUnsupportedEnvelope))
}

func TestDecrypt_NonIntegerVersionIsHardError(t *testing.T) {
	for _, data := range []string{
		`{"v":"2","iv":"AAAAAAAAAAAAAAAA","ct":"Zm9yZWlnbg=="}`,
		`{"v":1.5,"iv":"AAAAAAAAAAAAAAAA","ct":"Zm9yZWlnbg=="}`,
		`{"v":null,"iv":"AAAAAAAAAAAAAAAA","ct":"Zm9yZWlnbg=="}`,
	} {
		_, err := Decrypt(testKey(t), []byte(data))
		require.Error(t, err, data)
		assert.True(t, eris.Is(err, ErrUnsupportedEnvelope), data)
	}
}

func TestDecrypt_WrongKeyOrTamper(t *testing.T) {
	key := testKey(t)
	data, err := Encrypt(key, "x")
	require.NoError(t, err)

	_, err = Decrypt(testKey(t), data)
	assert.True(t, eris.Is(err, ErrDecrypt))

	_, err = Decrypt(key, []byte("not an envelope"))
	assert.True(t, eris.Is(err, ErrDecrypt))
}

func TestKeyProvider_DerivesOnceUnderConcurrency(t *testing.T) {
	src := &countingSource{}
	kp := NewKeyProvider(src, testRounds)

	var wg sync.WaitGroup
	keys := make([][]byte, 16)
	for i := range keys {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			k, err := kp.Key(context.Background())
			assert.NoError(t, err)
			keys[i] = k
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), src.calls.Load())
	for _, k := range keys {
		assert.Equal(t, keys[0], k)
	}
	assert.Len(t, keys[0], keyLen)

	kp.Forget()
	again, err := kp.Key(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), src.calls.Load())
	assert.Len(t, again, keyLen)
}

func TestKeyProvider_DeterministicPerInstall(t *testing.T) {
	a, err := NewKeyProvider(&countingSource{}, testRounds).Key(context.Background())
	require.NoError(t, err)
	b, err := NewKeyProvider(&countingSource{}, testRounds).Key(context.Background())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestFileInstallID_CreatesAndReuses(t *testing.T) {
	src := FileInstallID{Path: filepath.Join(t.TempDir(), "nested", "install_id")}

	first, err := src.InstallID(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, first)

	second, err := src.InstallID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestDocumentInstallID(t *testing.T) {
	st := newTestStore(t)
	src := DocumentInstallID{Store: st}

	first, err := src.InstallID(context.Background())
	require.NoError(t, err)
	second, err := src.InstallID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestVault_SealsSensitiveDocuments(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	v := NewVault(st, NewKeyProvider(&countingSource{}, testRounds))

	require.NoError(t, v.PutJSON(ctx, store.DocLLMConfig, map[string]string{"api_key": "sk-secret"}))

	raw, err := st.GetDocument(ctx, store.DocLLMConfig)
	require.NoError(t, err)
	assert.True(t, IsEncrypted(raw))
	assert.NotContains(t, string(raw), "sk-secret")

	var out map[string]string
	found, err := v.GetJSON(ctx, store.DocLLMConfig, &out)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "sk-secret", out["api_key"])
}

func TestVault_UnsealedPassThrough(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	v := NewVault(st, NewKeyProvider(&countingSource{}, testRounds))

	require.NoError(t, v.Put(ctx, "notes", []byte("plain")))
	raw, err := st.GetDocument(ctx, "notes")
	require.NoError(t, err)
	assert.Equal(t, "plain", string(raw))
}

func TestVault_MissingDocument(t *testing.T) {
	v := NewVault(newTestStore(t), NewKeyProvider(&countingSource{}, testRounds))
	var out map[string]string
	found, err := v.GetJSON(context.Background(), store.DocAuthState, &out)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestVault_LegacyPlaintextGetsSealed(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	v := NewVault(st, NewKeyProvider(&countingSource{}, testRounds))

	require.NoError(t, st.PutDocument(ctx, store.DocAuthState, []byte(`{"token":"abc"}`)))

	got, err := v.Get(ctx, store.DocAuthState)
	require.NoError(t, err)
	assert.Equal(t, `{"token":"abc"}`, string(got))

	raw, err := st.GetDocument(ctx, store.DocAuthState)
	require.NoError(t, err)
	assert.True(t, IsEncrypted(raw))
}

func TestVault_ForeignVersionIsHardError(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	v := NewVault(st, NewKeyProvider(&countingSource{}, testRounds))

	require.NoError(t, st.PutDocument(ctx, store.DocAuthState, []byte(`{"v":9,"iv":"x","ct":"y"}`)))

	_, err := v.Get(ctx, store.DocAuthState)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrUnsupportedEnvelope))

	raw, err := st.GetDocument(ctx, store.DocAuthState)
	require.NoError(t, err)
	assert.Equal(t, `{"v":9,"iv":"x","ct":"y"}`, string(raw))
}

func TestVault_MalformedEnvelopeIsNotResealed(t *testing.T) {
	tests := []struct {
		name string
		data string
		want error
	}{
		{"string version", `{"v":"2","iv":"AAAAAAAAAAAAAAAA","ct":"Zm9yZWlnbg=="}`, ErrUnsupportedEnvelope},
		{"object version", `{"v":{"major":1},"iv":"x","ct":"y"}`, ErrUnsupportedEnvelope},
		{"numeric iv", `{"v":1,"iv":7,"ct":"Zm9yZWlnbg=="}`, ErrDecrypt},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newTestStore(t)
			ctx := context.Background()
			v := NewVault(st, NewKeyProvider(&countingSource{}, testRounds))

			require.NoError(t, st.PutDocument(ctx, store.DocAuthState, []byte(tt.data)))

			got, err := v.Get(ctx, store.DocAuthState)
			require.Error(t, err)
			assert.Nil(t, got)
			assert.True(t, eris.Is(err, tt.want))

			raw, err := st.GetDocument(ctx, store.DocAuthState)
			require.NoError(t, err)
			assert.Equal(t, tt.data, string(raw))
		})
	}
}

func TestConsentGate(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	g := NewConsentGate(st)

	assert.False(t, g.LLMDataSharing(ctx))
	assert.False(t, g.DataCollection(ctx))

	_, err := g.Set(ctx, true, false)
	require.NoError(t, err)
	assert.True(t, g.LLMDataSharing(ctx))
	assert.False(t, g.DataCollection(ctx))

	require.NoError(t, g.Revoke(ctx))
	assert.False(t, g.LLMDataSharing(ctx))
}

func TestConsentGate_OldVersionGrantsNothing(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	g := NewConsentGate(st)

	old, err := json.Marshal(model.UserConsent{
		Version:        model.ConsentVersion - 1,
		LLMDataSharing: true,
		DataCollection: true,
	})
	require.NoError(t, err)
	require.NoError(t, st.PutDocument(ctx, store.DocUserConsent, old))

	assert.False(t, g.LLMDataSharing(ctx))
	assert.False(t, g.DataCollection(ctx))
}
