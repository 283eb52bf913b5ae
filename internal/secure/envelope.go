// Package secure encrypts sensitive-at-rest documents and gates data
// leaving the device on versioned user consent.
package secure

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"

	"github.com/rotisserie/eris"
)

// EnvelopeVersion is the only envelope format this build can open.
const EnvelopeVersion = 1

const (
	keyLen   = 32
	nonceLen = 12
)

var (
	// ErrUnsupportedEnvelope means the payload looks like an envelope of an
	// unknown version. Callers must treat it as fatal and re-authenticate or
	// reset rather than read the payload as plaintext.
	ErrUnsupportedEnvelope = eris.New("secure: unsupported envelope version")
	// ErrDecrypt means authentication of the ciphertext failed.
	ErrDecrypt = eris.New("secure: decrypt failed")
)

// Envelope is the persisted ciphertext format.
type Envelope struct {
	V  int    `json:"v"`
	IV string `json:"iv"`
	CT string `json:"ct"`

	rawV string
}

// Encrypt seals plaintext with AES-256-GCM under key and returns the JSON
// envelope.
func Encrypt(key []byte, plaintext string) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, nonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return nil, eris.Wrap(err, "secure: nonce")
	}
	ct := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	out, err := json.Marshal(Envelope{
		V:  EnvelopeVersion,
		IV: base64.StdEncoding.EncodeToString(nonce),
		CT: base64.StdEncoding.EncodeToString(ct),
	})
	return out, eris.Wrap(err, "secure: marshal envelope")
}

// Decrypt opens a JSON envelope produced by Encrypt.
func Decrypt(key []byte, data []byte) (string, error) {
	env, ok := parseEnvelope(data)
	if !ok {
		return "", eris.Wrap(ErrDecrypt, "payload is not an envelope")
	}
	if env.V != EnvelopeVersion {
		return "", eris.Wrapf(ErrUnsupportedEnvelope, "version %s", env.rawV)
	}
	nonce, err := base64.StdEncoding.DecodeString(env.IV)
	if err != nil || len(nonce) != nonceLen {
		return "", eris.Wrap(ErrDecrypt, "bad iv")
	}
	ct, err := base64.StdEncoding.DecodeString(env.CT)
	if err != nil {
		return "", eris.Wrap(ErrDecrypt, "bad ciphertext encoding")
	}
	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}
	pt, err := gcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", eris.Wrap(ErrDecrypt, "authentication failed")
	}
	return string(pt), nil
}

// IsEncrypted reports whether data is a well-formed current-version
// envelope.
func IsEncrypted(data []byte) bool {
	env, ok := parseEnvelope(data)
	if !ok || env.V != EnvelopeVersion {
		return false
	}
	iv, err := base64.StdEncoding.DecodeString(env.IV)
	if err != nil || len(iv) != nonceLen {
		return false
	}
	_, err = base64.StdEncoding.DecodeString(env.CT)
	return err == nil
}

// parseEnvelope accepts any JSON object carrying v, iv and ct, whatever
// the version or value types. A v that is not an integer yields V == -1.
func parseEnvelope(data []byte) (Envelope, bool) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Envelope{}, false
	}
	for _, k := range []string{"v", "iv", "ct"} {
		if _, ok := raw[k]; !ok {
			return Envelope{}, false
		}
	}
	env := Envelope{rawV: string(raw["v"])}
	if err := json.Unmarshal(raw["v"], &env.V); err != nil {
		env.V = -1
	}
	_ = json.Unmarshal(raw["iv"], &env.IV)
	_ = json.Unmarshal(raw["ct"], &env.CT)
	return env, true
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != keyLen {
		return nil, eris.Errorf("secure: key must be %d bytes, got %d", keyLen, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, eris.Wrap(err, "secure: cipher")
	}
	gcm, err := cipher.NewGCM(block)
	return gcm, eris.Wrap(err, "secure: gcm")
}
