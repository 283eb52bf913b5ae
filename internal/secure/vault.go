package secure

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/formpilot/internal/store"
)

// sealedDocuments are encrypted at rest.
var sealedDocuments = map[string]bool{
	store.DocAuthState: true,
	store.DocLLMConfig: true,
}

// IsSealed reports whether name is encrypted at rest.
func IsSealed(name string) bool { return sealedDocuments[name] }

// Vault reads and writes store documents, transparently encrypting the
// sealed ones.
type Vault struct {
	st   store.Store
	keys *KeyProvider
}

// NewVault creates a Vault.
func NewVault(st store.Store, keys *KeyProvider) *Vault {
	return &Vault{st: st, keys: keys}
}

// Get returns the plaintext of document name, or nil when absent.
// Unsupported envelope versions and failed authentication are returned as
// errors, never as data.
func (v *Vault) Get(ctx context.Context, name string) ([]byte, error) {
	data, err := v.st.GetDocument(ctx, name)
	if err != nil {
		return nil, eris.Wrapf(err, "vault: get %s", name)
	}
	if data == nil || !IsSealed(name) {
		return data, nil
	}

	key, err := v.keys.Key(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "vault: key")
	}
	if _, looksSealed := parseEnvelope(data); looksSealed {
		pt, err := Decrypt(key, data)
		if err != nil {
			return nil, eris.Wrapf(err, "vault: open %s", name)
		}
		return []byte(pt), nil
	}

	// Plaintext written before the document was sealed: seal it now.
	zap.L().Info("vault: sealing legacy plaintext document", zap.String("name", name))
	if err := v.Put(ctx, name, data); err != nil {
		return nil, err
	}
	return data, nil
}

// Put stores document name, sealing it when required.
func (v *Vault) Put(ctx context.Context, name string, data []byte) error {
	if IsSealed(name) {
		key, err := v.keys.Key(ctx)
		if err != nil {
			return eris.Wrap(err, "vault: key")
		}
		sealed, err := Encrypt(key, string(data))
		if err != nil {
			return eris.Wrapf(err, "vault: seal %s", name)
		}
		data = sealed
	}
	return eris.Wrapf(v.st.PutDocument(ctx, name, data), "vault: put %s", name)
}

// Delete removes document name.
func (v *Vault) Delete(ctx context.Context, name string) error {
	return eris.Wrapf(v.st.DeleteDocument(ctx, name), "vault: delete %s", name)
}

// GetJSON decodes document name into out. found is false when absent.
func (v *Vault) GetJSON(ctx context.Context, name string, out any) (found bool, err error) {
	data, err := v.Get(ctx, name)
	if err != nil || data == nil {
		return false, err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, eris.Wrapf(err, "vault: decode %s", name)
	}
	return true, nil
}

// PutJSON encodes in and stores it as document name.
func (v *Vault) PutJSON(ctx context.Context, name string, in any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return eris.Wrapf(err, "vault: encode %s", name)
	}
	return v.Put(ctx, name, data)
}
