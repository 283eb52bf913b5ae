package secure

import (
	"context"
	"crypto/sha256"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/sync/singleflight"

	"github.com/sells-group/formpilot/internal/store"
)

// DefaultRounds is the PBKDF2 iteration count for key derivation.
const DefaultRounds = 100_000

var keySalt = []byte("formpilot/secure/v1")

// InstallIDSource yields the stable per-install identifier.
type InstallIDSource interface {
	InstallID(ctx context.Context) (string, error)
}

// FileInstallID keeps the identifier in a 0600 file, creating it on first use.
type FileInstallID struct {
	Path string
}

func (f FileInstallID) InstallID(_ context.Context) (string, error) {
	data, err := os.ReadFile(f.Path)
	if err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id, nil
		}
	} else if !os.IsNotExist(err) {
		return "", eris.Wrapf(err, "secure: read install id %s", f.Path)
	}

	id := uuid.NewString()
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o700); err != nil {
		return "", eris.Wrap(err, "secure: create install id dir")
	}
	if err := os.WriteFile(f.Path, []byte(id+"\n"), 0o600); err != nil {
		return "", eris.Wrap(err, "secure: write install id")
	}
	zap.L().Info("secure: generated install id", zap.String("path", f.Path))
	return id, nil
}

// DocumentInstallID keeps the identifier in the store's installId document.
type DocumentInstallID struct {
	Store store.Store
}

func (d DocumentInstallID) InstallID(ctx context.Context) (string, error) {
	data, err := d.Store.GetDocument(ctx, store.DocInstallID)
	if err != nil {
		return "", eris.Wrap(err, "secure: read install id")
	}
	if id := strings.TrimSpace(string(data)); id != "" {
		return id, nil
	}
	id := uuid.NewString()
	if err := d.Store.PutDocument(ctx, store.DocInstallID, []byte(id)); err != nil {
		return "", eris.Wrap(err, "secure: write install id")
	}
	return id, nil
}

// KeyProvider derives the data key once and caches it until Forget.
// Concurrent callers share one in-flight derivation.
type KeyProvider struct {
	source InstallIDSource
	rounds int

	sf  singleflight.Group
	mu  sync.RWMutex
	key []byte
}

// NewKeyProvider creates a provider. rounds <= 0 uses DefaultRounds.
func NewKeyProvider(source InstallIDSource, rounds int) *KeyProvider {
	if rounds <= 0 {
		rounds = DefaultRounds
	}
	return &KeyProvider{source: source, rounds: rounds}
}

// Key returns the derived 32-byte key.
func (p *KeyProvider) Key(ctx context.Context) ([]byte, error) {
	p.mu.RLock()
	key := p.key
	p.mu.RUnlock()
	if key != nil {
		return key, nil
	}

	v, err, _ := p.sf.Do("key", func() (any, error) {
		p.mu.RLock()
		cached := p.key
		p.mu.RUnlock()
		if cached != nil {
			return cached, nil
		}

		id, err := p.source.InstallID(ctx)
		if err != nil {
			return nil, err
		}
		derived := pbkdf2.Key([]byte(id), keySalt, p.rounds, keyLen, sha256.New)

		p.mu.Lock()
		p.key = derived
		p.mu.Unlock()
		zap.L().Debug("secure: data key derived", zap.Int("rounds", p.rounds))
		return derived, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// Forget zeroes and drops the cached key.
func (p *KeyProvider) Forget() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.key {
		p.key[i] = 0
	}
	p.key = nil
}
