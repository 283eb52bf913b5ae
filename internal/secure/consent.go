package secure

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/formpilot/internal/model"
	"github.com/sells-group/formpilot/internal/store"
)

// ConsentGate answers consent questions by re-reading the versioned consent
// record on every call. A record from an older ConsentVersion grants nothing.
type ConsentGate struct {
	st  store.Store
	now func() time.Time
}

// NewConsentGate creates a gate over st.
func NewConsentGate(st store.Store) *ConsentGate {
	return &ConsentGate{st: st, now: func() time.Time { return time.Now().UTC() }}
}

// Load returns the stored record. Missing or unreadable records load as the
// zero value, which grants nothing.
func (g *ConsentGate) Load(ctx context.Context) model.UserConsent {
	data, err := g.st.GetDocument(ctx, store.DocUserConsent)
	if err != nil {
		zap.L().Warn("consent: read failed, treating as not granted", zap.Error(err))
		return model.UserConsent{}
	}
	if data == nil {
		return model.UserConsent{}
	}
	var c model.UserConsent
	if err := json.Unmarshal(data, &c); err != nil {
		zap.L().Warn("consent: corrupt record, treating as not granted", zap.Error(err))
		return model.UserConsent{}
	}
	return c
}

// LLMDataSharing reports whether field metadata may leave the device.
func (g *ConsentGate) LLMDataSharing(ctx context.Context) bool {
	c := g.Load(ctx)
	return c.Current() && c.LLMDataSharing
}

// DataCollection reports whether the observation recorder may write.
func (g *ConsentGate) DataCollection(ctx context.Context) bool {
	c := g.Load(ctx)
	return c.Current() && c.DataCollection
}

// Set writes a current-version record.
func (g *ConsentGate) Set(ctx context.Context, llmDataSharing, dataCollection bool) (model.UserConsent, error) {
	c := model.UserConsent{
		Version:        model.ConsentVersion,
		LLMDataSharing: llmDataSharing,
		DataCollection: dataCollection,
		UpdatedAt:      g.now(),
	}
	data, err := json.Marshal(c)
	if err != nil {
		return model.UserConsent{}, eris.Wrap(err, "consent: encode")
	}
	if err := g.st.PutDocument(ctx, store.DocUserConsent, data); err != nil {
		return model.UserConsent{}, eris.Wrap(err, "consent: write")
	}
	return c, nil
}

// Revoke withdraws both grants.
func (g *ConsentGate) Revoke(ctx context.Context) error {
	_, err := g.Set(ctx, false, false)
	return err
}
