package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/formpilot/internal/engine"
	"github.com/sells-group/formpilot/internal/knowledge"
	"github.com/sells-group/formpilot/internal/secure"
	"github.com/sells-group/formpilot/internal/session"
	"github.com/sells-group/formpilot/internal/store"
)

// appEnv holds the store, session state and engine shared by commands.
type appEnv struct {
	Store  store.Store
	State  *session.State
	Engine *engine.Engine
}

// Close releases resources held by the environment.
func (a *appEnv) Close() {
	if a.State != nil {
		_ = a.State.Close()
	}
	if a.Store != nil {
		_ = a.Store.Close()
	}
}

// KB is the knowledge store behind the engine.
func (a *appEnv) KB() *knowledge.Store { return a.Engine.Knowledge() }

// initStore opens and migrates the configured backend.
func initStore(ctx context.Context) (store.Store, error) {
	var pool *store.PoolConfig
	if cfg.Store.MaxConns > 0 || cfg.Store.MinConns > 0 {
		pool = &store.PoolConfig{MaxConns: cfg.Store.MaxConns, MinConns: cfg.Store.MinConns}
	}
	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL, pool)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	return st, nil
}

// keyProvider derives the at-rest key from the install identifier file.
func keyProvider() *secure.KeyProvider {
	return secure.NewKeyProvider(secure.FileInstallID{Path: cfg.Crypto.InstallIDPath}, cfg.Crypto.PBKDF2Rounds)
}

// initEnv builds the store, session state and engine. pages may be nil
// for commands that never touch a live page. Callers should defer
// env.Close().
func initEnv(ctx context.Context, pages engine.Pages) (*appEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	env := &appEnv{Store: st, State: session.New(ctx, keyProvider())}

	env.Engine, err = engine.New(ctx, engine.Deps{
		Config: cfg,
		Store:  st,
		State:  env.State,
		Pages:  pages,
	})
	if err != nil {
		env.Close()
		return nil, eris.Wrap(err, "init engine")
	}
	return env, nil
}
