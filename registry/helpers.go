package registry

import (
	"context"
	"fmt"

	"github.com/c360/gqlclients/config"
	"github.com/c360/gqlclients/errors"
	"github.com/c360/gqlclients/storage"
)

// Helpers is the token and session facade handed to application code
type Helpers struct {
	registry *Registry
}

// GetToken resolves the current token of a client the same way its
// requests do: auth hook, then the configured storage.
func (h *Helpers) GetToken(ctx context.Context, key string) (string, bool, error) {
	key, cfg, err := h.lookup(key)
	if err != nil {
		return "", false, err
	}
	cred, err := h.registry.resolver.Resolve(ctx, key, cfg)
	if err != nil {
		return "", false, errors.Wrap(err, "Helpers", "GetToken", key)
	}
	return cred.Token, cred.Found(), nil
}

// SetToken writes token to the client's token storage. Clients with
// token_storage none keep nothing.
func (h *Helpers) SetToken(ctx context.Context, key, token string) error {
	key, cfg, err := h.lookup(key)
	if err != nil {
		return err
	}
	store := h.store(cfg)
	if store == nil {
		return nil
	}
	if err := store.Set(ctx, cfg.TokenName, token, cfg.CookieAttributes); err != nil {
		return errors.Wrap(err, "Helpers", "SetToken", key)
	}
	return nil
}

// DeleteToken removes the client's token from its storage
func (h *Helpers) DeleteToken(ctx context.Context, key string) error {
	key, cfg, err := h.lookup(key)
	if err != nil {
		return err
	}
	store := h.store(cfg)
	if store == nil {
		return nil
	}
	if err := store.Delete(ctx, cfg.TokenName); err != nil {
		return errors.Wrap(err, "Helpers", "DeleteToken", key)
	}
	return nil
}

// OnLogin stores token, restarts the client's subscription transport so it
// reconnects with the new credential and, unless skipReset, empties its
// cache.
func (h *Helpers) OnLogin(ctx context.Context, key, token string, skipReset bool) error {
	if err := h.SetToken(ctx, key, token); err != nil {
		return err
	}
	return h.afterAuthChange(key, skipReset)
}

// OnLogout deletes the token, restarts the transport and, unless skipReset,
// empties the cache.
func (h *Helpers) OnLogout(ctx context.Context, key string, skipReset bool) error {
	if err := h.DeleteToken(ctx, key); err != nil {
		return err
	}
	return h.afterAuthChange(key, skipReset)
}

func (h *Helpers) afterAuthChange(key string, skipReset bool) error {
	c, err := h.registry.Client(key)
	if err != nil {
		return err
	}
	if t := c.Transport(); t != nil {
		t.Restart()
	}
	if skipReset {
		return nil
	}
	if err := c.ResetStore(); err != nil {
		return errors.Wrap(err, "Helpers", "afterAuthChange", "reset cache of "+key)
	}
	return nil
}

// lookup resolves DefaultAlias and returns the declaration of key
func (h *Helpers) lookup(key string) (string, config.ClientConfig, error) {
	if key == DefaultAlias {
		if k := h.registry.DefaultKey(); k != "" {
			key = k
		}
	}
	cfg, ok := h.registry.cfg.Clients.Get(key)
	if !ok {
		return "", config.ClientConfig{}, errors.WrapInvalid(
			fmt.Errorf("%q: %w", key, errors.ErrUnknownClient),
			"Helpers", "lookup", "client declaration")
	}
	return key, cfg, nil
}

// store picks the backend a client's token lives in
func (h *Helpers) store(cfg config.ClientConfig) storage.Store {
	switch cfg.TokenStorage {
	case config.TokenStorageCookie:
		return h.registry.session.Cookies
	case config.TokenStorageLocalStorage:
		return h.registry.session.Local
	default:
		return nil
	}
}
