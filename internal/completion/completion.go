// Package completion talks to the language model that answers learner queries.
package completion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ashureev/doubt-solver/internal/store"
)

// Replies returned in place of a model answer. Each matches the default reply
// filter, so they are displayed but never persisted.
const (
	TransportErrorReply = "Error processing request. Try again later."
	NoResponseReply     = "Sorry, I couldn't generate a response."
	MissingKeyReply     = "API key is missing. Please set it in the extension settings."
)

// ErrMissingCredential is returned when no API key is configured. It is the only
// error Complete returns; transport failures are folded into the reply text.
var ErrMissingCredential = errors.New("api key missing")

// Request carries everything the model needs to answer one query.
type Request struct {
	Query            string
	ProblemStatement string
	UserCode         string
	PriorContext     string
}

// Service produces a reply for a learner query.
type Service interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// KeySource supplies the API key used for completions.
type KeySource interface {
	APIKey(ctx context.Context) (string, error)
}

// APIKeyStoreKey is the key-value store key holding the API key saved from settings.
const APIKeyStoreKey = "geminiAPIKey"

// StoredKey reads the API key saved in the key-value store and falls back to a
// statically configured key.
type StoredKey struct {
	KV       store.Store
	Fallback string
}

// APIKey returns the stored key, the fallback, or ErrMissingCredential.
func (k StoredKey) APIKey(ctx context.Context) (string, error) {
	if k.KV != nil {
		raw, err := k.KV.Get(ctx, APIKeyStoreKey)
		switch {
		case err == nil:
			if key := strings.TrimSpace(string(raw)); key != "" {
				return key, nil
			}
		case !errors.Is(err, store.ErrNotFound):
			slog.Warn("Failed to read stored API key", "error", err)
		}
	}
	if key := strings.TrimSpace(k.Fallback); key != "" {
		return key, nil
	}
	return "", ErrMissingCredential
}

// SetAPIKey saves key in the key-value store.
func (k StoredKey) SetAPIKey(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("api key cannot be empty")
	}
	if k.KV == nil {
		return errors.New("no store configured for api key")
	}
	if err := k.KV.Set(ctx, APIKeyStoreKey, []byte(key)); err != nil {
		return fmt.Errorf("save api key: %w", err)
	}
	return nil
}

// HasCredential reports whether keys can currently supply a key.
func HasCredential(ctx context.Context, keys KeySource) bool {
	_, err := keys.APIKey(ctx)
	return err == nil
}
