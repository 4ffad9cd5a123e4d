// Package registry resolves bot keys to their identities.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/h1v3-io/relay/pkg/protocol"
)

// DefaultFallbackName is used when a bot's display name cannot be fetched.
const DefaultFallbackName = "Support"

// fetchTimeout bounds the one display-name lookup per bot. The lookup is
// detached from the caller's cancellation.
const fetchTimeout = 10 * time.Second

// NameFetcher looks up a bot's public display name from the provider.
type NameFetcher interface {
	FetchDisplayName(ctx context.Context, botKey string) (string, error)
}

type cachedName struct {
	name     string
	cachedAt time.Time
}

// Registry holds the configured bot identities. The key → credential map is
// fixed at construction; display names are fetched lazily, once per key.
type Registry struct {
	bots     map[string]protocol.Credential
	fetcher  NameFetcher
	fallback string
	logger   *slog.Logger

	mu    sync.RWMutex
	names map[string]cachedName
	group singleflight.Group

	now func() time.Time
}

// New creates a registry for the given bot key → credential map. fetcher
// may be nil, in which case every display name is the fallback.
func New(bots map[string]protocol.Credential, fetcher NameFetcher, fallback string, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if fallback == "" {
		fallback = DefaultFallbackName
	}
	copied := make(map[string]protocol.Credential, len(bots))
	for k, v := range bots {
		copied[k] = v
	}
	return &Registry{
		bots:     copied,
		fetcher:  fetcher,
		fallback: fallback,
		logger:   logger,
		names:    make(map[string]cachedName),
		now:      time.Now,
	}
}

// SetFetcher installs the display-name fetcher. Must be called before the
// registry is shared between goroutines.
func (r *Registry) SetFetcher(f NameFetcher) {
	r.fetcher = f
}

// Resolve returns the identity for botKey, including the display name if it
// has already been fetched.
func (r *Registry) Resolve(botKey string) (protocol.BotIdentity, error) {
	cred, ok := r.bots[botKey]
	if !ok {
		return protocol.BotIdentity{}, fmt.Errorf("registry: resolve %q: %w", botKey, protocol.ErrUnknownBotKey)
	}
	id := protocol.BotIdentity{Key: botKey, Credential: cred}

	r.mu.RLock()
	if n, ok := r.names[botKey]; ok {
		id.DisplayName = n.name
		id.CachedAt = n.cachedAt
	}
	r.mu.RUnlock()
	return id, nil
}

// Known reports whether botKey is configured.
func (r *Registry) Known(botKey string) bool {
	_, ok := r.bots[botKey]
	return ok
}

// Keys returns the configured bot keys in sorted order.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.bots))
	for k := range r.bots {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Identities returns every configured identity, sorted by key.
func (r *Registry) Identities() []protocol.BotIdentity {
	keys := r.Keys()
	out := make([]protocol.BotIdentity, 0, len(keys))
	for _, k := range keys {
		id, _ := r.Resolve(k)
		out = append(out, id)
	}
	return out
}

// Seed records a display name obtained elsewhere (e.g. at connector start).
// An already cached name is kept.
func (r *Registry) Seed(botKey, name string) {
	if _, ok := r.bots[botKey]; !ok || name == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.names[botKey]; !ok {
		r.names[botKey] = cachedName{name: name, cachedAt: r.now()}
	}
}

// DisplayName returns the bot's display name, fetching it on first use.
// A failed fetch is cached as the fallback name; the name is cosmetic and
// the fetch is never retried.
func (r *Registry) DisplayName(ctx context.Context, botKey string) string {
	if _, ok := r.bots[botKey]; !ok {
		return r.fallback
	}

	r.mu.RLock()
	n, ok := r.names[botKey]
	r.mu.RUnlock()
	if ok {
		return n.name
	}

	v, _, _ := r.group.Do(botKey, func() (any, error) {
		r.mu.RLock()
		n, ok := r.names[botKey]
		r.mu.RUnlock()
		if ok {
			return n.name, nil
		}

		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchTimeout)
		defer cancel()
		name := r.fetch(fctx, botKey)

		r.mu.Lock()
		defer r.mu.Unlock()
		if n, ok := r.names[botKey]; ok {
			return n.name, nil
		}
		r.names[botKey] = cachedName{name: name, cachedAt: r.now()}
		return name, nil
	})
	return v.(string)
}

func (r *Registry) fetch(ctx context.Context, botKey string) string {
	if r.fetcher == nil {
		return r.fallback
	}
	name, err := r.fetcher.FetchDisplayName(ctx, botKey)
	if err != nil {
		r.logger.Warn("display name fetch failed, using fallback",
			"bot", botKey,
			"fallback", r.fallback,
			"error", err,
		)
		return r.fallback
	}
	if name == "" {
		return r.fallback
	}
	r.logger.Debug("display name cached", "bot", botKey, "name", name)
	return name
}
