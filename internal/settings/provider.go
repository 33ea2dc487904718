package settings

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/JustinTDCT/SkipVault/internal/logger"
)

// Provider serves decoded Options synchronously from a cached copy of the
// store and refreshes that copy on every write or store change.
type Provider struct {
	store Store
	log   *slog.Logger

	mu     sync.RWMutex
	opts   Options
	userID string

	cancelWatch func()
}

func NewProvider(ctx context.Context, store Store, log *slog.Logger) (*Provider, error) {
	p := &Provider{
		store: store,
		log:   logger.Component(log, "settings"),
		opts:  DefaultOptions(),
	}
	if err := p.Refresh(ctx); err != nil {
		return nil, err
	}
	if w, ok := store.(Watchable); ok {
		p.cancelWatch = w.Watch(func() {
			if err := p.Refresh(context.Background()); err != nil {
				p.log.Warn("refresh after external change failed", "error", err)
			}
		})
	}
	return p, nil
}

// Options returns the current options. The result is a private copy.
func (p *Provider) Options() Options {
	p.mu.RLock()
	defer p.mu.RUnlock()
	o := p.opts
	o.SkipCategories = append(o.SkipCategories[:0:0], p.opts.SkipCategories...)
	return o
}

func (p *Provider) Refresh(ctx context.Context) error {
	all, err := p.store.All(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	opts := Decode(toMap(all))
	p.mu.Lock()
	p.opts = opts
	p.mu.Unlock()
	return nil
}

// Set validates and stores one value.
func (p *Provider) Set(ctx context.Context, key, value string) error {
	return p.Update(ctx, map[string]string{key: value})
}

// Update validates every pair before writing any of them.
func (p *Provider) Update(ctx context.Context, values map[string]string) error {
	for k, v := range values {
		if err := Validate(k, v); err != nil {
			return err
		}
	}
	for k, v := range values {
		if err := p.store.Set(ctx, k, v); err != nil {
			return fmt.Errorf("save %s: %w", k, err)
		}
		if k == KeyUserID {
			p.mu.Lock()
			p.userID = v
			p.mu.Unlock()
		}
	}
	return p.Refresh(ctx)
}

// Values returns every known key with stored values layered over defaults.
func (p *Provider) Values(ctx context.Context) (map[string]string, error) {
	all, err := p.store.All(ctx)
	if err != nil {
		return nil, err
	}
	out := DefaultOptions().Values()
	for _, s := range all {
		if Known(s.Key) {
			out[s.Key] = s.Value
		}
	}
	return out, nil
}

// UserID returns the anonymous submitter id, creating and persisting one on
// first use. A failed write still yields a usable id for this process.
func (p *Provider) UserID() string {
	p.mu.RLock()
	id := p.userID
	p.mu.RUnlock()
	if id != "" {
		return id
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.userID != "" {
		return p.userID
	}
	ctx := context.Background()
	if v, ok, err := p.store.Get(ctx, KeyUserID); err == nil && ok && v != "" {
		p.userID = v
		return v
	}
	id = strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := p.store.Set(ctx, KeyUserID, id); err != nil {
		p.log.Warn("could not persist user id", "error", err)
	}
	p.userID = id
	return id
}

func (p *Provider) Close() {
	if p.cancelWatch != nil {
		p.cancelWatch()
	}
}
