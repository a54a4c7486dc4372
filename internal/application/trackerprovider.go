package application

import (
	"context"
	"errors"
	"sync"

	"github.com/ericfisherdev/jiradl/internal/domain/port/driven"
)

// ErrNotLoggedIn is returned when no tracker credentials have been saved.
var ErrNotLoggedIn = errors.New("not logged in: run 'jiradl login' first")

// TrackerFactory builds a tracker client from the current stored credentials.
type TrackerFactory func(ctx context.Context) (driven.TrackerClient, error)

// TrackerProvider hands out the tracker client, building it on first use.
// After Reset the next Get rebuilds it, so a long-running process picks up
// credentials saved by another invocation without a restart.
type TrackerProvider struct {
	mu      sync.RWMutex
	factory TrackerFactory
	client  driven.TrackerClient
}

// NewTrackerProvider creates a provider that builds clients with factory.
func NewTrackerProvider(factory TrackerFactory) *TrackerProvider {
	return &TrackerProvider{factory: factory}
}

// NewStaticTrackerProvider creates a provider that always returns client.
func NewStaticTrackerProvider(client driven.TrackerClient) *TrackerProvider {
	return &TrackerProvider{client: client}
}

// Get returns the current client, building it if needed. Factory errors are
// returned as is and nothing is cached.
func (p *TrackerProvider) Get(ctx context.Context) (driven.TrackerClient, error) {
	p.mu.RLock()
	client := p.client
	p.mu.RUnlock()
	if client != nil {
		return client, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return p.client, nil
	}
	if p.factory == nil {
		return nil, ErrNotLoggedIn
	}

	client, err := p.factory(ctx)
	if err != nil {
		return nil, err
	}
	p.client = client
	return client, nil
}

// Replace swaps in a new client.
func (p *TrackerProvider) Replace(client driven.TrackerClient) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.client = client
}

// Reset drops the cached client. It is a no-op for static providers.
func (p *TrackerProvider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.factory != nil {
		p.client = nil
	}
}
