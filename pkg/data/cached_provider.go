package data

import (
	"path/filepath"
	"sync"

	"github.com/ducminhle1904/crypto-paper-risk/internal/logger"
	"github.com/ducminhle1904/crypto-paper-risk/pkg/types"
)

// cacheEntry is filled once; concurrent loaders of the same source wait on it
type cacheEntry struct {
	once    sync.Once
	candles []types.OHLCV
	err     error
}

// CachedProvider wraps another DataProvider so the primary series and its
// companions, loaded from parallel jobs, are each parsed once. Failed loads
// are not kept.
type CachedProvider struct {
	provider DataProvider
	logger   *logger.Logger

	mu      sync.Mutex
	entries map[string]*cacheEntry
}

// NewCachedProvider wraps provider with a memory cache
func NewCachedProvider(provider DataProvider, log *logger.Logger) *CachedProvider {
	if log == nil {
		log = logger.Nop()
	}
	return &CachedProvider{provider: provider, logger: log, entries: make(map[string]*cacheEntry)}
}

// GetName returns the name of the underlying provider with cache indication
func (p *CachedProvider) GetName() string {
	return "Cached " + p.provider.GetName()
}

// LoadData returns a copy of the cached series, loading it on first use
func (p *CachedProvider) LoadData(source string) ([]types.OHLCV, error) {
	p.mu.Lock()
	e, ok := p.entries[source]
	if !ok {
		e = &cacheEntry{}
		p.entries[source] = e
	}
	p.mu.Unlock()

	e.once.Do(func() {
		e.candles, e.err = p.provider.LoadData(source)
		if e.err != nil {
			p.logger.LogError("Load "+filepath.Base(source), e.err)
			p.forget(source, e)
			return
		}
		p.logger.Info("Loaded and cached %s (%d candles)", filepath.Base(source), len(e.candles))
	})
	if e.err != nil {
		return nil, e.err
	}

	out := make([]types.OHLCV, len(e.candles))
	copy(out, e.candles)
	return out, nil
}

// forget drops e so the next load retries
func (p *CachedProvider) forget(source string, e *cacheEntry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.entries[source] == e {
		delete(p.entries, source)
	}
}

// ValidateData validates data using the underlying provider
func (p *CachedProvider) ValidateData(data []types.OHLCV) error {
	return p.provider.ValidateData(data)
}

// CacheSize returns the number of cached sources
func (p *CachedProvider) CacheSize() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}
