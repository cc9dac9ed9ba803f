package core

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"axiapac.com/workforce/console"
)

const (
	PositiveTTL = 10 * time.Minute
	NegativeTTL = time.Minute
)

// CompanySource looks companies up in the master database.
// FindCompany returns nil, nil when the code is unknown.
type CompanySource interface {
	FindCompany(ctx context.Context, code string) (*console.Company, error)
	ListActiveCompanies(ctx context.Context) ([]console.Company, error)
}

type cacheEntry struct {
	company   *console.Company // nil for a negative entry
	expiresAt time.Time
}

// CompanyDirectory resolves company codes to tenant configuration and caches
// both hits and misses.
type CompanyDirectory struct {
	source      CompanySource
	positiveTTL time.Duration
	negativeTTL time.Duration
	now         func() time.Time
	logger      *slog.Logger

	mu      sync.RWMutex
	entries map[string]cacheEntry
}

func NewCompanyDirectory(source CompanySource) *CompanyDirectory {
	return &CompanyDirectory{
		source:      source,
		positiveTTL: PositiveTTL,
		negativeTTL: NegativeTTL,
		now:         time.Now,
		logger:      slog.With("component", "directory"),
		entries:     make(map[string]cacheEntry),
	}
}

// Resolve returns the active company for code or ErrCompanyNotFoundOrInactive.
// Lookup failures are cached like misses; callers never see them.
func (d *CompanyDirectory) Resolve(ctx context.Context, code string) (*console.Company, error) {
	key := console.NormalizeCode(code)
	if key == "" {
		return nil, ErrCompanyNotFoundOrInactive
	}

	now := d.now()
	d.mu.RLock()
	entry, ok := d.entries[key]
	d.mu.RUnlock()
	if ok && now.Before(entry.expiresAt) {
		return entry.resolved()
	}

	company, err := d.source.FindCompany(ctx, key)
	if err != nil {
		d.logger.Warn("company lookup failed", "company", key, "error", err)
		company = nil
	}
	if company != nil && !company.Active {
		company = nil
	}

	ttl := d.positiveTTL
	if company == nil {
		ttl = d.negativeTTL
	}
	entry = cacheEntry{company: company, expiresAt: now.Add(ttl)}

	d.mu.Lock()
	d.entries[key] = entry
	d.mu.Unlock()

	return entry.resolved()
}

func (e cacheEntry) resolved() (*console.Company, error) {
	if e.company == nil {
		return nil, ErrCompanyNotFoundOrInactive
	}
	c := *e.company
	return &c, nil
}

// Invalidate forgets the cached state of a code.
func (d *CompanyDirectory) Invalidate(code string) {
	d.mu.Lock()
	delete(d.entries, console.NormalizeCode(code))
	d.mu.Unlock()
}

// Prune drops expired entries and returns how many were removed.
func (d *CompanyDirectory) Prune() int {
	now := d.now()
	d.mu.Lock()
	defer d.mu.Unlock()
	removed := 0
	for k, e := range d.entries {
		if !now.Before(e.expiresAt) {
			delete(d.entries, k)
			removed++
		}
	}
	return removed
}

func (d *CompanyDirectory) ListActive(ctx context.Context) ([]console.Company, error) {
	return d.source.ListActiveCompanies(ctx)
}
