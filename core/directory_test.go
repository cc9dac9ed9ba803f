package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"axiapac.com/workforce/console"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource serves companies from memory and counts lookups.
type fakeSource struct {
	mu        sync.Mutex
	companies map[string]console.Company
	err       error
	calls     map[string]int
}

func newFakeSource(companies ...console.Company) *fakeSource {
	s := &fakeSource{companies: make(map[string]console.Company), calls: make(map[string]int)}
	for _, c := range companies {
		s.companies[c.Code] = c
	}
	return s
}

func (s *fakeSource) FindCompany(ctx context.Context, code string) (*console.Company, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[code]++
	if s.err != nil {
		return nil, s.err
	}
	c, ok := s.companies[code]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *fakeSource) ListActiveCompanies(ctx context.Context) ([]console.Company, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []console.Company
	for _, c := range s.companies {
		if c.Active {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *fakeSource) set(c console.Company) {
	s.mu.Lock()
	s.companies[c.Code] = c
	s.mu.Unlock()
}

func (s *fakeSource) count(code string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[code]
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestDirectory(source CompanySource, clock *fakeClock) *CompanyDirectory {
	d := NewCompanyDirectory(source)
	d.now = clock.Now
	return d
}

func TestResolveNormalizesAndCaches(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)}
	source := newFakeSource(console.Company{Code: "ACME", DisplayName: "Acme", DBName: "acme", Active: true})
	d := newTestDirectory(source, clock)

	c, err := d.Resolve(context.Background(), "  acme ")
	require.NoError(t, err)
	assert.Equal(t, "Acme", c.DisplayName)

	// the row changes mid-window, the cached value keeps being served
	source.set(console.Company{Code: "ACME", DisplayName: "Acme Renamed", DBName: "acme", Active: true})
	clock.Advance(9 * time.Minute)
	c, err = d.Resolve(context.Background(), "ACME")
	require.NoError(t, err)
	assert.Equal(t, "Acme", c.DisplayName)
	assert.Equal(t, 1, source.count("ACME"))

	// once the positive TTL is over the new row is read
	clock.Advance(2 * time.Minute)
	c, err = d.Resolve(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, "Acme Renamed", c.DisplayName)
	assert.Equal(t, 2, source.count("ACME"))
}

func TestResolveNegativeCache(t *testing.T) {
	tests := []struct {
		name    string
		source  *fakeSource
		code    string
		lookups string
	}{
		{
			name:    "unknown company",
			source:  newFakeSource(),
			code:    "NOPE",
			lookups: "NOPE",
		},
		{
			name:    "inactive company",
			source:  newFakeSource(console.Company{Code: "GONE", Active: false}),
			code:    "gone",
			lookups: "GONE",
		},
		{
			name: "master unreachable",
			source: func() *fakeSource {
				s := newFakeSource()
				s.err = errors.New("dial tcp: connection refused")
				return s
			}(),
			code:    "ACME",
			lookups: "ACME",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := &fakeClock{now: time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)}
			d := newTestDirectory(tt.source, clock)

			_, err := d.Resolve(context.Background(), tt.code)
			assert.ErrorIs(t, err, ErrCompanyNotFoundOrInactive)

			clock.Advance(59 * time.Second)
			_, err = d.Resolve(context.Background(), tt.code)
			assert.ErrorIs(t, err, ErrCompanyNotFoundOrInactive)
			assert.Equal(t, 1, tt.source.count(tt.lookups))

			clock.Advance(2 * time.Second)
			_, _ = d.Resolve(context.Background(), tt.code)
			assert.Equal(t, 2, tt.source.count(tt.lookups))
		})
	}
}

func TestResolveEmptyCode(t *testing.T) {
	source := newFakeSource()
	d := NewCompanyDirectory(source)
	_, err := d.Resolve(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrCompanyNotFoundOrInactive)
	assert.Empty(t, source.calls)
}

func TestResolveReturnsCopies(t *testing.T) {
	source := newFakeSource(console.Company{Code: "ACME", DisplayName: "Acme", Active: true})
	d := NewCompanyDirectory(source)

	c, err := d.Resolve(context.Background(), "ACME")
	require.NoError(t, err)
	c.DisplayName = "mutated"

	c, err = d.Resolve(context.Background(), "ACME")
	require.NoError(t, err)
	assert.Equal(t, "Acme", c.DisplayName)
}

func TestInvalidateAndPrune(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)}
	source := newFakeSource(console.Company{Code: "ACME", Active: true})
	d := newTestDirectory(source, clock)

	_, _ = d.Resolve(context.Background(), "ACME")
	_, _ = d.Resolve(context.Background(), "MISSING")

	d.Invalidate("acme")
	_, _ = d.Resolve(context.Background(), "ACME")
	assert.Equal(t, 2, source.count("ACME"))

	clock.Advance(2 * time.Minute)
	assert.Equal(t, 1, d.Prune()) // only the negative entry expired
	clock.Advance(10 * time.Minute)
	assert.Equal(t, 1, d.Prune())
}
