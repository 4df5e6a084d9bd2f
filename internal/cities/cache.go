// Package cities memoizes validated city lookups per region code.
package cities

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/Corps-Lab/CRMDIAMANTE-sub000/internal/model"
)

// Cache stores city lists keyed by two-letter region code. Implementations
// must be safe for concurrent use.
type Cache interface {
	Get(ctx context.Context, regionCode string) ([]model.CityOption, bool)
	Put(ctx context.Context, regionCode string, cities []model.CityOption)
}

var regions = map[string]bool{
	"AC": true, "AL": true, "AM": true, "AP": true, "BA": true, "CE": true,
	"DF": true, "ES": true, "GO": true, "MA": true, "MG": true, "MS": true,
	"MT": true, "PA": true, "PB": true, "PE": true, "PI": true, "PR": true,
	"RJ": true, "RN": true, "RO": true, "RR": true, "RS": true, "SC": true,
	"SE": true, "SP": true, "TO": true,
}

// Key normalizes a region code for lookup.
func Key(regionCode string) string {
	return strings.ToUpper(strings.TrimSpace(regionCode))
}

// ValidRegion reports whether regionCode names one of the 27 federative
// units.
func ValidRegion(regionCode string) bool {
	return regions[Key(regionCode)]
}

// Memory is the process-wide in-memory cache. There is no TTL or eviction:
// the key space is bounded by the region list.
type Memory struct {
	mu      sync.RWMutex
	entries map[string][]model.CityOption
}

// NewMemory creates an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string][]model.CityOption)}
}

// Get returns a copy of the cached list for regionCode.
func (m *Memory) Get(_ context.Context, regionCode string) ([]model.CityOption, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list, ok := m.entries[Key(regionCode)]
	if !ok {
		return nil, false
	}
	return slices.Clone(list), true
}

// Put stores a copy of cities under regionCode.
func (m *Memory) Put(_ context.Context, regionCode string, cities []model.CityOption) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[Key(regionCode)] = slices.Clone(cities)
}

// Len returns the number of cached regions.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
