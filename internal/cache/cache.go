package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"mystore/backend/internal/domain"
)

const (
	ProductStatsKey       = "product_stats"
	filteredProductPrefix = "filtered_product_ids_"
)

var choiceFields = []string{"color", "design", "category", "size", "brand"}

// ProductCache stores derived product views. Writers call InvalidateProducts
// after any product mutation; nothing expires them implicitly except the TTL.
type ProductCache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	InvalidateProducts(ctx context.Context) error
}

func ProductChoicesKey(field string) string {
	return "product_choices_" + field
}

func LocationChoicesKey(field string, location string) string {
	return fmt.Sprintf("location_choices_%s_%s", field, location)
}

// ProductListKey derives the key of a filtered product list.
func ProductListKey(q domain.ProductQuery) string {
	raw := strings.Join([]string{q.Location, q.Category, q.Brand, fmt.Sprint(q.InStock), strings.ToLower(q.Search)}, "|")
	sum := sha1.Sum([]byte(raw))
	return filteredProductPrefix + hex.EncodeToString(sum[:8])
}

// productKeys lists every fixed key derived from product rows.
func productKeys() []string {
	keys := []string{ProductStatsKey}
	for _, field := range choiceFields {
		keys = append(keys, ProductChoicesKey(field))
		for _, location := range []string{domain.LocationAbuja, domain.LocationLagos} {
			keys = append(keys, LocationChoicesKey(field, location))
		}
	}
	return keys
}

type Noop struct{}

func (Noop) Get(_ context.Context, _ string, _ any) (bool, error) {
	return false, nil
}

func (Noop) Set(_ context.Context, _ string, _ any, _ time.Duration) error {
	return nil
}

func (Noop) InvalidateProducts(_ context.Context) error {
	return nil
}

// Memory is a process-local ProductCache for single-instance deployments and tests.
type Memory struct {
	mu            sync.Mutex
	entries       map[string]memoryEntry
	Invalidations int
}

type memoryEntry struct {
	payload   []byte
	expiresAt time.Time
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]memoryEntry)}
}

func (m *Memory) Get(_ context.Context, key string, dest any) (bool, error) {
	m.mu.Lock()
	entry, ok := m.entries[key]
	m.mu.Unlock()
	if !ok {
		return false, nil
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return false, nil
	}
	if err := json.Unmarshal(entry.payload, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (m *Memory) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	entry := memoryEntry{payload: payload}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	m.mu.Lock()
	m.entries[key] = entry
	m.mu.Unlock()
	return nil
}

func (m *Memory) InvalidateProducts(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, key := range productKeys() {
		delete(m.entries, key)
	}
	for key := range m.entries {
		if strings.HasPrefix(key, filteredProductPrefix) {
			delete(m.entries, key)
		}
	}
	m.Invalidations++
	return nil
}

func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
