package database

import (
	"context"
	"sync"
)

// MemorySettings is an in-memory settings store for tests and for
// running without PostgreSQL
type MemorySettings struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemorySettings creates an empty in-memory settings store
func NewMemorySettings() *MemorySettings {
	return &MemorySettings{values: make(map[string]string)}
}

func (m *MemorySettings) GetSetting(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.values[key]
	if !ok {
		return "", ErrSettingNotFound
	}
	return value, nil
}

func (m *MemorySettings) SetSetting(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *MemorySettings) DeleteSetting(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

// MemoryLedger is an in-memory balance ledger mirroring the SQL
// ledger's conditional-debit semantics under a mutex
type MemoryLedger struct {
	mu       sync.Mutex
	balances map[string]float64
}

// NewMemoryLedger creates an empty in-memory ledger
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{balances: make(map[string]float64)}
}

func (m *MemoryLedger) GetBalance(ctx context.Context, userID string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[userID], nil
}

func (m *MemoryLedger) Credit(ctx context.Context, userID string, amount float64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[userID] += amount
	return nil
}

// Debit performs the compare and the decrement under one lock hold so
// concurrent debits can never drive a balance negative
func (m *MemoryLedger) Debit(ctx context.Context, userID string, amount float64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.balances[userID] < amount {
		return ErrInsufficientBalance
	}
	m.balances[userID] -= amount
	return nil
}
