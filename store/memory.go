package store

import (
	"context"
	"sync"
	"time"

	"mpesa-checkout-service/models"
)

// Memory is an in-process Store used when no redis address is configured
// and in tests. Records expire after the configured TTL.
type Memory struct {
	mu      sync.RWMutex
	ttl     time.Duration
	records map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	rec       models.PaymentRecord
	expiresAt time.Time
}

// NewMemory creates an in-memory store with the given record TTL.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		ttl:     ttl,
		records: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (m *Memory) Put(_ context.Context, rec models.PaymentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.UpdatedAt = m.now()
	m.records[rec.CheckoutRequestID] = memoryEntry{
		rec:       rec,
		expiresAt: m.now().Add(m.ttl),
	}
	return nil
}

func (m *Memory) Get(_ context.Context, checkoutRequestID string) (models.PaymentRecord, error) {
	m.mu.RLock()
	entry, ok := m.records[checkoutRequestID]
	m.mu.RUnlock()
	if !ok || m.now().After(entry.expiresAt) {
		return models.PaymentRecord{}, ErrNotFound
	}
	return entry.rec, nil
}

func (m *Memory) SetOutcome(_ context.Context, checkoutRequestID string, status models.PaymentStatus, desc, receipt string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.records[checkoutRequestID]
	if !ok || m.now().After(entry.expiresAt) {
		// A callback can arrive for an attempt this process never saw
		// (restart, or the record expired). The callback is authoritative,
		// so record it anyway.
		entry = memoryEntry{rec: models.PaymentRecord{CheckoutRequestID: checkoutRequestID}}
	}
	if !allowTransition(entry.rec.Status, status) {
		return nil
	}

	entry.rec.Status = status
	entry.rec.ResultDesc = desc
	if receipt != "" {
		entry.rec.Receipt = receipt
	}
	entry.rec.UpdatedAt = m.now()
	entry.expiresAt = m.now().Add(m.ttl)
	m.records[checkoutRequestID] = entry
	return nil
}
