// Package ledgertest provides an in-memory ledger for tests.
package ledgertest

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/footley/eos-bot/db/ingestion"
)

// Memory is a ledger held in memory. Err, when set, is returned by every call.
type Memory struct {
	mu        sync.Mutex
	runs      []ingestion.Run
	purchases map[uuid.UUID][]ingestion.Purchase
	Err       error
}

// NewMemory creates an empty ledger.
func NewMemory() *Memory {
	return &Memory{purchases: make(map[uuid.UUID][]ingestion.Purchase)}
}

func (m *Memory) SaveRun(_ context.Context, run *ingestion.Run, purchases []ingestion.Purchase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.runs = append(m.runs, *run)
	m.purchases[run.ID] = append([]ingestion.Purchase(nil), purchases...)
	return nil
}

func (m *Memory) ListRuns(_ context.Context, limit int) ([]ingestion.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	runs := append([]ingestion.Run(nil), m.runs...)
	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func (m *Memory) ListPurchases(_ context.Context, runID uuid.UUID) ([]ingestion.Purchase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	return m.purchases[runID], nil
}

func (m *Memory) Ping(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Err
}

func (m *Memory) Close() error {
	return nil
}
