package store

import (
	"context"
	"sync"

	"github.com/hpungsan/sav-assist/internal/calllog"
)

// Memory keeps both values in process. It is safe for concurrent use.
type Memory struct {
	mu     sync.Mutex
	snap   Snapshot
	writes int
}

// NewMemory returns a Memory holding a copy of snap.
func NewMemory(snap Snapshot) *Memory {
	snap.Logs = calllog.Clone(snap.Logs)
	return &Memory{snap: snap}
}

func (m *Memory) Load(context.Context) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{Logs: calllog.Clone(m.snap.Logs), Technician: m.snap.Technician}, nil
}

// UpdateCollection follows the same contract as Store.UpdateCollection.
func (m *Memory) UpdateCollection(_ context.Context, fn func([]calllog.CallLog) ([]calllog.CallLog, error)) ([]calllog.CallLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	next, err := fn(calllog.Clone(m.snap.Logs))
	if err != nil {
		return nil, err
	}
	if next != nil {
		m.snap.Logs = calllog.Clone(next)
		m.writes++
	}
	return calllog.Clone(m.snap.Logs), nil
}

func (m *Memory) SaveTechnician(_ context.Context, name string) error {
	m.mu.Lock()
	m.snap.Technician = name
	m.mu.Unlock()
	return nil
}

// Writes counts collection writes.
func (m *Memory) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}
