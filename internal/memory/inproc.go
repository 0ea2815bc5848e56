package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Wbcubazo/Multiday-mini/internal/model"
)

// InProcess keeps entries in memory. Useful for tests and for runs that do
// not need planning history to survive a restart.
type InProcess struct {
	mu      sync.RWMutex
	entries []Entry
}

func NewInProcess(seed ...Entry) *InProcess {
	return &InProcess{entries: append([]Entry(nil), seed...)}
}

func (m *InProcess) Record(_ context.Context, content string, metadata map[string]any) (Entry, error) {
	id, err := model.GenerateID(model.IDTypeMemory)
	if err != nil {
		return Entry{}, fmt.Errorf("memory id: %w", err)
	}
	e := Entry{ID: id, Content: content, Metadata: metadata, CreatedAt: time.Now().UTC()}

	m.mu.Lock()
	m.entries = append(m.entries, e)
	m.mu.Unlock()
	return e, nil
}

func (m *InProcess) Recent(_ context.Context, n int) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return lastN(m.entries, n), nil
}

func (m *InProcess) Similar(_ context.Context, query string, k int) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return rankSimilar(m.entries, query, k), nil
}
