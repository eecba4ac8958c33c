package archive

import (
	"context"
	"sort"
	"sync"

	"github.com/mcdev12/livepoll/go/internal/models"
)

// MemoryStore keeps records in process memory
type MemoryStore struct {
	mu      sync.RWMutex
	records []models.PollRecord
	byID    map[string]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]int)}
}

func (s *MemoryStore) Append(_ context.Context, record models.PollRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := record.ID.String()
	if _, ok := s.byID[id]; ok {
		return nil
	}
	s.byID[id] = len(s.records)
	s.records = append(s.records, copyRecord(record))
	return nil
}

// List returns records most recent first
func (s *MemoryStore) List(_ context.Context) ([]models.PollRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.PollRecord, 0, len(s.records))
	for i := len(s.records) - 1; i >= 0; i-- {
		out = append(out, copyRecord(s.records[i]))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].EndTime.After(out[j].EndTime)
	})
	return out, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (models.PollRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.byID[id]
	if !ok {
		return models.PollRecord{}, ErrNotFound
	}
	return copyRecord(s.records[i]), nil
}

func (s *MemoryStore) Close() error { return nil }

func copyRecord(r models.PollRecord) models.PollRecord {
	options := make([]models.Option, len(r.Options))
	copy(options, r.Options)
	r.Options = options

	answers := make(map[string]string, len(r.Answers))
	for k, v := range r.Answers {
		answers[k] = v
	}
	r.Answers = answers
	return r
}
