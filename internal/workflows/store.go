// Package workflows stores user workflow records and serves the paged
// listings behind the /v1/workflows API.
package workflows

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/heyross/InvokeAI/pkg/types"
)

// DefaultPerPage is used when a listing request gives no page size.
const DefaultPerPage = 10

// Store keeps workflow records in memory, optionally persisted to a
// JSON file across restarts.
type Store struct {
	mu      sync.RWMutex
	path    string
	records map[string]*types.WorkflowRecord
	now     func() time.Time
}

// NewStore creates a store persisted at path. An empty path keeps the
// store memory-only.
func NewStore(path string) *Store {
	s := &Store{
		path:    path,
		records: make(map[string]*types.WorkflowRecord),
		now:     time.Now,
	}
	s.loadSnapshot()
	return s
}

func (s *Store) loadSnapshot() {
	if s.path == "" {
		return
	}
	f, err := os.Open(s.path)
	if err != nil {
		return
	}
	defer f.Close()
	var data map[string]*types.WorkflowRecord
	if err := json.NewDecoder(f).Decode(&data); err == nil {
		s.records = data
	}
}

// saveSnapshot persists the current records. Callers hold at least a
// read lock.
func (s *Store) saveSnapshot() {
	if s.path == "" {
		return
	}
	b, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		return
	}
	_ = os.WriteFile(s.path, b, 0o644)
}

func newWorkflowID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic("workflows: entropy source unavailable: " + err.Error())
	}
	return hex.EncodeToString(b[:])
}

// Create stores w under a freshly assigned id and returns the stored
// record.
func (s *Store) Create(w types.Workflow) types.WorkflowRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	w.ID = newWorkflowID()
	now := s.now().Unix()
	rec := &types.WorkflowRecord{Workflow: w, CreatedAt: now, UpdatedAt: now}
	s.records[w.ID] = rec
	s.saveSnapshot()
	return *rec
}

// Get fetches the record for id and marks it opened.
func (s *Store) Get(id string) (types.WorkflowRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return types.WorkflowRecord{}, ErrWorkflowNotFound(id)
	}
	rec.OpenedAt = s.now().Unix()
	s.saveSnapshot()
	return *rec, nil
}

// Update replaces the workflow for w.ID, which must exist.
func (s *Store) Update(w types.Workflow) (types.WorkflowRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[w.ID]
	if !ok {
		return types.WorkflowRecord{}, ErrWorkflowNotFound(w.ID)
	}
	rec.Workflow = w
	rec.UpdatedAt = s.now().Unix()
	s.saveSnapshot()
	return *rec, nil
}

// Delete removes the record for id, which must exist.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return ErrWorkflowNotFound(id)
	}
	delete(s.records, id)
	s.saveSnapshot()
	return nil
}

// GetMany returns one page of records, newest first. page is zero
// based; perPage <= 0 falls back to DefaultPerPage.
func (s *Store) GetMany(page, perPage int) types.PaginatedResults[types.WorkflowRecord] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	if page < 0 {
		page = 0
	}

	all := make([]types.WorkflowRecord, 0, len(s.records))
	for _, rec := range s.records {
		all = append(all, *rec)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt != all[j].CreatedAt {
			return all[i].CreatedAt > all[j].CreatedAt
		}
		return all[i].Workflow.ID < all[j].Workflow.ID
	})

	total := len(all)
	pages := (total + perPage - 1) / perPage
	start := page * perPage
	if start > total {
		start = total
	}
	end := start + perPage
	if end > total {
		end = total
	}
	return types.PaginatedResults[types.WorkflowRecord]{
		Page:    page,
		Pages:   pages,
		PerPage: perPage,
		Total:   total,
		Items:   all[start:end],
	}
}
