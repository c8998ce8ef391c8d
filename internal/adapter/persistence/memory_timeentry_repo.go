package persistence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tempora/tempora/internal/domain"
	"github.com/tempora/tempora/internal/ports"
)

// MemoryTimeEntryRepository is an in-memory gateway with the same locking and
// constraint semantics as the Postgres adapter: writers for one (user, tenant)
// pair serialize on a per-pair mutex, and inserts re-check the running-timer
// uniqueness rule at commit so a racing writer fails the same way a partial
// unique index would make it fail. Used by the test suite and the mock-DB
// development mode.
type MemoryTimeEntryRepository struct {
	mu      sync.Mutex
	entries map[string]*domain.TimeEntry
	pairs   map[string]*sync.Mutex
}

// NewMemoryTimeEntryRepository creates an empty in-memory repository
func NewMemoryTimeEntryRepository() *MemoryTimeEntryRepository {
	return &MemoryTimeEntryRepository{
		entries: make(map[string]*domain.TimeEntry),
		pairs:   make(map[string]*sync.Mutex),
	}
}

// InTx runs fn against a staged view. Writes become visible only when fn
// returns nil; an error discards the staged writes, leaving no partial state.
func (r *MemoryTimeEntryRepository) InTx(ctx context.Context, fn func(tx ports.TimeEntryTx) error) error {
	tx := &memoryTx{repo: r, staged: make(map[string]*domain.TimeEntry)}
	defer tx.releaseLocks()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.commit()
}

func (r *MemoryTimeEntryRepository) FindByID(ctx context.Context, tenantID, id string) (*domain.TimeEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[id]
	if !ok || !entry.IsActive || entry.TenantID != tenantID {
		return nil, domain.ErrEntryNotFound
	}
	return copyEntry(entry), nil
}

func (r *MemoryTimeEntryRepository) FindRunning(ctx context.Context, userID, tenantID string) (*domain.TimeEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.findRunningLocked(userID, tenantID)
}

func (r *MemoryTimeEntryRepository) List(ctx context.Context, userID, tenantID string, filter ports.EntryFilter) ([]*domain.TimeEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var entries []*domain.TimeEntry
	for _, entry := range r.entries {
		if !entry.IsActive || entry.UserID != userID || entry.TenantID != tenantID {
			continue
		}
		if filter.Status != nil && entry.Status != *filter.Status {
			continue
		}
		if filter.From != nil && entry.StartTime.Before(*filter.From) {
			continue
		}
		if filter.To != nil && !entry.StartTime.Before(*filter.To) {
			continue
		}
		entries = append(entries, copyEntry(entry))
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].StartTime.After(entries[j].StartTime)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(entries) {
			return nil, nil
		}
		entries = entries[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(entries) {
		entries = entries[:filter.Limit]
	}
	return entries, nil
}

func (r *MemoryTimeEntryRepository) findRunningLocked(userID, tenantID string) (*domain.TimeEntry, error) {
	for _, entry := range r.entries {
		if entry.IsActive && entry.IsRunning && entry.UserID == userID && entry.TenantID == tenantID {
			return copyEntry(entry), nil
		}
	}
	return nil, domain.ErrTimerNotRunning
}

func (r *MemoryTimeEntryRepository) pairMutex(userID, tenantID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := tenantID + "\x00" + userID
	if m, ok := r.pairs[key]; ok {
		return m
	}
	m := &sync.Mutex{}
	r.pairs[key] = m
	return m
}

type memoryTx struct {
	repo   *MemoryTimeEntryRepository
	staged map[string]*domain.TimeEntry
	held   []*sync.Mutex
}

func (t *memoryTx) LockPair(ctx context.Context, userID, tenantID string) error {
	m := t.repo.pairMutex(userID, tenantID)
	m.Lock()
	t.held = append(t.held, m)
	return nil
}

func (t *memoryTx) FindRunning(ctx context.Context, userID, tenantID string) (*domain.TimeEntry, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	return t.repo.findRunningLocked(userID, tenantID)
}

func (t *memoryTx) HasOverlap(ctx context.Context, userID, tenantID string, start, end time.Time, excludeID string) (bool, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()

	for _, entry := range t.repo.entries {
		if !entry.IsActive || entry.UserID != userID || entry.TenantID != tenantID {
			continue
		}
		if entry.EndTime == nil || entry.ID == excludeID {
			continue
		}
		if domain.Overlaps(entry.StartTime, *entry.EndTime, start, end) {
			return true, nil
		}
	}
	return false, nil
}

func (t *memoryTx) FindByIDForUpdate(ctx context.Context, tenantID, id string) (*domain.TimeEntry, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()

	entry, ok := t.repo.entries[id]
	if !ok || !entry.IsActive || entry.TenantID != tenantID {
		return nil, domain.ErrEntryNotFound
	}
	return copyEntry(entry), nil
}

func (t *memoryTx) Insert(ctx context.Context, entry *domain.TimeEntry) error {
	t.staged[entry.ID] = copyEntry(entry)
	return nil
}

func (t *memoryTx) Update(ctx context.Context, entry *domain.TimeEntry) error {
	if _, staged := t.staged[entry.ID]; !staged {
		t.repo.mu.Lock()
		_, exists := t.repo.entries[entry.ID]
		t.repo.mu.Unlock()
		if !exists {
			return domain.ErrEntryNotFound
		}
	}
	t.staged[entry.ID] = copyEntry(entry)
	return nil
}

// commit publishes staged writes, re-checking the running-timer uniqueness
// rule the way the database constraint would.
func (t *memoryTx) commit() error {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()

	for id, staged := range t.staged {
		if staged.IsRunning && staged.IsActive {
			for otherID, other := range t.repo.entries {
				if otherID == id {
					continue
				}
				if other.IsRunning && other.IsActive && other.UserID == staged.UserID && other.TenantID == staged.TenantID {
					return domain.ErrTimerAlreadyRunning
				}
			}
		}
	}
	for id, staged := range t.staged {
		t.repo.entries[id] = staged
	}
	return nil
}

func (t *memoryTx) releaseLocks() {
	for _, m := range t.held {
		m.Unlock()
	}
	t.held = nil
}

func copyEntry(entry *domain.TimeEntry) *domain.TimeEntry {
	clone := *entry
	if entry.EndTime != nil {
		v := *entry.EndTime
		clone.EndTime = &v
	}
	if entry.DurationMinutes != nil {
		v := *entry.DurationMinutes
		clone.DurationMinutes = &v
	}
	if entry.HourlyRate != nil {
		v := *entry.HourlyRate
		clone.HourlyRate = &v
	}
	if entry.ClientID != nil {
		v := *entry.ClientID
		clone.ClientID = &v
	}
	if entry.TaskID != nil {
		v := *entry.TaskID
		clone.TaskID = &v
	}
	if entry.LockedByID != nil {
		v := *entry.LockedByID
		clone.LockedByID = &v
	}
	if entry.LockedAt != nil {
		v := *entry.LockedAt
		clone.LockedAt = &v
	}
	clone.Tags = append([]string(nil), entry.Tags...)
	return &clone
}
