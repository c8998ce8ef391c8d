package ports

import (
	"context"
	"time"

	"github.com/tempora/tempora/internal/domain"
)

// Clock abstracts the server wall clock so tests can pin time.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// EntryFilter narrows entry listings. Inactive entries are always excluded
// by the repository itself.
type EntryFilter struct {
	Status *domain.EntryStatus
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}

// TimeEntryTx is the transactional view of the gateway. All methods see only
// active entries; soft-deleted rows are filtered inside the adapter so callers
// never hand-filter by the flag.
type TimeEntryTx interface {
	// LockPair serializes all writers for one (userID, tenantID) pair for the
	// remainder of the transaction. Writers for other pairs are not blocked.
	LockPair(ctx context.Context, userID, tenantID string) error

	// FindRunning returns the running entry for the pair, or
	// domain.ErrTimerNotRunning when there is none.
	FindRunning(ctx context.Context, userID, tenantID string) (*domain.TimeEntry, error)

	// HasOverlap reports whether any active entry of the pair with a concrete
	// end time intersects the half-open interval [start, end). excludeID may
	// name an entry to skip, so updates can ignore the row being edited.
	HasOverlap(ctx context.Context, userID, tenantID string, start, end time.Time, excludeID string) (bool, error)

	// FindByIDForUpdate loads an entry by id within the tenant and acquires a
	// row lock on it. Returns domain.ErrEntryNotFound for unknown, inactive or
	// foreign-tenant ids.
	FindByIDForUpdate(ctx context.Context, tenantID, id string) (*domain.TimeEntry, error)

	// Insert persists a new entry. A storage-level uniqueness violation of the
	// running-timer constraint is translated to domain.ErrTimerAlreadyRunning.
	Insert(ctx context.Context, entry *domain.TimeEntry) error

	// Update persists changes to an existing entry. Returns
	// domain.ErrEntryNotFound when no row was touched.
	Update(ctx context.Context, entry *domain.TimeEntry) error
}

// TimeEntryRepository is the persistence gateway for time entries. Every
// read-then-write sequence runs through InTx so the check and the write share
// one transaction.
type TimeEntryRepository interface {
	// InTx runs fn inside a single transaction, committing when fn returns nil
	// and rolling back otherwise. A rolled-back transaction leaves no
	// partially-applied state.
	InTx(ctx context.Context, fn func(tx TimeEntryTx) error) error

	// FindByID loads an active entry by id within the tenant without locking.
	FindByID(ctx context.Context, tenantID, id string) (*domain.TimeEntry, error)

	// FindRunning returns the running entry for the pair without locking, or
	// domain.ErrTimerNotRunning when there is none.
	FindRunning(ctx context.Context, userID, tenantID string) (*domain.TimeEntry, error)

	// List returns the pair's active entries, newest start first.
	List(ctx context.Context, userID, tenantID string, filter EntryFilter) ([]*domain.TimeEntry, error)
}
