package usecase

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/tempora/tempora/internal/domain"
	"github.com/tempora/tempora/internal/ports"
)

// MaxBulkSize bounds a single bulk approve/reject call. Larger batches are
// rejected before any entry is touched, never truncated.
const MaxBulkSize = 100

// BulkOutcome reports the result for one id of a bulk call. A nil Err means
// the transition committed durably and Entry holds the transitioned entry.
type BulkOutcome struct {
	EntryID string
	Entry   *domain.TimeEntry
	Err     error
}

// LifecycleUseCase moves entries through submit/approve/reject and the
// orthogonal lock flag. Authority checks (who may approve, who may lock) are
// the transport layer's concern; the lock guard is still re-verified here
// because lock state can change between authorization and execution.
type LifecycleUseCase struct {
	repo   ports.TimeEntryRepository
	clock  ports.Clock
	logger *logrus.Logger
}

// NewLifecycleUseCase creates a new lifecycle use case
func NewLifecycleUseCase(repo ports.TimeEntryRepository, clock ports.Clock, logger *logrus.Logger) *LifecycleUseCase {
	return &LifecycleUseCase{repo: repo, clock: clock, logger: logger}
}

// SubmitEntry moves a DRAFT or REJECTED entry into SUBMITTED. Because the
// interval may have been edited since the last check, overlap is re-validated
// inside the same transaction before the transition commits.
//
// Every same-pair writer takes the pair lock before any row lock. The pair is
// keyed on the owner, so the owner is read outside the transaction first;
// UserID is immutable, which makes that unlocked read safe.
func (uc *LifecycleUseCase) SubmitEntry(ctx context.Context, tenantID, entryID string) (*domain.TimeEntry, error) {
	owner, err := uc.repo.FindByID(ctx, tenantID, entryID)
	if err != nil {
		return nil, err
	}

	var entry *domain.TimeEntry
	err = uc.repo.InTx(ctx, func(tx ports.TimeEntryTx) error {
		if err := tx.LockPair(ctx, owner.UserID, tenantID); err != nil {
			return fmt.Errorf("failed to lock pair: %w", err)
		}

		var err error
		entry, err = tx.FindByIDForUpdate(ctx, tenantID, entryID)
		if err != nil {
			return err
		}
		if entry.EndTime != nil {
			overlaps, err := tx.HasOverlap(ctx, entry.UserID, entry.TenantID, entry.StartTime, *entry.EndTime, entry.ID)
			if err != nil {
				return fmt.Errorf("failed to check overlap: %w", err)
			}
			if overlaps {
				return domain.ErrEntryOverlap
			}
		}
		if err := entry.Submit(uc.clock.Now()); err != nil {
			return err
		}
		return tx.Update(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	uc.logEvent(entry, "entry submitted")
	return entry, nil
}

// ApproveEntry moves a SUBMITTED entry into APPROVED.
func (uc *LifecycleUseCase) ApproveEntry(ctx context.Context, tenantID, entryID string) (*domain.TimeEntry, error) {
	return uc.transition(ctx, tenantID, entryID, "entry approved", func(entry *domain.TimeEntry) error {
		return entry.Approve(uc.clock.Now())
	})
}

// RejectEntry moves a SUBMITTED entry into REJECTED, storing the mandatory note.
func (uc *LifecycleUseCase) RejectEntry(ctx context.Context, tenantID, entryID, note string) (*domain.TimeEntry, error) {
	return uc.transition(ctx, tenantID, entryID, "entry rejected", func(entry *domain.TimeEntry) error {
		return entry.Reject(note, uc.clock.Now())
	})
}

// LockEntry sets the administrative lock flag. The status is untouched.
func (uc *LifecycleUseCase) LockEntry(ctx context.Context, tenantID, entryID, lockedByID string) (*domain.TimeEntry, error) {
	if lockedByID == "" {
		return nil, domain.NewValidationError("locking user ID is required")
	}
	return uc.transition(ctx, tenantID, entryID, "entry locked", func(entry *domain.TimeEntry) error {
		return entry.Lock(lockedByID, uc.clock.Now())
	})
}

// UnlockEntry lifts the administrative lock. The status is untouched.
func (uc *LifecycleUseCase) UnlockEntry(ctx context.Context, tenantID, entryID string) (*domain.TimeEntry, error) {
	return uc.transition(ctx, tenantID, entryID, "entry unlocked", func(entry *domain.TimeEntry) error {
		return entry.Unlock(uc.clock.Now())
	})
}

// BulkApprove applies ApproveEntry to each id independently. One entry's
// failure never aborts the rest; the caller gets a per-id outcome list.
func (uc *LifecycleUseCase) BulkApprove(ctx context.Context, tenantID string, entryIDs []string) ([]BulkOutcome, error) {
	if err := validateBulkSize(entryIDs); err != nil {
		return nil, err
	}
	outcomes := make([]BulkOutcome, 0, len(entryIDs))
	for _, id := range entryIDs {
		entry, err := uc.ApproveEntry(ctx, tenantID, id)
		outcomes = append(outcomes, BulkOutcome{EntryID: id, Entry: entry, Err: err})
	}
	uc.logBulk(tenantID, "bulk approve", outcomes)
	return outcomes, nil
}

// BulkReject applies RejectEntry with the shared note to each id independently.
func (uc *LifecycleUseCase) BulkReject(ctx context.Context, tenantID string, entryIDs []string, note string) ([]BulkOutcome, error) {
	if err := validateBulkSize(entryIDs); err != nil {
		return nil, err
	}
	if note == "" {
		return nil, domain.NewValidationError("rejection note is required")
	}
	outcomes := make([]BulkOutcome, 0, len(entryIDs))
	for _, id := range entryIDs {
		entry, err := uc.RejectEntry(ctx, tenantID, id, note)
		outcomes = append(outcomes, BulkOutcome{EntryID: id, Entry: entry, Err: err})
	}
	uc.logBulk(tenantID, "bulk reject", outcomes)
	return outcomes, nil
}

// transition runs one locked read-modify-write cycle for a single entry.
func (uc *LifecycleUseCase) transition(ctx context.Context, tenantID, entryID, event string, apply func(*domain.TimeEntry) error) (*domain.TimeEntry, error) {
	if entryID == "" {
		return nil, domain.NewValidationError("entry ID is required")
	}

	var entry *domain.TimeEntry
	err := uc.repo.InTx(ctx, func(tx ports.TimeEntryTx) error {
		var err error
		entry, err = tx.FindByIDForUpdate(ctx, tenantID, entryID)
		if err != nil {
			return err
		}
		if err := apply(entry); err != nil {
			return err
		}
		return tx.Update(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	uc.logEvent(entry, event)
	return entry, nil
}

func (uc *LifecycleUseCase) logEvent(entry *domain.TimeEntry, event string) {
	uc.logger.WithFields(logrus.Fields{
		"entry_id":  entry.ID,
		"user_id":   entry.UserID,
		"tenant_id": entry.TenantID,
		"status":    entry.Status,
		"is_locked": entry.IsLocked,
	}).Info(event)
}

func (uc *LifecycleUseCase) logBulk(tenantID, event string, outcomes []BulkOutcome) {
	succeeded := 0
	for _, o := range outcomes {
		if o.Err == nil {
			succeeded++
		}
	}
	uc.logger.WithFields(logrus.Fields{
		"tenant_id": tenantID,
		"total":     len(outcomes),
		"succeeded": succeeded,
		"failed":    len(outcomes) - succeeded,
	}).Info(event)
}

func validateBulkSize(entryIDs []string) error {
	if len(entryIDs) == 0 {
		return domain.NewValidationError("at least one entry ID is required")
	}
	if len(entryIDs) > MaxBulkSize {
		return domain.NewValidationError(fmt.Sprintf("at most %d entries per bulk call", MaxBulkSize))
	}
	return nil
}
