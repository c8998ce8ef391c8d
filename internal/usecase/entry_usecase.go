package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tempora/tempora/internal/domain"
	"github.com/tempora/tempora/internal/ports"
)

// CreateEntryRequest represents a manual time entry with both timestamps known.
type CreateEntryRequest struct {
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	DurationMinutes *int      `json:"duration_minutes,omitempty"`
	Description     *string   `json:"description,omitempty"`
	IsBillable      *bool     `json:"is_billable,omitempty"`
	HourlyRate      *float64  `json:"hourly_rate,omitempty"`
	Currency        *string   `json:"currency,omitempty"`
	Tags            []string  `json:"tags,omitempty"`
	ClientID        *string   `json:"client_id,omitempty"`
	TaskID          *string   `json:"task_id,omitempty"`
}

// UpdateEntryRequest represents an edit of an existing DRAFT or REJECTED entry.
// Nil fields are left unchanged; StartTime and EndTime must be supplied together.
type UpdateEntryRequest struct {
	StartTime       *time.Time `json:"start_time,omitempty"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	DurationMinutes *int       `json:"duration_minutes,omitempty"`
	Description     *string    `json:"description,omitempty"`
	IsBillable      *bool      `json:"is_billable,omitempty"`
	HourlyRate      *float64   `json:"hourly_rate,omitempty"`
	Currency        *string    `json:"currency,omitempty"`
	Tags            []string   `json:"tags,omitempty"`
	ClientID        *string    `json:"client_id,omitempty"`
	TaskID          *string    `json:"task_id,omitempty"`
}

// EntryUseCase handles manual entry creation, edits and soft deletion. The
// overlap check always runs inside the same transaction as the write, after
// the pair lock is held, so there is no time-of-check/time-of-use gap.
type EntryUseCase struct {
	repo   ports.TimeEntryRepository
	clock  ports.Clock
	logger *logrus.Logger
}

// NewEntryUseCase creates a new entry use case
func NewEntryUseCase(repo ports.TimeEntryRepository, clock ports.Clock, logger *logrus.Logger) *EntryUseCase {
	return &EntryUseCase{repo: repo, clock: clock, logger: logger}
}

// CreateEntry creates a manual entry after validating its interval and
// verifying it does not overlap any active entry of the pair.
func (uc *EntryUseCase) CreateEntry(ctx context.Context, userID, tenantID string, req CreateEntryRequest) (*domain.TimeEntry, error) {
	if userID == "" || tenantID == "" {
		return nil, domain.NewValidationError("user ID and tenant ID are required")
	}

	entry, err := domain.NewManualEntry(userID, tenantID, req.StartTime, req.EndTime, req.DurationMinutes,
		toAttributes(req.Description, req.IsBillable, req.HourlyRate, req.Currency, req.Tags, req.ClientID, req.TaskID), uc.clock.Now())
	if err != nil {
		return nil, err
	}

	err = uc.repo.InTx(ctx, func(tx ports.TimeEntryTx) error {
		if err := tx.LockPair(ctx, userID, tenantID); err != nil {
			return fmt.Errorf("failed to lock pair: %w", err)
		}

		overlaps, err := tx.HasOverlap(ctx, userID, tenantID, req.StartTime, req.EndTime, "")
		if err != nil {
			return fmt.Errorf("failed to check overlap: %w", err)
		}
		if overlaps {
			return domain.ErrEntryOverlap
		}
		return tx.Insert(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	uc.logger.WithFields(logrus.Fields{
		"entry_id":  entry.ID,
		"user_id":   userID,
		"tenant_id": tenantID,
	}).Info("manual entry created")
	return entry, nil
}

// UpdateEntry edits an entry owned by the caller. Interval changes re-run the
// overlap check with the edited entry excluded from the scan.
func (uc *EntryUseCase) UpdateEntry(ctx context.Context, userID, tenantID, entryID string, req UpdateEntryRequest) (*domain.TimeEntry, error) {
	if entryID == "" {
		return nil, domain.NewValidationError("entry ID is required")
	}
	if (req.StartTime == nil) != (req.EndTime == nil) {
		return nil, domain.NewValidationError("start time and end time must be updated together")
	}

	var entry *domain.TimeEntry
	err := uc.repo.InTx(ctx, func(tx ports.TimeEntryTx) error {
		if err := tx.LockPair(ctx, userID, tenantID); err != nil {
			return fmt.Errorf("failed to lock pair: %w", err)
		}

		var err error
		entry, err = tx.FindByIDForUpdate(ctx, tenantID, entryID)
		if err != nil {
			return err
		}
		if entry.UserID != userID {
			// Foreign entries are invisible to the caller, not forbidden.
			return domain.ErrEntryNotFound
		}

		now := uc.clock.Now()
		if req.StartTime != nil {
			overlaps, err := tx.HasOverlap(ctx, userID, tenantID, *req.StartTime, *req.EndTime, entry.ID)
			if err != nil {
				return fmt.Errorf("failed to check overlap: %w", err)
			}
			if overlaps {
				return domain.ErrEntryOverlap
			}
			if err := entry.UpdateTimes(*req.StartTime, *req.EndTime, req.DurationMinutes, now); err != nil {
				return err
			}
		} else if req.DurationMinutes != nil {
			// Duration supplied alone is checked against the stored interval.
			if entry.EndTime == nil {
				return domain.NewValidationError("duration requires a concrete interval")
			}
			if err := entry.UpdateTimes(entry.StartTime, *entry.EndTime, req.DurationMinutes, now); err != nil {
				return err
			}
		}
		if err := entry.UpdateAttributes(toAttributes(req.Description, req.IsBillable, req.HourlyRate, req.Currency, req.Tags, req.ClientID, req.TaskID), now); err != nil {
			return err
		}
		return tx.Update(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	uc.logger.WithFields(logrus.Fields{
		"entry_id":  entry.ID,
		"user_id":   userID,
		"tenant_id": tenantID,
	}).Info("entry updated")
	return entry, nil
}

// DeleteEntry soft-deletes an entry owned by the caller. The row is kept for
// audit and drops out of all uniqueness and overlap checks.
func (uc *EntryUseCase) DeleteEntry(ctx context.Context, userID, tenantID, entryID string) error {
	if entryID == "" {
		return domain.NewValidationError("entry ID is required")
	}

	err := uc.repo.InTx(ctx, func(tx ports.TimeEntryTx) error {
		entry, err := tx.FindByIDForUpdate(ctx, tenantID, entryID)
		if err != nil {
			return err
		}
		if entry.UserID != userID {
			return domain.ErrEntryNotFound
		}
		if err := entry.Deactivate(uc.clock.Now()); err != nil {
			return err
		}
		return tx.Update(ctx, entry)
	})
	if err != nil {
		return err
	}

	uc.logger.WithFields(logrus.Fields{
		"entry_id":  entryID,
		"user_id":   userID,
		"tenant_id": tenantID,
	}).Info("entry soft-deleted")
	return nil
}

// GetEntry loads a single active entry within the tenant.
func (uc *EntryUseCase) GetEntry(ctx context.Context, tenantID, entryID string) (*domain.TimeEntry, error) {
	if entryID == "" {
		return nil, domain.NewValidationError("entry ID is required")
	}
	return uc.repo.FindByID(ctx, tenantID, entryID)
}

// ListEntries returns the caller's active entries, newest first.
func (uc *EntryUseCase) ListEntries(ctx context.Context, userID, tenantID string, filter ports.EntryFilter) ([]*domain.TimeEntry, error) {
	if userID == "" || tenantID == "" {
		return nil, domain.NewValidationError("user ID and tenant ID are required")
	}
	return uc.repo.List(ctx, userID, tenantID, filter)
}
