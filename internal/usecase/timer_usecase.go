package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/tempora/tempora/internal/domain"
	"github.com/tempora/tempora/internal/ports"
)

// StartTimerRequest carries the descriptive attributes of a new running entry.
// It deliberately has no end-time field: a started timer is open by definition.
type StartTimerRequest struct {
	Description *string  `json:"description,omitempty"`
	IsBillable  *bool    `json:"is_billable,omitempty"`
	HourlyRate  *float64 `json:"hourly_rate,omitempty"`
	Currency    *string  `json:"currency,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	ClientID    *string  `json:"client_id,omitempty"`
	TaskID      *string  `json:"task_id,omitempty"`
}

// StopTimerRequest carries the closing attribute updates applied when a
// running timer is stopped.
type StopTimerRequest struct {
	Description *string  `json:"description,omitempty"`
	IsBillable  *bool    `json:"is_billable,omitempty"`
	HourlyRate  *float64 `json:"hourly_rate,omitempty"`
	Currency    *string  `json:"currency,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// TimerUseCase enforces "at most one running timer per (user, tenant)".
//
// Two layers guarantee the invariant: the pair lock taken inside the
// transaction serializes concurrent starts so the existence check and the
// insert are atomic, and the partial unique index on running active entries
// rejects anything that still races past the check. The gateway translates
// that violation back to domain.ErrTimerAlreadyRunning.
type TimerUseCase struct {
	repo   ports.TimeEntryRepository
	clock  ports.Clock
	logger *logrus.Logger
}

// NewTimerUseCase creates a new timer use case
func NewTimerUseCase(repo ports.TimeEntryRepository, clock ports.Clock, logger *logrus.Logger) *TimerUseCase {
	return &TimerUseCase{repo: repo, clock: clock, logger: logger}
}

// StartTimer opens a new running entry for the pair. Fails with
// domain.ErrTimerAlreadyRunning when one is already active.
func (uc *TimerUseCase) StartTimer(ctx context.Context, userID, tenantID string, req StartTimerRequest) (*domain.TimeEntry, error) {
	if userID == "" || tenantID == "" {
		return nil, domain.NewValidationError("user ID and tenant ID are required")
	}

	var entry *domain.TimeEntry
	err := uc.repo.InTx(ctx, func(tx ports.TimeEntryTx) error {
		if err := tx.LockPair(ctx, userID, tenantID); err != nil {
			return fmt.Errorf("failed to lock pair: %w", err)
		}

		_, err := tx.FindRunning(ctx, userID, tenantID)
		if err == nil {
			return domain.ErrTimerAlreadyRunning
		}
		if !errors.Is(err, domain.ErrTimerNotRunning) {
			return fmt.Errorf("failed to check running timer: %w", err)
		}

		entry, err = domain.NewRunningEntry(userID, tenantID, toAttributes(req.Description, req.IsBillable, req.HourlyRate, req.Currency, req.Tags, req.ClientID, req.TaskID), uc.clock.Now())
		if err != nil {
			return err
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
	}).Info("timer started")
	return entry, nil
}

// StopTimer closes the pair's running entry, deriving the duration from the
// server clock. A second stop after a successful one fails with
// domain.ErrTimerNotRunning.
func (uc *TimerUseCase) StopTimer(ctx context.Context, userID, tenantID string, req StopTimerRequest) (*domain.TimeEntry, error) {
	if userID == "" || tenantID == "" {
		return nil, domain.NewValidationError("user ID and tenant ID are required")
	}

	var entry *domain.TimeEntry
	err := uc.repo.InTx(ctx, func(tx ports.TimeEntryTx) error {
		if err := tx.LockPair(ctx, userID, tenantID); err != nil {
			return fmt.Errorf("failed to lock pair: %w", err)
		}

		var err error
		entry, err = tx.FindRunning(ctx, userID, tenantID)
		if err != nil {
			return err
		}
		if err := entry.Stop(uc.clock.Now(), toAttributes(req.Description, req.IsBillable, req.HourlyRate, req.Currency, req.Tags, nil, nil)); err != nil {
			return err
		}
		return tx.Update(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	uc.logger.WithFields(logrus.Fields{
		"entry_id":         entry.ID,
		"user_id":          userID,
		"tenant_id":        tenantID,
		"duration_minutes": entry.DurationMinutes,
	}).Info("timer stopped")
	return entry, nil
}

// DiscardTimer soft-deletes the pair's running entry without producing a
// billable record.
func (uc *TimerUseCase) DiscardTimer(ctx context.Context, userID, tenantID string) error {
	if userID == "" || tenantID == "" {
		return domain.NewValidationError("user ID and tenant ID are required")
	}

	var entryID string
	err := uc.repo.InTx(ctx, func(tx ports.TimeEntryTx) error {
		if err := tx.LockPair(ctx, userID, tenantID); err != nil {
			return fmt.Errorf("failed to lock pair: %w", err)
		}

		entry, err := tx.FindRunning(ctx, userID, tenantID)
		if err != nil {
			return err
		}
		if err := entry.Deactivate(uc.clock.Now()); err != nil {
			return err
		}
		entryID = entry.ID
		return tx.Update(ctx, entry)
	})
	if err != nil {
		return err
	}

	uc.logger.WithFields(logrus.Fields{
		"entry_id":  entryID,
		"user_id":   userID,
		"tenant_id": tenantID,
	}).Info("timer discarded")
	return nil
}

// CurrentTimer returns the pair's running entry, or domain.ErrTimerNotRunning.
func (uc *TimerUseCase) CurrentTimer(ctx context.Context, userID, tenantID string) (*domain.TimeEntry, error) {
	return uc.repo.FindRunning(ctx, userID, tenantID)
}

func toAttributes(description *string, isBillable *bool, hourlyRate *float64, currency *string, tags []string, clientID, taskID *string) domain.EntryAttributes {
	return domain.EntryAttributes{
		Description: description,
		IsBillable:  isBillable,
		HourlyRate:  hourlyRate,
		Currency:    currency,
		Tags:        tags,
		ClientID:    clientID,
		TaskID:      taskID,
	}
}
