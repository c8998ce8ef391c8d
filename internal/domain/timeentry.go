package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EntryStatus represents the lifecycle status of a time entry
type EntryStatus string

const (
	EntryStatusDraft     EntryStatus = "DRAFT"
	EntryStatusSubmitted EntryStatus = "SUBMITTED"
	EntryStatusApproved  EntryStatus = "APPROVED"
	EntryStatusRejected  EntryStatus = "REJECTED"
)

// Validation bounds for a single time entry
const (
	MaxEntryDurationMinutes  = 1440
	DurationToleranceMinutes = 1
	MaxTags                  = 10
	MaxTagLength             = 50
)

// TimeEntry represents a single tracked unit of work for a user within a tenant.
// UserID and TenantID are immutable after creation; every uniqueness and overlap
// rule is scoped to that pair.
type TimeEntry struct {
	ID              string      `json:"id"`
	UserID          string      `json:"user_id"`
	TenantID        string      `json:"tenant_id"`
	Description     string      `json:"description,omitempty"`
	StartTime       time.Time   `json:"start_time"`
	EndTime         *time.Time  `json:"end_time,omitempty"`
	DurationMinutes *int        `json:"duration_minutes,omitempty"`
	IsRunning       bool        `json:"is_running"`
	IsBillable      bool        `json:"is_billable"`
	HourlyRate      *float64    `json:"hourly_rate,omitempty"`
	Currency        string      `json:"currency,omitempty"`
	Tags            []string    `json:"tags,omitempty"`
	ClientID        *string     `json:"client_id,omitempty"`
	TaskID          *string     `json:"task_id,omitempty"`
	Status          EntryStatus `json:"status"`
	RejectionNote   string      `json:"rejection_note,omitempty"`
	IsLocked        bool        `json:"is_locked"`
	LockedByID      *string     `json:"locked_by_id,omitempty"`
	LockedAt        *time.Time  `json:"locked_at,omitempty"`
	IsActive        bool        `json:"is_active"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// EntryAttributes carries the mutable descriptive fields of an entry.
// Nil pointers mean "leave unchanged" when applied to an existing entry.
type EntryAttributes struct {
	Description *string
	IsBillable  *bool
	HourlyRate  *float64
	Currency    *string
	Tags        []string
	ClientID    *string
	TaskID      *string
}

// NewRunningEntry creates a DRAFT entry with the clock ticking.
func NewRunningEntry(userID, tenantID string, attrs EntryAttributes, now time.Time) (*TimeEntry, error) {
	entry := &TimeEntry{
		ID:        generateEntryID(),
		UserID:    userID,
		TenantID:  tenantID,
		StartTime: now,
		IsRunning: true,
		Status:    EntryStatusDraft,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	entry.applyAttributes(attrs)
	if err := entry.validateTags(); err != nil {
		return nil, err
	}
	return entry, nil
}

// NewManualEntry creates a DRAFT entry with both timestamps already known.
// durationMinutes may be nil, in which case it is derived from the interval.
func NewManualEntry(userID, tenantID string, start, end time.Time, durationMinutes *int, attrs EntryAttributes, now time.Time) (*TimeEntry, error) {
	entry := &TimeEntry{
		ID:        generateEntryID(),
		UserID:    userID,
		TenantID:  tenantID,
		StartTime: start,
		EndTime:   &end,
		IsRunning: false,
		Status:    EntryStatusDraft,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	entry.applyAttributes(attrs)
	if durationMinutes != nil {
		d := *durationMinutes
		entry.DurationMinutes = &d
	} else {
		d := minutesBetween(start, end)
		entry.DurationMinutes = &d
	}
	if err := entry.ValidateInterval(); err != nil {
		return nil, err
	}
	if err := entry.validateTags(); err != nil {
		return nil, err
	}
	return entry, nil
}

// Stop closes a running entry, deriving its duration from the server clock.
func (e *TimeEntry) Stop(now time.Time, attrs EntryAttributes) error {
	if e.IsLocked {
		return ErrEntryLocked
	}
	if !e.IsRunning {
		return ErrTimerNotRunning
	}
	end := now
	e.EndTime = &end
	e.IsRunning = false
	d := minutesBetween(e.StartTime, end)
	e.DurationMinutes = &d
	e.applyAttributes(attrs)
	if err := e.validateTags(); err != nil {
		return err
	}
	e.UpdatedAt = now
	return nil
}

// UpdateTimes replaces the interval of a non-running entry. The caller is
// responsible for re-running the overlap check before persisting.
func (e *TimeEntry) UpdateTimes(start, end time.Time, durationMinutes *int, now time.Time) error {
	if e.IsLocked {
		return ErrEntryLocked
	}
	if e.IsRunning {
		return &InvalidStatusError{Current: e.Status, Attempted: "update times of a running timer"}
	}
	if e.Status != EntryStatusDraft && e.Status != EntryStatusRejected {
		return &InvalidStatusError{Current: e.Status, Attempted: "edit"}
	}
	e.StartTime = start
	e.EndTime = &end
	if durationMinutes != nil {
		d := *durationMinutes
		e.DurationMinutes = &d
	} else {
		d := minutesBetween(start, end)
		e.DurationMinutes = &d
	}
	if err := e.ValidateInterval(); err != nil {
		return err
	}
	e.UpdatedAt = now
	return nil
}

// UpdateAttributes applies descriptive changes to an unlocked entry.
func (e *TimeEntry) UpdateAttributes(attrs EntryAttributes, now time.Time) error {
	if e.IsLocked {
		return ErrEntryLocked
	}
	e.applyAttributes(attrs)
	if err := e.validateTags(); err != nil {
		return err
	}
	e.UpdatedAt = now
	return nil
}

// Submit moves a DRAFT or REJECTED entry into SUBMITTED. Resubmission after a
// rejection clears the stored note.
func (e *TimeEntry) Submit(now time.Time) error {
	if e.IsLocked {
		return ErrEntryLocked
	}
	if e.IsRunning {
		return &InvalidStatusError{Current: e.Status, Attempted: "submit a running timer"}
	}
	if e.Status != EntryStatusDraft && e.Status != EntryStatusRejected {
		return &InvalidStatusError{Current: e.Status, Attempted: "submit"}
	}
	e.Status = EntryStatusSubmitted
	e.RejectionNote = ""
	e.UpdatedAt = now
	return nil
}

// Approve moves a SUBMITTED entry into APPROVED.
func (e *TimeEntry) Approve(now time.Time) error {
	if e.IsLocked {
		return ErrEntryLocked
	}
	if e.Status != EntryStatusSubmitted {
		return &InvalidStatusError{Current: e.Status, Attempted: "approve"}
	}
	e.Status = EntryStatusApproved
	e.UpdatedAt = now
	return nil
}

// Reject moves a SUBMITTED entry into REJECTED. The note is mandatory.
func (e *TimeEntry) Reject(note string, now time.Time) error {
	if e.IsLocked {
		return ErrEntryLocked
	}
	if note == "" {
		return NewValidationError("rejection note is required")
	}
	if e.Status != EntryStatusSubmitted {
		return &InvalidStatusError{Current: e.Status, Attempted: "reject"}
	}
	e.Status = EntryStatusRejected
	e.RejectionNote = note
	e.UpdatedAt = now
	return nil
}

// Lock makes the entry immutable in any status. Only Unlock is allowed afterwards.
func (e *TimeEntry) Lock(lockedByID string, now time.Time) error {
	if e.IsLocked {
		return ErrEntryLocked
	}
	e.IsLocked = true
	e.LockedByID = &lockedByID
	lockedAt := now
	e.LockedAt = &lockedAt
	e.UpdatedAt = now
	return nil
}

// Unlock lifts an administrative lock without touching the status.
func (e *TimeEntry) Unlock(now time.Time) error {
	if !e.IsLocked {
		return NewValidationError("time entry is not locked")
	}
	e.IsLocked = false
	e.LockedByID = nil
	e.LockedAt = nil
	e.UpdatedAt = now
	return nil
}

// Deactivate soft-deletes the entry. Inactive entries are excluded from all
// uniqueness and overlap checks but retained for audit.
func (e *TimeEntry) Deactivate(now time.Time) error {
	if e.IsLocked {
		return ErrEntryLocked
	}
	e.IsActive = false
	e.IsRunning = false
	e.UpdatedAt = now
	return nil
}

// ValidateInterval checks the end-after-start rule, the duration cap and the
// consistency of an explicitly supplied duration with the interval.
func (e *TimeEntry) ValidateInterval() error {
	if e.EndTime == nil {
		return nil
	}
	if !e.StartTime.Before(*e.EndTime) {
		return NewValidationError("end time must be after start time")
	}
	derived := minutesBetween(e.StartTime, *e.EndTime)
	if e.DurationMinutes != nil {
		diff := *e.DurationMinutes - derived
		if diff < -DurationToleranceMinutes || diff > DurationToleranceMinutes {
			return NewValidationError(fmt.Sprintf("duration %d min does not match interval (%d min)", *e.DurationMinutes, derived))
		}
		if *e.DurationMinutes > MaxEntryDurationMinutes {
			return NewValidationError(fmt.Sprintf("duration exceeds %d minutes", MaxEntryDurationMinutes))
		}
	}
	if derived > MaxEntryDurationMinutes {
		return NewValidationError(fmt.Sprintf("duration exceeds %d minutes", MaxEntryDurationMinutes))
	}
	return nil
}

func (e *TimeEntry) applyAttributes(attrs EntryAttributes) {
	if attrs.Description != nil {
		e.Description = *attrs.Description
	}
	if attrs.IsBillable != nil {
		e.IsBillable = *attrs.IsBillable
	}
	if attrs.HourlyRate != nil {
		rate := *attrs.HourlyRate
		e.HourlyRate = &rate
	}
	if attrs.Currency != nil {
		e.Currency = *attrs.Currency
	}
	if attrs.Tags != nil {
		e.Tags = append([]string(nil), attrs.Tags...)
	}
	if attrs.ClientID != nil {
		id := *attrs.ClientID
		e.ClientID = &id
	}
	if attrs.TaskID != nil {
		id := *attrs.TaskID
		e.TaskID = &id
	}
}

func (e *TimeEntry) validateTags() error {
	if len(e.Tags) > MaxTags {
		return NewValidationError(fmt.Sprintf("at most %d tags are allowed", MaxTags))
	}
	for _, tag := range e.Tags {
		if tag == "" {
			return NewValidationError("tags must not be empty")
		}
		if len(tag) > MaxTagLength {
			return NewValidationError(fmt.Sprintf("tag exceeds %d characters", MaxTagLength))
		}
	}
	return nil
}

// Overlaps reports whether the half-open intervals [s1,e1) and [s2,e2)
// share any instant.
func Overlaps(s1, e1, s2, e2 time.Time) bool {
	return s1.Before(e2) && s2.Before(e1)
}

func minutesBetween(start, end time.Time) int {
	return int(end.Sub(start).Round(time.Minute) / time.Minute)
}

func generateEntryID() string {
	return "entry_" + uuid.NewString()
}
