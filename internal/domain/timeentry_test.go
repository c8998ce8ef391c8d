package domain

import (
	"errors"
	"testing"
	"time"
)

var testNow = time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

func newDraftEntry(t *testing.T) *TimeEntry {
	t.Helper()
	start := testNow.Add(-2 * time.Hour)
	end := testNow.Add(-1 * time.Hour)
	entry, err := NewManualEntry("user1", "tenant1", start, end, nil, EntryAttributes{}, testNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return entry
}

func TestNewRunningEntry(t *testing.T) {
	entry, err := NewRunningEntry("user1", "tenant1", EntryAttributes{}, testNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !entry.IsRunning {
		t.Error("expected entry to be running")
	}
	if entry.EndTime != nil {
		t.Errorf("expected no end time, got %v", entry.EndTime)
	}
	if entry.Status != EntryStatusDraft {
		t.Errorf("expected status %s, got %s", EntryStatusDraft, entry.Status)
	}
	if !entry.IsActive {
		t.Error("expected entry to be active")
	}
	if entry.ID == "" {
		t.Error("expected entry to have an id")
	}
}

func TestNewManualEntry_DerivesDuration(t *testing.T) {
	start := testNow.Add(-90 * time.Minute)
	end := testNow

	entry, err := NewManualEntry("user1", "tenant1", start, end, nil, EntryAttributes{}, testNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if entry.DurationMinutes == nil || *entry.DurationMinutes != 90 {
		t.Errorf("expected duration 90, got %v", entry.DurationMinutes)
	}
	if entry.IsRunning {
		t.Error("expected manual entry not to be running")
	}
}

func TestNewManualEntry_RejectsEndBeforeStart(t *testing.T) {
	start := testNow
	end := testNow.Add(-time.Hour)

	_, err := NewManualEntry("user1", "tenant1", start, end, nil, EntryAttributes{}, testNow)
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestNewManualEntry_RejectsOverlongDuration(t *testing.T) {
	start := testNow.Add(-25 * time.Hour)
	end := testNow

	_, err := NewManualEntry("user1", "tenant1", start, end, nil, EntryAttributes{}, testNow)
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected validation error for duration > 1440 min, got %v", err)
	}
}

func TestNewManualEntry_RejectsInconsistentDuration(t *testing.T) {
	start := testNow.Add(-time.Hour)
	end := testNow
	supplied := 120 // interval is 60 min

	_, err := NewManualEntry("user1", "tenant1", start, end, &supplied, EntryAttributes{}, testNow)
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected validation error for inconsistent duration, got %v", err)
	}
}

func TestNewManualEntry_ToleratesMinuteRounding(t *testing.T) {
	start := testNow.Add(-time.Hour)
	end := testNow
	supplied := 61

	entry, err := NewManualEntry("user1", "tenant1", start, end, &supplied, EntryAttributes{}, testNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *entry.DurationMinutes != 61 {
		t.Errorf("expected supplied duration to be kept, got %d", *entry.DurationMinutes)
	}
}

func TestTimeEntry_Stop(t *testing.T) {
	entry, _ := NewRunningEntry("user1", "tenant1", EntryAttributes{}, testNow)

	stopAt := testNow.Add(45 * time.Minute)
	if err := entry.Stop(stopAt, EntryAttributes{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if entry.IsRunning {
		t.Error("expected entry to stop running")
	}
	if entry.EndTime == nil || !entry.EndTime.Equal(stopAt) {
		t.Errorf("expected end time %v, got %v", stopAt, entry.EndTime)
	}
	if entry.DurationMinutes == nil || *entry.DurationMinutes != 45 {
		t.Errorf("expected duration 45, got %v", entry.DurationMinutes)
	}
}

func TestTimeEntry_StopAlreadyStopped(t *testing.T) {
	entry := newDraftEntry(t)

	err := entry.Stop(testNow, EntryAttributes{})
	if err != ErrTimerNotRunning {
		t.Errorf("expected ErrTimerNotRunning, got %v", err)
	}
}

func TestTimeEntry_SubmitApprove(t *testing.T) {
	entry := newDraftEntry(t)

	if err := entry.Submit(testNow); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.Status != EntryStatusSubmitted {
		t.Errorf("expected status %s, got %s", EntryStatusSubmitted, entry.Status)
	}

	if err := entry.Approve(testNow); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.Status != EntryStatusApproved {
		t.Errorf("expected status %s, got %s", EntryStatusApproved, entry.Status)
	}
}

func TestTimeEntry_SubmitRunningTimer(t *testing.T) {
	entry, _ := NewRunningEntry("user1", "tenant1", EntryAttributes{}, testNow)

	err := entry.Submit(testNow)
	var statusErr *InvalidStatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected InvalidStatusError, got %v", err)
	}
}

func TestTimeEntry_ApproveFromDraft(t *testing.T) {
	entry := newDraftEntry(t)

	err := entry.Approve(testNow)
	var statusErr *InvalidStatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected InvalidStatusError, got %v", err)
	}
	if statusErr.Current != EntryStatusDraft {
		t.Errorf("expected current status %s, got %s", EntryStatusDraft, statusErr.Current)
	}
	if statusErr.Attempted != "approve" {
		t.Errorf("expected attempted approve, got %s", statusErr.Attempted)
	}
}

func TestTimeEntry_RejectRequiresNote(t *testing.T) {
	entry := newDraftEntry(t)
	entry.Status = EntryStatusSubmitted

	err := entry.Reject("", testNow)
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected validation error for empty note, got %v", err)
	}
}

func TestTimeEntry_RejectResubmitClearsNote(t *testing.T) {
	entry := newDraftEntry(t)
	entry.Status = EntryStatusSubmitted

	if err := entry.Reject("missing task reference", testNow); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.Status != EntryStatusRejected {
		t.Errorf("expected status %s, got %s", EntryStatusRejected, entry.Status)
	}
	if entry.RejectionNote != "missing task reference" {
		t.Errorf("expected note to be stored, got %q", entry.RejectionNote)
	}

	if err := entry.Submit(testNow); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.RejectionNote != "" {
		t.Errorf("expected note to be cleared on resubmission, got %q", entry.RejectionNote)
	}

	if err := entry.Approve(testNow); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestTimeEntry_RejectedCannotBeApprovedDirectly(t *testing.T) {
	entry := newDraftEntry(t)
	entry.Status = EntryStatusRejected

	err := entry.Approve(testNow)
	var statusErr *InvalidStatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected InvalidStatusError, got %v", err)
	}
}

func TestTimeEntry_LockBlocksEverythingExceptUnlock(t *testing.T) {
	entry := newDraftEntry(t)
	if err := entry.Lock("admin1", testNow); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.Status != EntryStatusDraft {
		t.Errorf("lock must not change status, got %s", entry.Status)
	}
	if entry.LockedByID == nil || *entry.LockedByID != "admin1" {
		t.Error("expected locking user to be recorded")
	}

	if err := entry.Submit(testNow); err != ErrEntryLocked {
		t.Errorf("expected ErrEntryLocked on submit, got %v", err)
	}
	if err := entry.Approve(testNow); err != ErrEntryLocked {
		t.Errorf("expected ErrEntryLocked on approve, got %v", err)
	}
	if err := entry.UpdateAttributes(EntryAttributes{}, testNow); err != ErrEntryLocked {
		t.Errorf("expected ErrEntryLocked on update, got %v", err)
	}
	if err := entry.Deactivate(testNow); err != ErrEntryLocked {
		t.Errorf("expected ErrEntryLocked on delete, got %v", err)
	}
	if err := entry.Lock("admin2", testNow); err != ErrEntryLocked {
		t.Errorf("expected ErrEntryLocked on double lock, got %v", err)
	}

	if err := entry.Unlock(testNow); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.IsLocked || entry.LockedByID != nil || entry.LockedAt != nil {
		t.Error("expected lock fields to be cleared")
	}
	if err := entry.Submit(testNow); err != nil {
		t.Errorf("expected submit to work after unlock, got %v", err)
	}
}

func TestTimeEntry_UpdateTimesOnlyInEditableStatus(t *testing.T) {
	entry := newDraftEntry(t)
	entry.Status = EntryStatusApproved

	err := entry.UpdateTimes(testNow.Add(-time.Hour), testNow, nil, testNow)
	var statusErr *InvalidStatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected InvalidStatusError, got %v", err)
	}
}

func TestTimeEntry_TagLimits(t *testing.T) {
	tags := make([]string, MaxTags+1)
	for i := range tags {
		tags[i] = "tag"
	}

	_, err := NewRunningEntry("user1", "tenant1", EntryAttributes{Tags: tags}, testNow)
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected validation error for too many tags, got %v", err)
	}
}

func TestOverlaps(t *testing.T) {
	base := testNow
	tests := []struct {
		name           string
		s1, e1, s2, e2 time.Time
		want           bool
	}{
		{"identical", base, base.Add(time.Hour), base, base.Add(time.Hour), true},
		{"contained", base, base.Add(time.Hour), base.Add(10 * time.Minute), base.Add(20 * time.Minute), true},
		{"partial", base, base.Add(time.Hour), base.Add(30 * time.Minute), base.Add(90 * time.Minute), true},
		{"adjacent", base, base.Add(time.Hour), base.Add(time.Hour), base.Add(2 * time.Hour), false},
		{"disjoint", base, base.Add(time.Hour), base.Add(2 * time.Hour), base.Add(3 * time.Hour), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Overlaps(tt.s1, tt.e1, tt.s2, tt.e2); got != tt.want {
				t.Errorf("Overlaps() = %v, want %v", got, tt.want)
			}
			// symmetry
			if got := Overlaps(tt.s2, tt.e2, tt.s1, tt.e1); got != tt.want {
				t.Errorf("Overlaps() reversed = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTimeEntry_Deactivate(t *testing.T) {
	entry, _ := NewRunningEntry("user1", "tenant1", EntryAttributes{}, testNow)

	if err := entry.Deactivate(testNow); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.IsActive {
		t.Error("expected entry to be inactive")
	}
	if entry.IsRunning {
		t.Error("expected a discarded timer to stop running")
	}
}
