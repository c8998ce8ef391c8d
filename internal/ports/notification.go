package ports

import (
	"context"

	"github.com/tempora/tempora/internal/domain"
)

// NotificationService dispatches approval-workflow notifications. It is
// invoked by the transport layer after a successful transition, never by the
// lifecycle core itself.
type NotificationService interface {
	// NotifyEntryApproved sends notification when an entry is approved
	NotifyEntryApproved(ctx context.Context, entry *domain.TimeEntry) error

	// NotifyEntryRejected sends notification when an entry is rejected
	NotifyEntryRejected(ctx context.Context, entry *domain.TimeEntry, note string) error
}
