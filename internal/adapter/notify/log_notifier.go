package notify

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/tempora/tempora/internal/domain"
	"github.com/tempora/tempora/internal/ports"
)

// LogNotifier is the default NotificationService: it records the event and
// delivers nothing. Real delivery (email, push) hangs off this port.
type LogNotifier struct {
	logger *logrus.Logger
}

// NewLogNotifier creates a logging notifier
func NewLogNotifier(logger *logrus.Logger) ports.NotificationService {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) NotifyEntryApproved(ctx context.Context, entry *domain.TimeEntry) error {
	n.logger.WithFields(logrus.Fields{
		"entry_id":  entry.ID,
		"user_id":   entry.UserID,
		"tenant_id": entry.TenantID,
	}).Info("approval notification dispatched")
	return nil
}

func (n *LogNotifier) NotifyEntryRejected(ctx context.Context, entry *domain.TimeEntry, note string) error {
	n.logger.WithFields(logrus.Fields{
		"entry_id":  entry.ID,
		"user_id":   entry.UserID,
		"tenant_id": entry.TenantID,
		"note":      note,
	}).Info("rejection notification dispatched")
	return nil
}
