package sweep

import (
	"context"
	"errors"

	"go.temporal.io/sdk/activity"
)

const (
	ExpireOverdueActivityName  = "ExpireOverdueSignatureRequests"
	NotifyExpiringActivityName = "NotifyExpiringCertificates"
)

type WorkflowExpirer interface {
	ExpireOverdueSignatureRequests(ctx context.Context) (int, error)
}

type ExpiryNotifier interface {
	NotifyExpiringCertificates(ctx context.Context, daysUntilExpiry int) (int, error)
}

type Activities struct {
	Workflows    WorkflowExpirer
	Certificates ExpiryNotifier
}

type NotifyInput struct {
	DaysUntilExpiry int
}

func NewActivities(workflows WorkflowExpirer, certificates ExpiryNotifier) *Activities {
	return &Activities{Workflows: workflows, Certificates: certificates}
}

// ExpireOverdue is safe to retry: already expired workflows are skipped.
// A partial failure still reports how many workflows were expired.
func (a *Activities) ExpireOverdue(ctx context.Context) (int, error) {
	if a == nil || a.Workflows == nil {
		return 0, errors.New("workflow expirer not configured")
	}
	expired, err := a.Workflows.ExpireOverdueSignatureRequests(ctx)
	activity.GetLogger(ctx).Info("expired overdue signature requests", "expired", expired)
	return expired, err
}

func (a *Activities) NotifyExpiring(ctx context.Context, input NotifyInput) (int, error) {
	if a == nil || a.Certificates == nil {
		return 0, errors.New("expiry notifier not configured")
	}
	sent, err := a.Certificates.NotifyExpiringCertificates(ctx, input.DaysUntilExpiry)
	activity.GetLogger(ctx).Info("sent certificate expiry notices", "days", input.DaysUntilExpiry, "sent", sent)
	return sent, err
}
