// Package sweep runs the periodic expiry sweep as a Temporal workflow.
package sweep

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const WorkflowName = "SweepWorkflow"

type SweepInput struct {
	// NoticeDays of zero skips expiring-certificate notices.
	NoticeDays int
}

type SweepResult struct {
	Expired      int
	Notified     int
	NoticeFailed bool
}

// SweepWorkflow expires overdue signature requests, then sends expiry notices.
// A failed notice run does not fail the sweep.
func SweepWorkflow(ctx workflow.Context, input SweepInput) (SweepResult, error) {
	logger := workflow.GetLogger(ctx)
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    5,
		},
	})

	var result SweepResult
	if err := workflow.ExecuteActivity(ctx, ExpireOverdueActivityName).Get(ctx, &result.Expired); err != nil {
		return result, err
	}
	if input.NoticeDays <= 0 {
		return result, nil
	}
	err := workflow.ExecuteActivity(ctx, NotifyExpiringActivityName, NotifyInput{DaysUntilExpiry: input.NoticeDays}).Get(ctx, &result.Notified)
	if err != nil {
		logger.Error("expiry notice activity failed", "error", err)
		result.NoticeFailed = true
	}
	return result, nil
}
