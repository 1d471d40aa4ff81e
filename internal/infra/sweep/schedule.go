package sweep

import (
	"context"
	"errors"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
)

const ScheduleID = "docsign-sweep"

type ScheduleConfig struct {
	TaskQueue  string
	Interval   time.Duration
	NoticeDays int
}

// Register wires the sweep workflow and activities into w.
func Register(w worker.Registry, acts *Activities) {
	w.RegisterWorkflowWithOptions(SweepWorkflow, workflow.RegisterOptions{Name: WorkflowName})
	w.RegisterActivityWithOptions(acts.ExpireOverdue, activity.RegisterOptions{Name: ExpireOverdueActivityName})
	w.RegisterActivityWithOptions(acts.NotifyExpiring, activity.RegisterOptions{Name: NotifyExpiringActivityName})
}

// EnsureSchedule creates the interval schedule. An existing schedule is left as is.
func EnsureSchedule(ctx context.Context, schedules client.ScheduleClient, cfg ScheduleConfig) error {
	if cfg.TaskQueue == "" {
		return errors.New("task queue is required")
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	_, err := schedules.Create(ctx, client.ScheduleOptions{
		ID: ScheduleID,
		Spec: client.ScheduleSpec{
			Intervals: []client.ScheduleIntervalSpec{{Every: interval}},
		},
		Action: &client.ScheduleWorkflowAction{
			ID:        ScheduleID + "-run",
			Workflow:  WorkflowName,
			Args:      []interface{}{SweepInput{NoticeDays: cfg.NoticeDays}},
			TaskQueue: cfg.TaskQueue,
		},
	})
	if errors.Is(err, temporal.ErrScheduleAlreadyRunning) {
		return nil
	}
	return err
}
