package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sh1vu7/secreteshare/internal/scheduler"
)

// NewTasksCommand creates the tasks command group.
func NewTasksCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Inspect and run scheduled tasks",
	}
	cmd.AddCommand(newTasksListCommand(rootOpts))
	cmd.AddCommand(newTasksRunCommand(rootOpts))
	return cmd
}

// TaskList holds every pending task.
type TaskList struct {
	Tasks []scheduler.Task `json:"tasks"`
}

func (l TaskList) String() string {
	if len(l.Tasks) == 0 {
		return "No pending tasks"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d pending task(s)\n", len(l.Tasks))
	for _, t := range l.Tasks {
		fmt.Fprintf(&b, "  %s  %-14s %s", t.RunAt.UTC().Format(timeLayout), t.Kind, t.Key)
		if t.Attempts > 0 {
			fmt.Fprintf(&b, "  attempts=%d last_error=%q", t.Attempts, t.LastError)
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

func newTasksListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List pending tasks ordered by run time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withApp(cmd, func(ctx context.Context, a *app, out *OutputFormatter) error {
				tasks, err := a.store.ListTasks(ctx)
				if err != nil {
					return out.Fail("listing tasks failed", err)
				}
				if tasks == nil {
					tasks = []scheduler.Task{}
				}
				return out.Success(TaskList{Tasks: tasks})
			})
		},
	}
}

// TaskRunResult reports a one-shot scheduler and sweep pass.
type TaskRunResult struct {
	TasksRun      int `json:"tasks_run"`
	SharesExpired int `json:"shares_expired"`
}

func (r TaskRunResult) String() string {
	return fmt.Sprintf("✓ Ran %d due task(s), expired %d overdue share(s)", r.TasksRun, r.SharesExpired)
}

func newTasksRunCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run due tasks and the reconciliation sweep once, then exit",
		Long: `Executes every task that is due now, then expires active shares whose
expiry has passed. Suitable for an external cron when serve is not running.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withApp(cmd, func(ctx context.Context, a *app, out *OutputFormatter) error {
				ran, err := a.scheduler.RunDue(ctx)
				if err != nil {
					return out.Fail("running due tasks failed", err)
				}
				expired, err := a.engine.ExpireOverdue(ctx)
				if err != nil {
					return out.Fail("sweep failed", err)
				}
				return out.Success(TaskRunResult{TasksRun: ran, SharesExpired: expired})
			})
		},
	}
}
