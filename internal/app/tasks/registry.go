package tasks

import "context"

// ScheduledTaskFunc is the signature of every scheduled task. The context
// provided by the scheduler should be respected for cancellation.
type ScheduledTaskFunc func(ctx context.Context) error

// Task names, matching the keys of the scheduler.tasks config section.
const (
	MatchSync      = "match_sync"
	InactiveCheck  = "inactive_check"
	SQLMaintenance = "sql_maintenance"
)

// RegisterAllTasks builds every task keyed by its config name.
func RegisterAllTasks(deps TaskDeps) map[string]ScheduledTaskFunc {
	tasks := map[string]ScheduledTaskFunc{
		MatchSync:      newMatchSyncTask(deps),
		InactiveCheck:  newInactiveCheckTask(deps),
		SQLMaintenance: newSQLMaintenanceTask(deps),
	}

	deps.Logger.Info("Initialized scheduled tasks", "count", len(tasks))
	return tasks
}
