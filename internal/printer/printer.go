package printer

import (
	"github.com/slok/opwatch/internal/app/stats"
	"github.com/slok/opwatch/internal/model"
)

// Printer knows how to print the tracked operations information in different formats.
type Printer interface {
	PrintTasks(tasks []model.Task) error
	PrintTask(task model.Task) error
	PrintHistory(entries []model.ScanHistoryEntry) error
	PrintStats(view stats.View) error
	PrintNotifications(notifications []model.Notification) error
	PrintMessage(msg string) error
}
