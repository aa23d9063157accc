package printer

import (
	"encoding/json"
	"io"
	"time"

	"github.com/slok/opwatch/internal/app/stats"
	"github.com/slok/opwatch/internal/model"
)

// JSONPrinter prints the information in JSON format.
type JSONPrinter struct {
	writer io.Writer
}

// NewJSONPrinter creates a new JSON printer.
func NewJSONPrinter(w io.Writer) *JSONPrinter {
	return &JSONPrinter{writer: w}
}

// statsOutput represents the statistics view output.
type statsOutput struct {
	Data      *model.Statistics `json:"data"`
	FetchedAt *time.Time        `json:"fetched_at,omitempty"`
	Fresh     bool              `json:"fresh"`
	Degraded  bool              `json:"degraded"`
	Error     string            `json:"error,omitempty"`
}

// messageOutput represents a simple message output.
type messageOutput struct {
	Message string `json:"message"`
}

// PrintTasks prints tasks in JSON format.
func (j *JSONPrinter) PrintTasks(tasks []model.Task) error {
	if tasks == nil {
		tasks = []model.Task{}
	}
	return j.encode(tasks)
}

// PrintTask prints a task in JSON format.
func (j *JSONPrinter) PrintTask(task model.Task) error {
	return j.encode(task)
}

// PrintHistory prints the scan history in JSON format.
func (j *JSONPrinter) PrintHistory(entries []model.ScanHistoryEntry) error {
	if entries == nil {
		entries = []model.ScanHistoryEntry{}
	}
	return j.encode(entries)
}

// PrintStats prints the statistics view in JSON format.
func (j *JSONPrinter) PrintStats(view stats.View) error {
	output := statsOutput{
		Data:     view.Data,
		Fresh:    view.Fresh,
		Degraded: view.Degraded,
	}
	if !view.FetchedAt.IsZero() {
		utcTime := view.FetchedAt.UTC()
		output.FetchedAt = &utcTime
	}
	if view.Err != nil {
		output.Error = view.Err.Error()
	}

	return j.encode(output)
}

// PrintNotifications prints notifications in JSON format.
func (j *JSONPrinter) PrintNotifications(notifications []model.Notification) error {
	if notifications == nil {
		notifications = []model.Notification{}
	}
	return j.encode(notifications)
}

// PrintMessage prints a simple message in JSON format.
func (j *JSONPrinter) PrintMessage(msg string) error {
	return j.encode(messageOutput{Message: msg})
}

func (j *JSONPrinter) encode(v any) error {
	enc := json.NewEncoder(j.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
