package printer

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/slok/opwatch/internal/app/stats"
	"github.com/slok/opwatch/internal/model"
)

// TablePrinter prints the information in a human friendly table format.
type TablePrinter struct {
	writer io.Writer
}

// NewTablePrinter creates a new table printer.
func NewTablePrinter(w io.Writer) *TablePrinter {
	return &TablePrinter{writer: w}
}

// PrintTasks prints tasks in a table format.
func (t *TablePrinter) PrintTasks(tasks []model.Task) error {
	if len(tasks) == 0 {
		fmt.Fprintln(t.writer, "No tracked tasks")
		return nil
	}

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "ID\tKIND\tSTATE\tPROGRESS\tSTARTED\tDETAIL")
	for _, task := range tasks {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d%%\t%s\t%s\n", task.ID, task.Kind, task.State, task.Progress, TimeAgo(task.StartedAt), taskDetail(task))
	}

	return nil
}

// PrintTask prints the detailed task status.
func (t *TablePrinter) PrintTask(task model.Task) error {
	fmt.Fprintf(t.writer, "ID:         %s\n", task.ID)
	fmt.Fprintf(t.writer, "Kind:       %s\n", task.Kind)
	fmt.Fprintf(t.writer, "State:      %s\n", task.State)
	fmt.Fprintf(t.writer, "Progress:   %d%%\n", task.Progress)
	fmt.Fprintf(t.writer, "Started:    %s\n", FormatTimestamp(task.StartedAt))

	if task.CompletedAt != nil {
		fmt.Fprintf(t.writer, "Completed:  %s\n", FormatTimestamp(*task.CompletedAt))
		fmt.Fprintf(t.writer, "Elapsed:    %s\n", FormatElapsed(task.StartedAt, task.CompletedAt))
	}
	if task.Message != "" {
		fmt.Fprintf(t.writer, "Step:       %s\n", task.Message)
	}
	if task.Error != "" {
		fmt.Fprintf(t.writer, "Error:      %s\n", task.Error)
	}
	if task.Result != nil {
		if task.Kind == model.TaskKindScan {
			fmt.Fprintf(t.writer, "Anomalies:  %d\n", task.Result.AnomaliesFound)
		}
		for _, k := range slices.Sorted(maps.Keys(task.Result.Details)) {
			fmt.Fprintf(t.writer, "  %s: %v\n", k, task.Result.Details[k])
		}
	}

	return nil
}

// PrintHistory prints the scan history in a table format.
func (t *TablePrinter) PrintHistory(entries []model.ScanHistoryEntry) error {
	if len(entries) == 0 {
		fmt.Fprintln(t.writer, "No scans yet")
		return nil
	}

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "SUBJECT\tSCANS\tLAST ANOMALIES\tTOTAL ANOMALIES\tFAILED\tLAST SCAN")
	for _, e := range entries {
		lastScan := "never"
		if !e.LastScan.IsZero() {
			lastScan = TimeAgo(e.LastScan)
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%s\n", e.SubjectID, e.TotalScans, e.AnomaliesFound, e.TotalAnomalies, e.FailedScans, lastScan)
	}

	return nil
}

// PrintStats prints the statistics view.
func (t *TablePrinter) PrintStats(view stats.View) error {
	if view.Data == nil {
		fmt.Fprintln(t.writer, "No data, check connection")
		if view.Err != nil {
			fmt.Fprintf(t.writer, "Error:      %s\n", view.Err)
		}
		return nil
	}

	freshness := "fresh"
	if !view.Fresh {
		freshness = "stale"
	}
	if view.Degraded {
		freshness += ", showing cached data"
	}

	s := view.Data
	fmt.Fprintf(t.writer, "Fetched:    %s (%s)\n", TimeAgo(view.FetchedAt), freshness)
	if view.Degraded && view.Err != nil {
		fmt.Fprintf(t.writer, "Error:      %s\n", view.Err)
	}
	fmt.Fprintf(t.writer, "Anomalies:  %d (%d open)\n", s.TotalAnomalies, s.OpenAnomalies)
	fmt.Fprintf(t.writer, "Models:     %d scanned\n", s.ScannedModels)

	if len(s.AnomaliesByModel) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "MODEL\tANOMALIES")
	for _, m := range slices.Sorted(maps.Keys(s.AnomaliesByModel)) {
		fmt.Fprintf(tw, "%s\t%d\n", m, s.AnomaliesByModel[m])
	}

	return nil
}

// PrintNotifications prints notifications one per line.
func (t *TablePrinter) PrintNotifications(notifications []model.Notification) error {
	for _, n := range notifications {
		fmt.Fprintf(t.writer, "[%s] %s\n", strings.ToUpper(string(n.Severity)), n.Message)
	}
	return nil
}

// PrintMessage prints a simple message.
func (t *TablePrinter) PrintMessage(msg string) error {
	fmt.Fprintln(t.writer, msg)
	return nil
}

func taskDetail(t model.Task) string {
	switch {
	case t.State == model.TaskStateError:
		return t.Error
	case t.State == model.TaskStateSuccess && t.Kind == model.TaskKindScan && t.Result != nil:
		return fmt.Sprintf("%d anomalies", t.Result.AnomaliesFound)
	default:
		return t.Message
	}
}
