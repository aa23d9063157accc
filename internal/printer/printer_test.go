package printer_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/opwatch/internal/app/stats"
	"github.com/slok/opwatch/internal/model"
	"github.com/slok/opwatch/internal/printer"
)

var (
	_ printer.Printer = &printer.TablePrinter{}
	_ printer.Printer = &printer.JSONPrinter{}
)

func taskFixture() model.Task {
	startedAt := time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC)
	completedAt := startedAt.Add(90 * time.Second)
	return model.Task{
		ID:          "journal_ventes",
		Kind:        model.TaskKindScan,
		State:       model.TaskStateSuccess,
		Progress:    100,
		StartedAt:   startedAt,
		CompletedAt: &completedAt,
		Result:      &model.TaskResult{AnomaliesFound: 4, Details: map[string]any{"duration_ms": 1200}},
	}
}

func TestTablePrinterPrintTask(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewTablePrinter(&buf)

	err := p.PrintTask(taskFixture())
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "ID:         journal_ventes")
	assert.Contains(t, out, "State:      success")
	assert.Contains(t, out, "Elapsed:    1m30s")
	assert.Contains(t, out, "Anomalies:  4")
	assert.Contains(t, out, "  duration_ms: 1200")
}

func TestTablePrinterPrintTasks(t *testing.T) {
	failed := taskFixture()
	failed.ID = "grand_livre"
	failed.State = model.TaskStateError
	failed.Error = "model locked"
	failed.Result = nil

	var buf bytes.Buffer
	p := printer.NewTablePrinter(&buf)
	require.NoError(t, p.PrintTasks([]model.Task{taskFixture(), failed}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.Contains(t, lines[1], "4 anomalies")
	assert.Contains(t, lines[2], "model locked")
}

func TestTablePrinterPrintStats(t *testing.T) {
	tests := map[string]struct {
		view   stats.View
		expOut []string
	}{
		"without data the no data state should be shown": {
			view:   stats.View{Err: model.ErrUnavailable},
			expOut: []string{"No data, check connection", "Error:      unavailable"},
		},
		"fresh data should be shown": {
			view: stats.View{
				Data:      &model.Statistics{TotalAnomalies: 12, OpenAnomalies: 4, ScannedModels: 2, AnomaliesByModel: map[string]int{"journal_ventes": 8}},
				FetchedAt: time.Now(),
				Fresh:     true,
			},
			expOut: []string{"(fresh)", "Anomalies:  12 (4 open)", "Models:     2 scanned", "journal_ventes"},
		},
		"degraded data should be flagged": {
			view: stats.View{
				Data:      &model.Statistics{TotalAnomalies: 1},
				FetchedAt: time.Now().Add(-10 * time.Minute),
				Degraded:  true,
				Err:       errors.New("connection refused"),
			},
			expOut: []string{"(stale, showing cached data)", "Error:      connection refused"},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			p := printer.NewTablePrinter(&buf)
			require.NoError(t, p.PrintStats(test.view))

			for _, exp := range test.expOut {
				assert.Contains(t, buf.String(), exp)
			}
		})
	}
}

func TestTablePrinterPrintHistory(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewTablePrinter(&buf)

	err := p.PrintHistory([]model.ScanHistoryEntry{
		{SubjectID: "journal_ventes", TotalScans: 2, TotalAnomalies: 8, AnomaliesFound: 5, LastScan: time.Now()},
		{SubjectID: "grand_livre", FailedScans: 1},
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "SUBJECT")
	assert.Contains(t, out, "never")
}

func TestTablePrinterPrintNotifications(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewTablePrinter(&buf)

	err := p.PrintNotifications([]model.Notification{
		{ID: 1, Message: "Scan of x completed", Severity: model.SeveritySuccess},
		{ID: 2, Message: "Scan of y failed", Severity: model.SeverityError},
	})
	require.NoError(t, err)
	assert.Equal(t, "[SUCCESS] Scan of x completed\n[ERROR] Scan of y failed\n", buf.String())
}

func TestJSONPrinterPrintTask(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewJSONPrinter(&buf)

	err := p.PrintTask(taskFixture())
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"id": "journal_ventes"`)
	assert.Contains(t, out, `"state": "success"`)
	assert.Contains(t, out, `"anomalies_found": 4`)
}

func TestJSONPrinterPrintStats(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewJSONPrinter(&buf)

	err := p.PrintStats(stats.View{Err: model.ErrNoData})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"data": null`)
	assert.Contains(t, out, `"error": "no data, check connection"`)
	assert.NotContains(t, out, "fetched_at")
}

func TestJSONPrinterEmptyLists(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewJSONPrinter(&buf)

	require.NoError(t, p.PrintTasks(nil))
	assert.Equal(t, "[]\n", buf.String())
}

func TestTablePrinterPrintMessage(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewTablePrinter(&buf)

	err := p.PrintMessage("ok")
	require.NoError(t, err)
	assert.Equal(t, "ok", strings.TrimSpace(buf.String()))
}
