package httpclient_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/opwatch/internal/backoffice/httpclient"
	"github.com/slok/opwatch/internal/model"
)

func newTestClient(t *testing.T, h http.Handler) *httpclient.Client {
	t.Helper()

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := httpclient.NewClient(httpclient.ClientConfig{
		BaseURL:    srv.URL,
		Token:      "s3cr3t",
		MaxRetries: 2,
		RetryBase:  time.Millisecond,
	})
	require.NoError(t, err)

	return c
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewClientConfig(t *testing.T) {
	tests := map[string]struct {
		baseURL string
		expErr  bool
	}{
		"A missing base URL should fail.":   {baseURL: "", expErr: true},
		"A relative base URL should fail.":  {baseURL: "/api", expErr: true},
		"An absolute base URL should work.": {baseURL: "http://127.0.0.1:8000/", expErr: false},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := httpclient.NewClient(httpclient.ClientConfig{BaseURL: tc.baseURL})
			if tc.expErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestClientTriggerScan(t *testing.T) {
	tests := map[string]struct {
		handler   http.HandlerFunc
		expResult *model.ScanResult
		expErr    error
		expErrMsg string
	}{
		"A successful scan should return the anomalies and the rest of the payload.": {
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, 200, map[string]any{"anomalies_found": 3, "duration_ms": 120})
			},
			expResult: &model.ScanResult{AnomaliesFound: 3, Details: map[string]any{"duration_ms": float64(120)}},
		},
		"Unauthorized responses should be classified.": {
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, 401, map[string]any{"detail": "token expired"})
			},
			expErr:    model.ErrUnauthorized,
			expErrMsg: "token expired",
		},
		"Forbidden responses should be classified as unauthorized.": {
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, 403, map[string]any{"error": "forbidden"})
			},
			expErr: model.ErrUnauthorized,
		},
		"Server errors should be classified as unavailable.": {
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, 500, map[string]any{"message": "db down"})
			},
			expErr:    model.ErrUnavailable,
			expErrMsg: "db down",
		},
		"Other client errors should carry the server message.": {
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, 422, map[string]any{"detail": "model is archived"})
			},
			expErrMsg: "model is archived",
		},
		"Plain text error bodies should be used as message.": {
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(400)
				_, _ = io.WriteString(w, "bad subject")
			},
			expErrMsg: "bad subject",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			var gotPath, gotAuth, gotMethod string
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotPath, gotAuth, gotMethod = r.URL.EscapedPath(), r.Header.Get("Authorization"), r.Method
				tc.handler(w, r)
			}))

			res, err := c.TriggerScan(context.Background(), "journal_ventes")

			assert.Equal("/api/models/journal_ventes/scan", gotPath)
			assert.Equal("Bearer s3cr3t", gotAuth)
			assert.Equal(http.MethodPost, gotMethod)

			if tc.expErr != nil || tc.expErrMsg != "" {
				require.Error(t, err)
				if tc.expErr != nil {
					assert.ErrorIs(err, tc.expErr)
				}
				assert.Contains(err.Error(), tc.expErrMsg)
				return
			}
			require.NoError(t, err)
			assert.Equal(tc.expResult, res)
		})
	}
}

func TestClientTriggerScanIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(503)
	}))

	_, err := c.TriggerScan(context.Background(), "m1")
	assert.ErrorIs(t, err, model.ErrUnavailable)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClientNoResponseIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := httpclient.NewClient(httpclient.ClientConfig{BaseURL: url, MaxRetries: -1})
	require.NoError(t, err)

	_, err = c.Statistics(context.Background())
	assert.ErrorIs(t, err, model.ErrUnavailable)
}

func TestClientStartJob(t *testing.T) {
	tests := map[string]struct {
		kind    model.TaskKind
		req     model.JobRequest
		resp    map[string]any
		expPath string
		expBody map[string]any
		expID   string
		expErr  bool
	}{
		"Cleanup jobs should be started on the cleanup endpoint.": {
			kind:    model.TaskKindCleanup,
			req:     model.JobRequest{SubjectID: "journal_ventes", DryRun: true},
			resp:    map[string]any{"job_id": "job-1"},
			expPath: "/api/cleanup",
			expBody: map[string]any{"subject_id": "journal_ventes", "dry_run": true},
			expID:   "job-1",
		},
		"Validation jobs should be started on the validation endpoint.": {
			kind:    model.TaskKindValidation,
			resp:    map[string]any{"job_id": "job-2"},
			expPath: "/api/validation",
			expBody: map[string]any{},
			expID:   "job-2",
		},
		"A response without job id should fail.": {
			kind:    model.TaskKindCleanup,
			resp:    map[string]any{},
			expPath: "/api/cleanup",
			expBody: map[string]any{},
			expErr:  true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			var gotPath string
			var gotBody map[string]any
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotPath = r.URL.Path
				_ = json.NewDecoder(r.Body).Decode(&gotBody)
				writeJSON(w, 202, tc.resp)
			}))

			id, err := c.StartJob(context.Background(), tc.kind, tc.req)

			assert.Equal(tc.expPath, gotPath)
			assert.Equal(tc.expBody, gotBody)
			if tc.expErr {
				assert.Error(err)
				return
			}
			require.NoError(t, err)
			assert.Equal(tc.expID, id)
		})
	}
}

func TestClientStartJobInvalidKind(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	}))

	_, err := c.StartJob(context.Background(), model.TaskKindScan, model.JobRequest{})
	assert.ErrorIs(t, err, model.ErrNotValid)
}

func TestClientJobStatus(t *testing.T) {
	tests := map[string]struct {
		responses []func(w http.ResponseWriter)
		expStatus *model.JobStatus
		expErr    error
		expCalls  int32
	}{
		"A status should be returned.": {
			responses: []func(w http.ResponseWriter){
				func(w http.ResponseWriter) {
					writeJSON(w, 200, map[string]any{"status": "processing", "progress": 40, "step_name": "dedup"})
				},
			},
			expStatus: &model.JobStatus{Status: model.JobStatusProcessing, Progress: 40, StepName: "dedup"},
			expCalls:  1,
		},
		"Transient failures should be retried.": {
			responses: []func(w http.ResponseWriter){
				func(w http.ResponseWriter) { w.WriteHeader(502) },
				func(w http.ResponseWriter) { w.WriteHeader(503) },
				func(w http.ResponseWriter) {
					writeJSON(w, 200, map[string]any{"status": "complete", "progress": 100, "result": map[string]any{"removed": 4}})
				},
			},
			expStatus: &model.JobStatus{Status: model.JobStatusComplete, Progress: 100, Result: map[string]any{"removed": float64(4)}},
			expCalls:  3,
		},
		"Retries should be bounded.": {
			responses: []func(w http.ResponseWriter){
				func(w http.ResponseWriter) { w.WriteHeader(500) },
			},
			expErr:   model.ErrUnavailable,
			expCalls: 3,
		},
		"Unauthorized should not be retried.": {
			responses: []func(w http.ResponseWriter){
				func(w http.ResponseWriter) { w.WriteHeader(401) },
			},
			expErr:   model.ErrUnauthorized,
			expCalls: 1,
		},
		"Unknown statuses should be rejected.": {
			responses: []func(w http.ResponseWriter){
				func(w http.ResponseWriter) { writeJSON(w, 200, map[string]any{"status": "paused"}) },
			},
			expErr:   model.ErrNotValid,
			expCalls: 1,
		},
		"Missing jobs should be not found.": {
			responses: []func(w http.ResponseWriter){
				func(w http.ResponseWriter) { writeJSON(w, 404, map[string]any{"detail": "unknown job"}) },
			},
			expErr:   model.ErrNotFound,
			expCalls: 1,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			var calls atomic.Int32
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal("/api/jobs/job-1/status", r.URL.Path)
				assert.Equal(http.MethodGet, r.Method)
				n := int(calls.Add(1)) - 1
				if n >= len(tc.responses) {
					n = len(tc.responses) - 1
				}
				tc.responses[n](w)
			}))

			st, err := c.JobStatus(context.Background(), "job-1")

			assert.Equal(tc.expCalls, calls.Load())
			if tc.expErr != nil {
				assert.ErrorIs(err, tc.expErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(tc.expStatus, st)
		})
	}
}

func TestClientStatistics(t *testing.T) {
	gen := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/statistics", r.URL.Path)
		writeJSON(w, 200, map[string]any{
			"total_anomalies":    12,
			"open_anomalies":     4,
			"scanned_models":     3,
			"anomalies_by_model": map[string]int{"journal_ventes": 8},
			"generated_at":       gen,
		})
	}))

	stats, err := c.Statistics(context.Background())
	require.NoError(t, err)

	exp := &model.Statistics{
		TotalAnomalies:   12,
		OpenAnomalies:    4,
		ScannedModels:    3,
		AnomaliesByModel: map[string]int{"journal_ventes": 8},
		GeneratedAt:      gen,
	}
	assert.Equal(t, exp, stats)
}
