package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/slok/opwatch/internal/backoffice"
	"github.com/slok/opwatch/internal/log"
	"github.com/slok/opwatch/internal/model"
)

const (
	defaultTimeout    = 2 * time.Minute
	defaultMaxRetries = 3
	defaultRetryBase  = 250 * time.Millisecond
	maxErrorBody      = 64 * 1024
)

// ClientConfig is the configuration for the back office HTTP client.
type ClientConfig struct {
	// BaseURL is the back office API root (e.g. "https://backoffice.example.com").
	BaseURL string
	// Token is sent as a bearer token when set.
	Token string
	// HTTPClient is the HTTP client used for the requests.
	HTTPClient *http.Client
	// MaxRetries is the number of retries of idempotent reads on transient failures. Negative disables them.
	MaxRetries int
	// RetryBase is the first retry wait, it doubles on every attempt.
	RetryBase time.Duration
	Logger    log.Logger
}

func (c *ClientConfig) defaults() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("base URL must be absolute")
	}
	c.BaseURL = strings.TrimSuffix(c.BaseURL, "/")

	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: defaultTimeout}
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryBase <= 0 {
		c.RetryBase = defaultRetryBase
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "httpclient.Client"})
	return nil
}

// Client is the back office JSON API client.
//
// Only reads (job status and statistics) are retried, triggers are never replayed because they
// are not idempotent.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	maxRetries uint64
	retryBase  time.Duration
	logger     log.Logger
}

// NewClient returns a new back office HTTP client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Client{
		baseURL:    cfg.BaseURL,
		token:      cfg.Token,
		httpClient: cfg.HTTPClient,
		maxRetries: uint64(cfg.MaxRetries),
		retryBase:  cfg.RetryBase,
		logger:     cfg.Logger,
	}, nil
}

var _ backoffice.Client = &Client{}

type jobStartedJSON struct {
	JobID string `json:"job_id"`
}

func (c *Client) TriggerScan(ctx context.Context, subjectID string) (*model.ScanResult, error) {
	if subjectID == "" {
		return nil, fmt.Errorf("subject id is required: %w", model.ErrNotValid)
	}

	var raw map[string]any
	path := fmt.Sprintf("/api/models/%s/scan", url.PathEscape(subjectID))
	if err := c.do(ctx, http.MethodPost, path, nil, &raw); err != nil {
		return nil, fmt.Errorf("could not trigger scan: %w", err)
	}

	res := &model.ScanResult{Details: map[string]any{}}
	for k, v := range raw {
		if k == "anomalies_found" {
			n, ok := v.(float64)
			if !ok {
				return nil, fmt.Errorf("invalid anomalies_found value %v: %w", v, model.ErrNotValid)
			}
			res.AnomaliesFound = int(n)
			continue
		}
		res.Details[k] = v
	}

	return res, nil
}

func (c *Client) StartJob(ctx context.Context, kind model.TaskKind, req model.JobRequest) (string, error) {
	var path string
	switch kind {
	case model.TaskKindCleanup:
		path = "/api/cleanup"
	case model.TaskKindValidation:
		path = "/api/validation"
	default:
		return "", fmt.Errorf("%q is not a job kind: %w", kind, model.ErrNotValid)
	}

	var resp jobStartedJSON
	if err := c.do(ctx, http.MethodPost, path, req, &resp); err != nil {
		return "", fmt.Errorf("could not start %s job: %w", kind, err)
	}
	if resp.JobID == "" {
		return "", fmt.Errorf("missing job id on %s job start response: %w", kind, model.ErrNotValid)
	}

	return resp.JobID, nil
}

func (c *Client) JobStatus(ctx context.Context, jobID string) (*model.JobStatus, error) {
	if jobID == "" {
		return nil, fmt.Errorf("job id is required: %w", model.ErrNotValid)
	}

	var st model.JobStatus
	path := fmt.Sprintf("/api/jobs/%s/status", url.PathEscape(jobID))
	if err := c.get(ctx, path, &st); err != nil {
		return nil, fmt.Errorf("could not get job %q status: %w", jobID, err)
	}
	if err := st.Validate(); err != nil {
		return nil, fmt.Errorf("invalid job %q status: %w", jobID, err)
	}

	return &st, nil
}

func (c *Client) Statistics(ctx context.Context) (*model.Statistics, error) {
	var stats model.Statistics
	if err := c.get(ctx, "/api/statistics", &stats); err != nil {
		return nil, fmt.Errorf("could not get statistics: %w", err)
	}

	return &stats, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	backoff := retry.WithMaxRetries(c.maxRetries, retry.NewExponential(c.retryBase))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := c.do(ctx, http.MethodGet, path, nil, out)
		if errors.Is(err, model.ErrUnavailable) {
			c.logger.Debugf("Transient failure on GET %s, retrying: %s", path, err)
			return retry.RetryableError(err)
		}
		return err
	})
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("could not encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: no response from server: %s", model.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return classify(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("could not decode response: %w", err)
	}

	return nil
}

// classify maps an HTTP error response to the model errors.
func classify(resp *http.Response) error {
	msg := errorMessage(resp)
	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", model.ErrUnauthorized, msg)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: server error (%d): %s", model.ErrUnavailable, resp.StatusCode, msg)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", model.ErrNotFound, msg)
	default:
		return fmt.Errorf("request rejected (%d): %s", resp.StatusCode, msg)
	}
}

// errorMessage gets the server message from the usual error payload fields, falling back to the raw body.
func errorMessage(resp *http.Response) string {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err == nil {
		for _, k := range []string{"detail", "error", "message"} {
			if s, ok := payload[k].(string); ok && s != "" {
				return s
			}
		}
	}

	if s := strings.TrimSpace(string(data)); s != "" {
		return s
	}
	return http.StatusText(resp.StatusCode)
}
