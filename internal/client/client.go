// Package client talks to the download backend: the REST collection and
// command endpoints, and the websocket progress channel.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/veranemoloko/download-panel/internal/config"
	"github.com/veranemoloko/download-panel/internal/domain"
	errpkg "github.com/veranemoloko/download-panel/internal/errors"
)

const (
	userAgent       = "download-panel"
	requestIDHeader = "X-Request-ID"
	maxErrorBody    = 4 << 10
)

// Client is the HTTP transport to the backend. Reads go through a retrying
// client; commands are sent exactly once so a timed-out create never turns
// into two jobs.
type Client struct {
	baseURL string
	liveURL string
	reads   *http.Client
	writes  *http.Client
	logger  *slog.Logger
}

// New creates a client for the backend described by cfg.
func New(cfg *config.Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "client")

	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient.Timeout = cfg.HTTPTimeout
	retryClient.RetryMax = cfg.ReadRetryMax
	retryClient.RetryWaitMin = 100 * time.Millisecond
	retryClient.RetryWaitMax = 2 * time.Second
	retryClient.Logger = logger
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Client{
		baseURL: strings.TrimSuffix(cfg.BackendURL, "/"),
		liveURL: cfg.LiveChannelURL(),
		reads:   retryClient.StandardClient(),
		writes:  &http.Client{Timeout: cfg.HTTPTimeout},
		logger:  logger,
	}
}

// ListJobs fetches the active job collection.
func (c *Client) ListJobs(ctx context.Context) ([]domain.Job, error) {
	var resp domain.JobsListResponse
	if err := c.do(ctx, c.reads, "list jobs", http.MethodGet, "/jobs", nil, &resp); err != nil {
		return nil, err
	}
	if resp.Jobs == nil {
		return []domain.Job{}, nil
	}
	return resp.Jobs, nil
}

// ListHistory fetches the history collection. Both the enveloped and the bare
// array form are accepted.
func (c *Client) ListHistory(ctx context.Context) ([]domain.HistoryEntry, error) {
	var raw json.RawMessage
	if err := c.do(ctx, c.reads, "list history", http.MethodGet, "/history", nil, &raw); err != nil {
		return nil, err
	}

	entries := []domain.HistoryEntry{}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			return nil, fmt.Errorf("list history: failed to decode response: %w", err)
		}
		return entries, nil
	}

	var resp domain.HistoryResponse
	if err := json.Unmarshal(trimmed, &resp); err != nil {
		return nil, fmt.Errorf("list history: failed to decode response: %w", err)
	}
	if resp.History != nil {
		entries = resp.History
	}
	return entries, nil
}

// JobFiles fetches the output file listing of a finished job.
func (c *Client) JobFiles(ctx context.Context, jobID string) ([]domain.FileDescriptor, error) {
	var resp domain.FilesResponse
	path := "/jobs/" + url.PathEscape(jobID) + "/files"
	if err := c.do(ctx, c.reads, "list job files", http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Files == nil {
		return []domain.FileDescriptor{}, nil
	}
	return resp.Files, nil
}

// CreateJob submits a new job and returns the record the backend created.
func (c *Client) CreateJob(ctx context.Context, req domain.CreateJobRequest) (domain.Job, error) {
	var resp domain.JobResponse
	if err := c.do(ctx, c.writes, "create job", http.MethodPost, "/jobs", req, &resp); err != nil {
		return domain.Job{}, err
	}
	if resp.Job.ID == "" {
		return domain.Job{}, &errpkg.TransportError{
			Op:      "create job",
			Message: "response carried no job id",
			Err:     errpkg.ErrMalformedPayload,
		}
	}
	return resp.Job, nil
}

// CancelJob asks the backend to stop a job. A nil error only means the
// request was accepted.
func (c *Client) CancelJob(ctx context.Context, jobID string) error {
	var resp domain.CancelResponse
	path := "/jobs/" + url.PathEscape(jobID)
	if err := c.do(ctx, c.writes, "cancel job", http.MethodDelete, path, nil, &resp); err != nil {
		return err
	}
	if !resp.Acknowledged() {
		return &errpkg.TransportError{Op: "cancel job", Message: "backend did not acknowledge the request"}
	}
	return nil
}

// GetSettings fetches the backend settings.
func (c *Client) GetSettings(ctx context.Context) (domain.AppSettings, error) {
	var settings domain.AppSettings
	if err := c.do(ctx, c.reads, "get settings", http.MethodGet, "/settings", nil, &settings); err != nil {
		return domain.AppSettings{}, err
	}
	return settings, nil
}

// UpdateSettings replaces the backend settings and returns what was stored.
func (c *Client) UpdateSettings(ctx context.Context, settings domain.AppSettings) (domain.AppSettings, error) {
	var stored domain.AppSettings
	if err := c.do(ctx, c.writes, "update settings", http.MethodPut, "/settings", settings, &stored); err != nil {
		return domain.AppSettings{}, err
	}
	return stored, nil
}

// Providers lists the metadata sources and stores the backend supports.
func (c *Client) Providers(ctx context.Context) (domain.ProvidersResponse, error) {
	var resp domain.ProvidersResponse
	if err := c.do(ctx, c.reads, "list providers", http.MethodGet, "/providers", nil, &resp); err != nil {
		return domain.ProvidersResponse{}, err
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, hc *http.Client, op, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: failed to marshal request body: %w", op, err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("%s: failed to create request: %w", op, err)
	}

	requestID := uuid.NewString()
	req.Header.Set(requestIDHeader, requestID)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := hc.Do(req)
	if err != nil {
		c.logger.Warn("backend request failed", "op", op, "method", method, "path", path, "request_id", requestID, "error", err)
		return &errpkg.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	c.logger.Debug("backend request completed",
		"op", op,
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"request_id", requestID,
		"duration", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &errpkg.TransportError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(resp),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &errpkg.TransportError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Message:    "failed to decode response",
			Err:        fmt.Errorf("%w: %w", errpkg.ErrMalformedPayload, err),
		}
	}
	return nil
}

// errorMessage extracts a readable message from an error response. The
// backend reports errors as {"detail": ...}; some proxies use {"error": ...}.
func errorMessage(resp *http.Response) string {
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(bytes.TrimSpace(data)) == 0 {
		return http.StatusText(resp.StatusCode)
	}

	var payload struct {
		Detail json.RawMessage `json:"detail"`
		Error  string          `json:"error"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return strings.TrimSpace(string(data))
	}

	if len(payload.Detail) > 0 {
		var detail string
		if err := json.Unmarshal(payload.Detail, &detail); err == nil {
			return detail
		}
		return string(payload.Detail)
	}
	if payload.Error != "" {
		return payload.Error
	}
	return http.StatusText(resp.StatusCode)
}
