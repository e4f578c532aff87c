// Package jobstore is the HTTP client for the external job store service.
// The job store owns job records; this client reads them and writes status
// and result updates on behalf of the runner.
package jobstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"

	"github.com/factharbor/verify-cli/internal/model"
	"github.com/factharbor/verify-cli/internal/resilience"
)

// Client defines the job store operations the runner depends on.
type Client interface {
	// GetJob fetches a single job by ID.
	GetJob(ctx context.Context, jobID string) (*model.Job, error)
	// ListJobs fetches one page of jobs.
	ListJobs(ctx context.Context, page, pageSize int) (*JobPage, error)
	// ListAllJobs walks every page and returns the concatenated jobs.
	ListAllJobs(ctx context.Context, pageSize int) ([]model.Job, error)
	// UpdateStatus writes a status/progress update for a job.
	UpdateStatus(ctx context.Context, jobID string, update StatusUpdate) error
	// PutResult writes the serialized analysis result for a job.
	PutResult(ctx context.Context, jobID string, resultJSON string) error
}

// JobPage is one page of the job listing.
type JobPage struct {
	Jobs       []model.Job `json:"jobs"`
	Pagination Pagination  `json:"pagination"`
}

// Pagination describes the listing cursor state.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	TotalPages int `json:"totalPages"`
}

// StatusUpdate is the payload for a job status write. Level and Message
// feed the job's progress log.
type StatusUpdate struct {
	Status   model.JobStatus `json:"status"`
	Progress int             `json:"progress"`
	Level    string          `json:"level,omitempty"`
	Message  string          `json:"message,omitempty"`
}

// Option configures the job store client.
type Option func(*httpClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithAdminKey sets the X-Admin-Key header sent on internal writes.
func WithAdminKey(key string) Option {
	return func(c *httpClient) {
		c.adminKey = key
	}
}

type httpClient struct {
	baseURL  string
	adminKey string
	http     *http.Client
}

// NewClient creates a job store client for the given base URL.
func NewClient(baseURL string, opts ...Option) Client {
	c := &httpClient{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// retryDo executes a request with exponential backoff on transient
// failures. The request body, if any, must be rebuildable, so callers pass
// the raw payload and the request is constructed per attempt.
func (c *httpClient) retryDo(ctx context.Context, method, reqURL string, payload []byte, internal bool) ([]byte, int, error) {
	const maxAttempts = 3
	backoff := 1 * time.Second

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
		if err != nil {
			return nil, 0, eris.Wrap(err, "jobstore: create request")
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if internal && c.adminKey != "" {
			req.Header.Set("X-Admin-Key", c.adminKey)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			if attempt < maxAttempts {
				select {
				case <-ctx.Done():
					return nil, 0, ctx.Err()
				case <-time.After(backoff):
				}
				backoff *= 2
				continue
			}
			return nil, 0, lastErr
		}

		respBody, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, resp.StatusCode, eris.Wrap(readErr, "jobstore: read response body")
		}

		if resilience.IsTransientHTTPStatus(resp.StatusCode) && attempt < maxAttempts {
			lastErr = eris.Errorf("jobstore: status %d: %s", resp.StatusCode, string(respBody))
			select {
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			continue
		}

		return respBody, resp.StatusCode, nil
	}

	return nil, 0, lastErr
}

func (c *httpClient) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	reqURL := fmt.Sprintf("%s/v1/jobs/%s", c.baseURL, url.PathEscape(jobID))

	body, statusCode, err := c.retryDo(ctx, http.MethodGet, reqURL, nil, false)
	if err != nil {
		return nil, eris.Wrap(err, "jobstore: get job")
	}
	if statusCode == http.StatusNotFound {
		return nil, eris.Errorf("jobstore: job %s not found", jobID)
	}
	if statusCode != http.StatusOK {
		return nil, eris.Errorf("jobstore: get job: unexpected status %d: %s", statusCode, string(body))
	}

	var job model.Job
	if err := json.Unmarshal(body, &job); err != nil {
		return nil, eris.Wrap(err, "jobstore: unmarshal job")
	}
	return &job, nil
}

func (c *httpClient) ListJobs(ctx context.Context, page, pageSize int) (*JobPage, error) {
	q := url.Values{}
	q.Set("page", fmt.Sprintf("%d", page))
	q.Set("pageSize", fmt.Sprintf("%d", pageSize))
	reqURL := fmt.Sprintf("%s/v1/jobs?%s", c.baseURL, q.Encode())

	body, statusCode, err := c.retryDo(ctx, http.MethodGet, reqURL, nil, false)
	if err != nil {
		return nil, eris.Wrap(err, "jobstore: list jobs")
	}
	if statusCode != http.StatusOK {
		return nil, eris.Errorf("jobstore: list jobs: unexpected status %d: %s", statusCode, string(body))
	}

	var result JobPage
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "jobstore: unmarshal job page")
	}
	return &result, nil
}

func (c *httpClient) ListAllJobs(ctx context.Context, pageSize int) ([]model.Job, error) {
	if pageSize <= 0 {
		pageSize = 50
	}

	var all []model.Job
	page := 1
	for {
		result, err := c.ListJobs(ctx, page, pageSize)
		if err != nil {
			return nil, err
		}
		all = append(all, result.Jobs...)

		if page >= result.Pagination.TotalPages || len(result.Jobs) == 0 {
			return all, nil
		}
		page++
	}
}

func (c *httpClient) UpdateStatus(ctx context.Context, jobID string, update StatusUpdate) error {
	payload, err := json.Marshal(update)
	if err != nil {
		return eris.Wrap(err, "jobstore: marshal status update")
	}

	reqURL := fmt.Sprintf("%s/internal/v1/jobs/%s/status", c.baseURL, url.PathEscape(jobID))
	body, statusCode, err := c.retryDo(ctx, http.MethodPut, reqURL, payload, true)
	if err != nil {
		return eris.Wrap(err, "jobstore: update status")
	}
	if statusCode != http.StatusOK && statusCode != http.StatusNoContent {
		return eris.Errorf("jobstore: update status: unexpected status %d: %s", statusCode, string(body))
	}
	return nil
}

func (c *httpClient) PutResult(ctx context.Context, jobID string, resultJSON string) error {
	payload, err := json.Marshal(map[string]string{"resultJson": resultJSON})
	if err != nil {
		return eris.Wrap(err, "jobstore: marshal result")
	}

	reqURL := fmt.Sprintf("%s/internal/v1/jobs/%s/result", c.baseURL, url.PathEscape(jobID))
	body, statusCode, err := c.retryDo(ctx, http.MethodPut, reqURL, payload, true)
	if err != nil {
		return eris.Wrap(err, "jobstore: put result")
	}
	if statusCode != http.StatusOK && statusCode != http.StatusNoContent {
		return eris.Errorf("jobstore: put result: unexpected status %d: %s", statusCode, string(body))
	}
	return nil
}
