package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cortap/cortap-rpt/internal/review"
	"github.com/cortap/cortap-rpt/pkg/log"
	"github.com/cortap/cortap-rpt/pkg/requestid"
	"github.com/pkg/errors"
	"github.com/sethvargo/go-retry"
)

const (
	CorrelationHeader = "X-Correlation-ID"

	defaultRiskuityTimeout = 30 * time.Second
	defaultPageSize        = 1000
	defaultMaxRetries      = 3
	defaultRetryBackoff    = time.Second
	maxRetryAfter          = time.Minute
)

// APIError is returned when Riskuity answers with a non 2xx status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("riskuity returned status %d: %s", e.StatusCode, e.Body)
}

func (e *APIError) transient() bool {
	switch e.StatusCode {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

type Project struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type ProjectControls struct {
	Project  Project
	Controls []review.Control
}

// flexibleID accepts ids sent either as JSON strings or numbers.
type flexibleID string

func (f *flexibleID) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexibleID(s)
		return nil
	}
	if string(b) == "null" {
		return nil
	}
	*f = flexibleID(b)
	return nil
}

func (f flexibleID) String() string {
	return string(f)
}

type projectControlItem struct {
	ID      flexibleID `json:"id"`
	Control struct {
		ID   flexibleID `json:"id"`
		Name string     `json:"name"`
	} `json:"control"`
	Assessment *struct {
		Status       string `json:"status"`
		Comments     string `json:"comments"`
		ReviewStatus string `json:"review_status"`
	} `json:"assessment"`
	Project *struct {
		ID   flexibleID `json:"id"`
		Name string     `json:"name"`
	} `json:"project"`
}

type projectControlsPage struct {
	Items  []projectControlItem `json:"items"`
	Total  int                  `json:"total"`
	Offset int                  `json:"offset"`
	Limit  int                  `json:"limit"`
}

type RiskuityOpts func(c *RiskuityClient)

func WithHTTPClient(httpClient *http.Client) RiskuityOpts {
	return func(c *RiskuityClient) {
		c.httpClient = httpClient
	}
}

func WithPageSize(size int) RiskuityOpts {
	return func(c *RiskuityClient) {
		c.pageSize = size
	}
}

func WithMaxRetries(retries int) RiskuityOpts {
	return func(c *RiskuityClient) {
		c.maxRetries = retries
	}
}

func WithRetryBackoff(backoff time.Duration) RiskuityOpts {
	return func(c *RiskuityClient) {
		c.retryBackoff = backoff
	}
}

// RiskuityClient reads project controls from the Riskuity API. The caller's
// bearer credential is forwarded on every request and never stored.
type RiskuityClient struct {
	baseURL      string
	httpClient   *http.Client
	pageSize     int
	maxRetries   int
	retryBackoff time.Duration
}

func NewRiskuityClient(baseURL string, timeout time.Duration, opts ...RiskuityOpts) *RiskuityClient {
	if timeout == 0 {
		timeout = defaultRiskuityTimeout
	}
	c := &RiskuityClient{
		baseURL:      strings.TrimRight(baseURL, "/"),
		httpClient:   &http.Client{Timeout: timeout},
		pageSize:     defaultPageSize,
		maxRetries:   defaultMaxRetries,
		retryBackoff: defaultRetryBackoff,
	}
	for _, o := range opts {
		o(c)
	}
	if c.pageSize <= 0 {
		c.pageSize = defaultPageSize
	}
	if c.maxRetries < 1 {
		c.maxRetries = 1
	}
	return c
}

// FetchProjectControls walks every page of the project's controls.
func (c *RiskuityClient) FetchProjectControls(ctx context.Context, projectID int64, credential string) (*ProjectControls, error) {
	tracer := log.NewDebugLogger("riskuity").
		WithContext(ctx).
		Operation("fetch_project_controls").
		WithInt64("project_id", projectID).
		Build()

	out := &ProjectControls{Controls: []review.Control{}}
	offset := 0
	for {
		page, err := c.fetchPage(ctx, projectID, credential, offset)
		if err != nil {
			tracer.Error(err).WithInt("offset", offset).Log()
			return nil, err
		}

		for _, item := range page.Items {
			if out.Project.Name == "" && item.Project != nil {
				out.Project = Project{ID: item.Project.ID.String(), Name: item.Project.Name}
			}
			out.Controls = append(out.Controls, item.toControl())
		}
		tracer.Step("page_fetched").WithInt("offset", offset).WithInt("items", len(page.Items)).WithInt("total", page.Total).Log()

		offset += len(page.Items)
		if len(page.Items) == 0 || offset >= page.Total {
			break
		}
	}

	if out.Project.ID == "" {
		out.Project.ID = strconv.FormatInt(projectID, 10)
	}
	tracer.Success().WithInt("controls", len(out.Controls)).Log()
	return out, nil
}

func (item projectControlItem) toControl() review.Control {
	c := review.Control{
		ID:   item.Control.ID.String(),
		Name: item.Control.Name,
	}
	if item.Assessment != nil {
		c.Status = item.Assessment.Status
		c.Comment = item.Assessment.Comments
		c.StatusCode = item.Assessment.ReviewStatus
	}
	return c
}

func (c *RiskuityClient) fetchPage(ctx context.Context, projectID int64, credential string, offset int) (*projectControlsPage, error) {
	endpoint := fmt.Sprintf("%s/projects/project_controls/%d", c.baseURL, projectID)
	query := url.Values{}
	query.Set("limit", strconv.Itoa(c.pageSize))
	query.Set("offset", strconv.Itoa(offset))

	body, err := c.get(ctx, endpoint+"?"+query.Encode(), credential)
	if err != nil {
		return nil, err
	}

	page := &projectControlsPage{}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		// some deployments answer with a bare array
		if err := json.Unmarshal(trimmed, &page.Items); err != nil {
			return nil, errors.Wrap(err, "failed to decode project controls")
		}
		page.Total = offset + len(page.Items)
		return page, nil
	}
	if err := json.Unmarshal(trimmed, page); err != nil {
		return nil, errors.Wrap(err, "failed to decode project controls")
	}
	if page.Total == 0 {
		page.Total = offset + len(page.Items)
	}
	return page, nil
}

// get performs a GET with retries on transport errors, 429 and 5xx gateway
// errors. A 429 waits for Retry-After when the header is present.
func (c *RiskuityClient) get(ctx context.Context, endpoint string, credential string) ([]byte, error) {
	var (
		body       []byte
		retryAfter time.Duration
	)

	exp := retry.WithMaxRetries(uint64(c.maxRetries-1), retry.NewExponential(c.retryBackoff))
	backoff := retry.BackoffFunc(func() (time.Duration, bool) {
		next, stop := exp.Next()
		if stop {
			return 0, true
		}
		if retryAfter > 0 {
			next, retryAfter = retryAfter, 0
		}
		return next, false
	})

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return errors.Wrap(err, "failed to create request")
		}
		req.Header.Set("Authorization", "Bearer "+credential)
		req.Header.Set("Accept", "application/json")
		if id := requestid.FromContext(ctx); id != "" {
			req.Header.Set(CorrelationHeader, id)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return retry.RetryableError(errors.Wrap(err, "failed to call riskuity"))
		}
		defer func() {
			_ = resp.Body.Close()
		}()

		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return retry.RetryableError(errors.Wrap(err, "failed to read response body"))
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			apiErr := &APIError{StatusCode: resp.StatusCode, Body: truncate(string(b), 512)}
			if !apiErr.transient() {
				return apiErr
			}
			if resp.StatusCode == http.StatusTooManyRequests {
				retryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
			}
			return retry.RetryableError(apiErr)
		}

		body = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

func parseRetryAfter(value string) time.Duration {
	seconds, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || seconds <= 0 {
		return 0
	}
	d := time.Duration(seconds) * time.Second
	if d > maxRetryAfter {
		return maxRetryAfter
	}
	return d
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
