package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cortap/cortap-rpt/internal/store"
	"github.com/cortap/cortap-rpt/internal/store/model"
	"github.com/cortap/cortap-rpt/pkg/log"
	"github.com/cortap/cortap-rpt/pkg/metrics"
	"github.com/sethvargo/go-retry"
)

const (
	defaultAttemptTimeout = 30 * time.Second
	defaultMaxAttempts    = 5
	defaultInitialBackoff = time.Second
)

// Annotator records the delivery outcome on the job.
type Annotator interface {
	Annotate(ctx context.Context, id string, field string, value any) error
}

type DeliveryOutcome struct {
	Status     string
	Attempts   int
	StatusCode int
	Err        error
}

func (o DeliveryOutcome) Delivered() bool {
	return o.Status == model.CallbackStatusDelivered
}

// permanentError marks a response the receiver will never accept.
type permanentError struct {
	statusCode int
}

func (e *permanentError) Error() string {
	return fmt.Sprintf("callback rejected with status %d", e.statusCode)
}

type NotifierOpts func(n *Notifier)

func WithHTTPClient(client *http.Client) NotifierOpts {
	return func(n *Notifier) {
		n.client = client
	}
}

func WithAttemptTimeout(timeout time.Duration) NotifierOpts {
	return func(n *Notifier) {
		n.attemptTimeout = timeout
	}
}

func WithMaxAttempts(attempts int) NotifierOpts {
	return func(n *Notifier) {
		n.maxAttempts = attempts
	}
}

func WithInitialBackoff(backoff time.Duration) NotifierOpts {
	return func(n *Notifier) {
		n.initialBackoff = backoff
	}
}

type Notifier struct {
	signer         *Signer
	annotator      Annotator
	client         *http.Client
	attemptTimeout time.Duration
	maxAttempts    int
	initialBackoff time.Duration
	now            func() time.Time
}

func NewNotifier(signer *Signer, annotator Annotator, opts ...NotifierOpts) *Notifier {
	n := &Notifier{
		signer:         signer,
		annotator:      annotator,
		client:         &http.Client{},
		attemptTimeout: defaultAttemptTimeout,
		maxAttempts:    defaultMaxAttempts,
		initialBackoff: defaultInitialBackoff,
		now:            time.Now,
	}
	for _, o := range opts {
		o(n)
	}
	if n.maxAttempts < 1 {
		n.maxAttempts = 1
	}
	return n
}

// Notify posts the terminal payload of job to its callback URL and records the
// outcome on the job. The job status itself is never changed.
func (n *Notifier) Notify(ctx context.Context, job model.ReportJob) DeliveryOutcome {
	tracer := log.NewDebugLogger("webhook").
		WithContext(ctx).
		Operation("notify").
		WithString("job_id", job.ID).
		WithString("status", string(job.Status)).
		Build()

	if job.CallbackURL == "" {
		outcome := DeliveryOutcome{Status: model.CallbackStatusSkipped}
		n.record(ctx, job.ID, outcome)
		tracer.Step("no_callback_url").Log()
		return outcome
	}

	body, err := json.Marshal(BuildPayload(job))
	if err != nil {
		outcome := DeliveryOutcome{Status: model.CallbackStatusFailed, Err: fmt.Errorf("encoding webhook payload: %w", err)}
		n.record(ctx, job.ID, outcome)
		tracer.Error(outcome.Err).Log()
		return outcome
	}

	outcome := DeliveryOutcome{}
	backoff := retry.WithMaxRetries(uint64(n.maxAttempts-1), retry.NewExponential(n.initialBackoff))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		outcome.Attempts++
		code, err := n.post(ctx, job.CallbackURL, body)
		outcome.StatusCode = code

		switch {
		case err != nil:
			tracer.Step("attempt_failed").WithInt("attempt", outcome.Attempts).WithParam("error", err.Error()).Log()
			return retry.RetryableError(err)
		case code >= 500:
			tracer.Step("attempt_failed").WithInt("attempt", outcome.Attempts).WithInt("status_code", code).Log()
			return retry.RetryableError(fmt.Errorf("callback returned status %d", code))
		case code >= 200 && code < 300:
			return nil
		default:
			return &permanentError{statusCode: code}
		}
	})

	if err != nil {
		outcome.Status = model.CallbackStatusFailed
		outcome.Err = err
		tracer.Error(err).WithInt("attempts", outcome.Attempts).Log()
	} else {
		outcome.Status = model.CallbackStatusDelivered
		tracer.Success().WithInt("attempts", outcome.Attempts).Log()
	}

	n.record(ctx, job.ID, outcome)
	return outcome
}

func (n *Notifier) post(ctx context.Context, url string, body []byte) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, n.attemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}

	// every attempt is signed with a fresh timestamp
	ts := n.now().Unix()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(TimestampHeader, strconv.FormatInt(ts, 10))
	req.Header.Set(SignatureHeader, n.signer.Header(ts, body))

	resp, err := n.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	return resp.StatusCode, nil
}

func (n *Notifier) record(ctx context.Context, jobID string, outcome DeliveryOutcome) {
	metrics.IncreaseWebhookDeliveriesMetric(outcome.Status)

	fields := []annotation{
		{store.AnnotationCallbackStatus, outcome.Status},
		{store.AnnotationCallbackAttempts, outcome.Attempts},
	}
	if outcome.Err != nil {
		fields = append(fields, annotation{store.AnnotationCallbackError, callbackError(outcome.Err)})
	}

	for _, f := range fields {
		if err := n.annotator.Annotate(ctx, jobID, f.name, f.value); err != nil {
			log.NewDebugLogger("webhook").
				WithContext(ctx).
				Operation("annotate").
				WithString("job_id", jobID).
				WithString("field", f.name).
				Build().
				Error(err).
				Log()
		}
	}
}

type annotation struct {
	name  string
	value any
}

func callbackError(err error) string {
	var permanent *permanentError
	if errors.As(err, &permanent) {
		return permanent.Error()
	}
	return fmt.Sprintf("%s: %v", model.ErrorCodeCallbackExhausted, err)
}
