package webhook_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cortap/cortap-rpt/internal/store"
	"github.com/cortap/cortap-rpt/internal/store/model"
	"github.com/cortap/cortap-rpt/internal/webhook"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type annotations struct {
	mu     sync.Mutex
	fields map[string]any
}

func (a *annotations) Annotate(_ context.Context, _ string, field string, value any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fields[field] = value
	return nil
}

func (a *annotations) get(field string) any {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fields[field]
}

func completedJob(url string) model.ReportJob {
	return model.ReportJob{
		ID:          "rpt-20260101-120000-abcdefabcdef",
		Status:      model.JobStatusCompleted,
		ProjectID:   33,
		ReportType:  model.ReportTypeDraftAudit,
		CallbackURL: url,
		Result: model.MakeJSONField(model.JobResult{
			DownloadURL: "https://blob.example.com/doc.xlsx?sig=1",
			ExpiresAt:   time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC),
			FileSize:    2048,
			Metadata:    model.ResultMetadata{ReviewAreas: 21, DeficiencyAreas: []string{}},
		}),
	}
}

var _ = Describe("notifier", func() {
	var (
		annotator *annotations
		signer    *webhook.Signer
	)

	BeforeEach(func() {
		annotator = &annotations{fields: map[string]any{}}
		signer = webhook.NewSigner("shared-secret")
	})

	newNotifier := func() *webhook.Notifier {
		return webhook.NewNotifier(signer, annotator,
			webhook.WithInitialBackoff(time.Millisecond),
			webhook.WithAttemptTimeout(time.Second),
		)
	}

	It("delivers a signed payload", func() {
		var (
			mu        sync.Mutex
			body      []byte
			header    http.Header
			callCount int32
		)
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&callCount, 1)
			mu.Lock()
			body, _ = io.ReadAll(r.Body)
			header = r.Header.Clone()
			mu.Unlock()
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		outcome := newNotifier().Notify(context.TODO(), completedJob(server.URL))
		mu.Lock()
		defer mu.Unlock()
		Expect(outcome.Delivered()).To(BeTrue())
		Expect(outcome.Attempts).To(Equal(1))
		Expect(atomic.LoadInt32(&callCount)).To(Equal(int32(1)))

		ts, err := strconv.ParseInt(header.Get(webhook.TimestampHeader), 10, 64)
		Expect(err).To(BeNil())
		Expect(header.Get(webhook.SignatureHeader)).To(HavePrefix("sha256="))
		Expect(signer.Verify(ts, body, header.Get(webhook.SignatureHeader))).To(BeTrue())

		payload := map[string]any{}
		Expect(json.Unmarshal(body, &payload)).To(Succeed())
		Expect(payload).To(HaveKeyWithValue("job_id", "rpt-20260101-120000-abcdefabcdef"))
		Expect(payload).To(HaveKeyWithValue("status", "completed"))
		Expect(payload).To(HaveKeyWithValue("project_id", BeNumerically("==", 33)))
		Expect(payload).To(HaveKeyWithValue("download_url", "https://blob.example.com/doc.xlsx?sig=1"))
		Expect(payload).To(HaveKey("expires_at"))
		Expect(payload).To(HaveKey("metadata"))
		Expect(payload).ToNot(HaveKey("error"))

		Expect(annotator.get(store.AnnotationCallbackStatus)).To(Equal(model.CallbackStatusDelivered))
		Expect(annotator.get(store.AnnotationCallbackAttempts)).To(Equal(1))
	})

	It("retries 5xx responses and gives up after five attempts", func() {
		var callCount int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&callCount, 1)
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		outcome := newNotifier().Notify(context.TODO(), completedJob(server.URL))
		Expect(outcome.Delivered()).To(BeFalse())
		Expect(outcome.Attempts).To(Equal(5))
		Expect(atomic.LoadInt32(&callCount)).To(Equal(int32(5)))

		Expect(annotator.get(store.AnnotationCallbackStatus)).To(Equal(model.CallbackStatusFailed))
		Expect(annotator.get(store.AnnotationCallbackAttempts)).To(Equal(5))
		Expect(annotator.get(store.AnnotationCallbackError)).To(HavePrefix("CALLBACK_EXHAUSTED"))
	})

	It("succeeds when a retry is accepted", func() {
		var callCount int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&callCount, 1) < 3 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		}))
		defer server.Close()

		outcome := newNotifier().Notify(context.TODO(), completedJob(server.URL))
		Expect(outcome.Delivered()).To(BeTrue())
		Expect(outcome.Attempts).To(Equal(3))
	})

	It("signs every attempt with a fresh timestamp", func() {
		var (
			mu         sync.Mutex
			signatures []string
		)
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			ts, _ := strconv.ParseInt(r.Header.Get(webhook.TimestampHeader), 10, 64)
			mu.Lock()
			defer mu.Unlock()
			if signer.Verify(ts, body, r.Header.Get(webhook.SignatureHeader)) {
				signatures = append(signatures, r.Header.Get(webhook.SignatureHeader))
			}
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		newNotifier().Notify(context.TODO(), completedJob(server.URL))

		mu.Lock()
		defer mu.Unlock()
		Expect(signatures).To(HaveLen(5))
	})

	It("does not retry a 4xx response", func() {
		var callCount int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&callCount, 1)
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		outcome := newNotifier().Notify(context.TODO(), completedJob(server.URL))
		Expect(outcome.Delivered()).To(BeFalse())
		Expect(outcome.StatusCode).To(Equal(http.StatusNotFound))
		Expect(atomic.LoadInt32(&callCount)).To(Equal(int32(1)))
		Expect(annotator.get(store.AnnotationCallbackStatus)).To(Equal(model.CallbackStatusFailed))
		Expect(annotator.get(store.AnnotationCallbackError)).To(ContainSubstring("404"))
	})

	It("retries transport errors", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		url := server.URL
		server.Close()

		outcome := webhook.NewNotifier(signer, annotator,
			webhook.WithInitialBackoff(time.Millisecond),
			webhook.WithMaxAttempts(3),
		).Notify(context.TODO(), completedJob(url))
		Expect(outcome.Delivered()).To(BeFalse())
		Expect(outcome.Attempts).To(Equal(3))
		Expect(outcome.Err).ToNot(BeNil())
	})

	It("sends the error block for a failed job", func() {
		bodies := make(chan []byte, 1)
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			b, _ := io.ReadAll(r.Body)
			bodies <- b
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		job := model.ReportJob{
			ID:          "rpt-1",
			Status:      model.JobStatusFailed,
			ProjectID:   7,
			ReportType:  model.ReportTypeRecipientInfo,
			CallbackURL: server.URL,
			Error:       model.MakeJSONField(*model.NewJobError(model.ErrorCodeRender, "template failed")),
		}
		Expect(newNotifier().Notify(context.TODO(), job).Delivered()).To(BeTrue())

		payload := map[string]any{}
		Expect(json.Unmarshal(<-bodies, &payload)).To(Succeed())
		Expect(payload).ToNot(HaveKey("download_url"))
		Expect(payload).To(HaveKeyWithValue("error", map[string]any{"code": "RENDER_ERROR", "message": "template failed"}))
	})

	It("skips jobs without a callback url", func() {
		outcome := newNotifier().Notify(context.TODO(), completedJob(""))
		Expect(outcome.Status).To(Equal(model.CallbackStatusSkipped))
		Expect(annotator.get(store.AnnotationCallbackStatus)).To(Equal(model.CallbackStatusSkipped))
	})
})
