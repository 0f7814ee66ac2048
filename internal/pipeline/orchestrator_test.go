package pipeline_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cortap/cortap-rpt/internal/client"
	"github.com/cortap/cortap-rpt/internal/config"
	"github.com/cortap/cortap-rpt/internal/pipeline"
	"github.com/cortap/cortap-rpt/internal/review"
	"github.com/cortap/cortap-rpt/internal/service"
	"github.com/cortap/cortap-rpt/internal/service/report/types"
	"github.com/cortap/cortap-rpt/internal/storage"
	st "github.com/cortap/cortap-rpt/internal/store"
	"github.com/cortap/cortap-rpt/internal/store/model"
	"github.com/cortap/cortap-rpt/internal/webhook"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"
)

const jobID = "rpt-20260101-120000-abcdefabcdef"

type fakeFetcher struct {
	controls []review.Control
	err      error
	block    bool
}

func (f *fakeFetcher) FetchProjectControls(ctx context.Context, projectID int64, _ string) (*client.ProjectControls, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return &client.ProjectControls{
		Project:  client.Project{ID: "33", Name: "Metro Transit"},
		Controls: f.controls,
	}, nil
}

type fakeRenderer struct {
	err   error
	panic bool
	empty bool
}

func (r *fakeRenderer) Render(ctx context.Context, data *types.ReportData) (*types.Document, error) {
	if r.panic {
		panic("template exploded")
	}
	if r.err != nil {
		return nil, r.err
	}
	if r.empty {
		return &types.Document{Format: types.ReportFormatCSV}, nil
	}
	svc, err := service.NewReportService(types.ReportFormatCSV)
	if err != nil {
		return nil, err
	}
	return svc.Render(ctx, data)
}

type recordingNotifier struct {
	mu   sync.Mutex
	jobs []model.ReportJob
}

func (n *recordingNotifier) Notify(_ context.Context, job model.ReportJob) webhook.DeliveryOutcome {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.jobs = append(n.jobs, job)
	return webhook.DeliveryOutcome{Status: model.CallbackStatusDelivered, Attempts: 1}
}

func (n *recordingNotifier) sent() []model.ReportJob {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]model.ReportJob{}, n.jobs...)
}

func legalControls() []review.Control {
	return []review.Control{
		{ID: "1", Name: "Legal: Authority", Status: "Complete", Comment: "Board resolution on file"},
		{ID: "2", Name: "Legal: Debarment", Status: "Complete", Comment: "Found deficient: no SAM check"},
		{ID: "3", Name: "Legal: Lobbying", Status: "Complete", Comment: "ok"},
		{ID: "4", Name: "Title VI: Notice", Status: "Not Applicable", Comment: ""},
	}
}

func processingJob() model.ReportJob {
	now := time.Now().UTC()
	return model.ReportJob{
		ID:          jobID,
		Status:      model.JobStatusProcessing,
		ProjectID:   33,
		ReportType:  model.ReportTypeDraftAudit,
		CallbackURL: "https://example.com/hook",
		RequestedBy: "user@example.com",
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   now.Add(time.Hour),
	}
}

var _ = Describe("orchestrator", Ordered, func() {
	var (
		store    st.Store
		gormDB   *gorm.DB
		blob     *storage.MemoryStore
		fetcher  *fakeFetcher
		renderer *fakeRenderer
		notifier *recordingNotifier
		opts     pipeline.Options
	)

	consolidator := review.NewConsolidator(review.DefaultMapper(), review.DefaultAreas(), review.DefaultRules())

	newOrchestrator := func(n pipeline.Notifier) *pipeline.Orchestrator {
		return pipeline.NewOrchestrator(store.Job(), fetcher, consolidator, renderer, blob, n, opts)
	}

	BeforeAll(func() {
		db, err := st.InitDB(config.NewDefault())
		Expect(err).To(BeNil())
		gormDB = db

		store = st.NewStore(db)
		Expect(store.InitialMigration(context.TODO())).To(Succeed())
	})

	AfterAll(func() {
		store.Close()
	})

	BeforeEach(func() {
		blob = storage.NewMemoryStore("https://blob.example.com")
		fetcher = &fakeFetcher{controls: legalControls()}
		renderer = &fakeRenderer{}
		notifier = &recordingNotifier{}
		opts = pipeline.Options{Timeout: 5 * time.Second, DownloadTTL: time.Hour}

		_, err := store.Job().Create(context.TODO(), processingJob())
		Expect(err).To(BeNil())
	})

	AfterEach(func() {
		gormDB.Exec("DELETE FROM report_jobs;")
	})

	It("completes the job and notifies once", func() {
		Expect(newOrchestrator(notifier).Run(context.TODO(), jobID, "token")).To(Succeed())

		job, err := store.Job().Get(context.TODO(), jobID)
		Expect(err).To(BeNil())
		Expect(job.Status).To(Equal(model.JobStatusCompleted))
		Expect(job.CompletedAt).NotTo(BeNil())
		Expect(job.Error).To(BeNil())
		Expect(job.Result).NotTo(BeNil())

		result := job.Result.Data
		Expect(result.DownloadURL).To(HavePrefix("https://blob.example.com/"))
		Expect(result.FileSize).To(BeNumerically(">", 0))
		Expect(result.Metadata.RecipientName).To(Equal("Metro Transit"))
		Expect(result.Metadata.ReviewAreas).To(Equal(21))
		Expect(result.Metadata.DeficiencyCount).To(Equal(1))
		Expect(result.Metadata.DeficiencyAreas).To(Equal([]string{review.AreaLegal}))
		Expect(result.Metadata.TotalControls).To(Equal(4))
		Expect(result.Metadata.Format).To(Equal("csv"))

		Expect(blob.Keys()).To(ConsistOf(result.DocumentKey, result.DataKey))
		_, contentType, ok := blob.Get(result.DocumentKey)
		Expect(ok).To(BeTrue())
		Expect(contentType).To(Equal(types.ReportFormatCSV.ContentType()))

		sent := notifier.sent()
		Expect(sent).To(HaveLen(1))
		Expect(sent[0].Status).To(Equal(model.JobStatusCompleted))
		Expect(sent[0].Result.Data.DownloadURL).To(Equal(result.DownloadURL))
	})

	It("fails with DATA_FETCH_ERROR when the fetch fails", func() {
		fetcher.err = errors.New("riskuity returned 401")

		Expect(newOrchestrator(notifier).Run(context.TODO(), jobID, "token")).To(Succeed())

		job, err := store.Job().Get(context.TODO(), jobID)
		Expect(err).To(BeNil())
		Expect(job.Status).To(Equal(model.JobStatusFailed))
		Expect(job.Error.Data.Code).To(Equal(model.ErrorCodeDataFetch))
		Expect(job.Error.Data.Details).To(HaveKeyWithValue("phase", pipeline.PhaseFetch))
		Expect(blob.Keys()).To(BeEmpty())
	})

	It("fails with RENDER_ERROR and sends no download url", func() {
		renderer.err = errors.New("bad template")

		Expect(newOrchestrator(notifier).Run(context.TODO(), jobID, "token")).To(Succeed())

		job, err := store.Job().Get(context.TODO(), jobID)
		Expect(err).To(BeNil())
		Expect(job.Status).To(Equal(model.JobStatusFailed))
		Expect(job.Result).To(BeNil())
		Expect(job.Error.Data.Code).To(Equal(model.ErrorCodeRender))
		Expect(job.Error.Data.Message).To(ContainSubstring("bad template"))

		sent := notifier.sent()
		Expect(sent).To(HaveLen(1))
		payload := webhook.BuildPayload(sent[0])
		Expect(payload.DownloadURL).To(BeEmpty())
		Expect(payload.Error).NotTo(BeNil())
		Expect(payload.Error.Code).To(Equal(model.ErrorCodeRender))
	})

	It("recovers a renderer panic", func() {
		renderer.panic = true

		Expect(newOrchestrator(notifier).Run(context.TODO(), jobID, "token")).To(Succeed())

		job, err := store.Job().Get(context.TODO(), jobID)
		Expect(err).To(BeNil())
		Expect(job.Status).To(Equal(model.JobStatusFailed))
		Expect(job.Error.Data.Code).To(Equal(model.ErrorCodeRender))
	})

	It("treats an empty document as a render failure", func() {
		renderer.empty = true

		Expect(newOrchestrator(notifier).Run(context.TODO(), jobID, "token")).To(Succeed())

		job, err := store.Job().Get(context.TODO(), jobID)
		Expect(err).To(BeNil())
		Expect(job.Error.Data.Code).To(Equal(model.ErrorCodeRender))
		Expect(blob.Keys()).To(BeEmpty())
	})

	It("fails with TIMEOUT when the deadline passes", func() {
		fetcher.block = true
		opts.Timeout = 50 * time.Millisecond

		Expect(newOrchestrator(notifier).Run(context.TODO(), jobID, "token")).To(Succeed())

		job, err := store.Job().Get(context.TODO(), jobID)
		Expect(err).To(BeNil())
		Expect(job.Status).To(Equal(model.JobStatusFailed))
		Expect(job.Error.Data.Code).To(Equal(model.ErrorCodeTimeout))
		Expect(notifier.sent()).To(HaveLen(1))
	})

	It("fails with TRANSFORM_ERROR on unmatched controls when asked to", func() {
		fetcher.controls = append(legalControls(), review.Control{ID: "9", Name: "Mystery: Control"})
		opts.FailOnUnmatched = true

		Expect(newOrchestrator(notifier).Run(context.TODO(), jobID, "token")).To(Succeed())

		job, err := store.Job().Get(context.TODO(), jobID)
		Expect(err).To(BeNil())
		Expect(job.Error.Data.Code).To(Equal(model.ErrorCodeTransform))
	})

	It("tolerates unmatched controls by default", func() {
		fetcher.controls = append(legalControls(), review.Control{ID: "9", Name: "Mystery: Control"})

		Expect(newOrchestrator(notifier).Run(context.TODO(), jobID, "token")).To(Succeed())

		job, err := store.Job().Get(context.TODO(), jobID)
		Expect(err).To(BeNil())
		Expect(job.Status).To(Equal(model.JobStatusCompleted))
		Expect(job.Result.Data.Metadata.UnmatchedControls).To(Equal(1))
	})

	It("writes one terminal state and one webhook under double dispatch", func() {
		o := newOrchestrator(notifier)

		var wg sync.WaitGroup
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				Expect(o.Run(context.TODO(), jobID, "token")).To(Succeed())
			}()
		}
		wg.Wait()

		Expect(notifier.sent()).To(HaveLen(1))
		job, err := store.Job().Get(context.TODO(), jobID)
		Expect(err).To(BeNil())
		Expect(job.Status).To(Equal(model.JobStatusCompleted))
	})

	It("ignores a job that is already terminal", func() {
		Expect(newOrchestrator(notifier).Run(context.TODO(), jobID, "token")).To(Succeed())
		Expect(newOrchestrator(notifier).Run(context.TODO(), jobID, "token")).To(Succeed())
		Expect(notifier.sent()).To(HaveLen(1))
	})

	It("ignores an unknown job", func() {
		Expect(newOrchestrator(notifier).Run(context.TODO(), "rpt-missing", "token")).To(Succeed())
		Expect(notifier.sent()).To(BeEmpty())
	})

	It("keeps the job completed when every callback attempt fails", func() {
		var calls atomic.Int64
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()
		Expect(gormDB.Model(&model.ReportJob{}).Where("id = ?", jobID).Update("callback_url", srv.URL).Error).To(Succeed())

		n := webhook.NewNotifier(webhook.NewSigner("secret"), store.Job(),
			webhook.WithMaxAttempts(5),
			webhook.WithInitialBackoff(time.Millisecond),
		)
		Expect(newOrchestrator(n).Run(context.TODO(), jobID, "token")).To(Succeed())

		Expect(calls.Load()).To(Equal(int64(5)))
		job, err := store.Job().Get(context.TODO(), jobID)
		Expect(err).To(BeNil())
		Expect(job.Status).To(Equal(model.JobStatusCompleted))
		Expect(job.Result.Data.DownloadURL).NotTo(BeEmpty())
		Expect(job.CallbackStatus).To(Equal(model.CallbackStatusFailed))
		Expect(job.CallbackAttempts).To(Equal(5))
		Expect(job.CallbackError).To(ContainSubstring(string(model.ErrorCodeCallbackExhausted)))
	})
})
