package service_test

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"time"

	"github.com/cortap/cortap-rpt/internal/config"
	"github.com/cortap/cortap-rpt/internal/service"
	"github.com/cortap/cortap-rpt/internal/store"
	"github.com/cortap/cortap-rpt/internal/store/model"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"
)

type fakeDispatcher struct {
	mu         sync.Mutex
	dispatched map[string]string
	err        error
}

func (d *fakeDispatcher) Dispatch(_ context.Context, jobID string, credential string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.dispatched[jobID] = credential
	return nil
}

var jobIDPattern = regexp.MustCompile(`^rpt-\d{8}-\d{6}-[0-9a-f]{12}$`)

var _ = Describe("report job service", Ordered, func() {
	var (
		s          store.Store
		gormdb     *gorm.DB
		dispatcher *fakeDispatcher
		svc        *service.ReportJobService
	)

	validRequest := func() service.CreateReportJobRequest {
		return service.CreateReportJobRequest{
			ProjectID:   33,
			ReportType:  model.ReportTypeDraftAudit,
			CallbackURL: "https://example.com/hook",
			RequestedBy: "auditor@example.com",
			Credential:  "token",
		}
	}

	BeforeAll(func() {
		db, err := store.InitDB(config.NewDefault())
		Expect(err).To(BeNil())

		s = store.NewStore(db)
		gormdb = db
		Expect(s.InitialMigration(context.TODO())).To(Succeed())
	})

	AfterAll(func() {
		s.Close()
	})

	BeforeEach(func() {
		dispatcher = &fakeDispatcher{dispatched: map[string]string{}}
		svc = service.NewReportJobService(s, dispatcher, 24*time.Hour)
	})

	AfterEach(func() {
		gormdb.Exec("DELETE FROM report_jobs;")
	})

	Context("create", func() {
		It("creates a processing job and dispatches it", func() {
			job, err := svc.CreateReportJob(context.TODO(), validRequest())
			Expect(err).To(BeNil())
			Expect(job.ID).To(MatchRegexp(jobIDPattern.String()))
			Expect(job.Status).To(Equal(model.JobStatusProcessing))
			Expect(job.ExpiresAt).To(BeTemporally("~", job.CreatedAt.Add(24*time.Hour), time.Second))
			Expect(dispatcher.dispatched).To(HaveKeyWithValue(job.ID, "token"))

			stored, err := s.Job().Get(context.TODO(), job.ID)
			Expect(err).To(BeNil())
			Expect(stored.RequestedBy).To(Equal("auditor@example.com"))
		})

		It("accepts a job without a callback url", func() {
			req := validRequest()
			req.CallbackURL = ""
			_, err := svc.CreateReportJob(context.TODO(), req)
			Expect(err).To(BeNil())
		})

		DescribeTable("rejects invalid requests",
			func(mutate func(*service.CreateReportJobRequest)) {
				req := validRequest()
				mutate(&req)
				_, err := svc.CreateReportJob(context.TODO(), req)

				var invalid *service.ErrInvalidRequest
				Expect(errors.As(err, &invalid)).To(BeTrue())
				Expect(dispatcher.dispatched).To(BeEmpty())
			},
			Entry("non positive project", func(r *service.CreateReportJobRequest) { r.ProjectID = 0 }),
			Entry("unknown report type", func(r *service.CreateReportJobRequest) { r.ReportType = "annual_report" }),
			Entry("missing requester", func(r *service.CreateReportJobRequest) { r.RequestedBy = "" }),
			Entry("relative callback", func(r *service.CreateReportJobRequest) { r.CallbackURL = "/hook" }),
			Entry("non http callback", func(r *service.CreateReportJobRequest) { r.CallbackURL = "ftp://example.com/hook" }),
		)

		It("fails the job with DISPATCH_ERROR when it cannot be queued", func() {
			dispatcher.err = errors.New("queue full")

			_, err := svc.CreateReportJob(context.TODO(), validRequest())
			var dispatchErr *service.ErrDispatchFailed
			Expect(errors.As(err, &dispatchErr)).To(BeTrue())

			job, err := s.Job().Get(context.TODO(), dispatchErr.JobID)
			Expect(err).To(BeNil())
			Expect(job.Status).To(Equal(model.JobStatusFailed))
			Expect(job.Error.Data.Code).To(Equal(model.ErrorCodeDispatch))
		})
	})

	Context("get", func() {
		It("returns the job to its requester", func() {
			created, err := svc.CreateReportJob(context.TODO(), validRequest())
			Expect(err).To(BeNil())

			job, err := svc.GetReportJob(context.TODO(), created.ID, "auditor@example.com")
			Expect(err).To(BeNil())
			Expect(job.ID).To(Equal(created.ID))
		})

		It("forbids another requester", func() {
			created, err := svc.CreateReportJob(context.TODO(), validRequest())
			Expect(err).To(BeNil())

			_, err = svc.GetReportJob(context.TODO(), created.ID, "someone@example.com")
			var forbidden *service.ErrReportJobForbidden
			Expect(errors.As(err, &forbidden)).To(BeTrue())
		})

		It("reports an unknown job as not found", func() {
			_, err := svc.GetReportJob(context.TODO(), "rpt-missing", "auditor@example.com")
			var notFound *service.ErrResourceNotFound
			Expect(errors.As(err, &notFound)).To(BeTrue())
		})
	})

	It("generates distinct ids within the same second", func() {
		at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
		a, b := service.NewJobID(at), service.NewJobID(at)
		Expect(a).To(HavePrefix("rpt-20260102-030405-"))
		Expect(a).NotTo(Equal(b))
	})
})
