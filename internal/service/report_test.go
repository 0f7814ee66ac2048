package service_test

import (
	"context"

	"github.com/cortap/cortap-rpt/internal/review"
	"github.com/cortap/cortap-rpt/internal/service"
	"github.com/cortap/cortap-rpt/internal/service/report/types"
	"github.com/cortap/cortap-rpt/internal/store/model"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type emptyRenderer struct{}

func (emptyRenderer) Render(*types.ReportData) ([]byte, error) { return nil, nil }
func (emptyRenderer) SupportedFormat() types.ReportFormat { return types.ReportFormatHTML }

var _ = Describe("report service", func() {
	var data *types.ReportData

	BeforeEach(func() {
		c := review.NewConsolidator(review.DefaultMapper(), review.DefaultAreas(), review.DefaultRules())
		consolidation, err := c.Consolidate([]review.Control{{Name: "Legal: L1", Comment: "ok"}})
		Expect(err).To(BeNil())
		data = &types.ReportData{
			JobID:         "rpt-1",
			Type:          model.ReportTypeDraftAudit,
			Project:       types.Project{ID: 33, Name: "Metro Transit"},
			Consolidation: consolidation,
		}
	})

	DescribeTable("renders every built-in format",
		func(format types.ReportFormat) {
			svc, err := service.NewReportService(format)
			Expect(err).To(BeNil())

			doc, err := svc.Render(context.TODO(), data)
			Expect(err).To(BeNil())
			Expect(doc.Format).To(Equal(format))
			Expect(doc.ContentType).To(Equal(format.ContentType()))
			Expect(doc.Size()).To(BeNumerically(">", 0))
		},
		Entry("xlsx", types.ReportFormatXLSX),
		Entry("csv", types.ReportFormatCSV),
		Entry("html", types.ReportFormatHTML),
	)

	It("rejects an unknown format", func() {
		_, err := service.NewReportService("pdf")
		Expect(err).NotTo(BeNil())
	})

	It("treats an empty document as an error", func() {
		svc, err := service.NewReportService(types.ReportFormatHTML, emptyRenderer{})
		Expect(err).To(BeNil())

		_, err = svc.Render(context.TODO(), data)
		Expect(err).To(MatchError(ContainSubstring("empty document")))
	})

	It("stops on a cancelled context", func() {
		svc, err := service.NewReportService(types.ReportFormatCSV)
		Expect(err).To(BeNil())

		ctx, cancel := context.WithCancel(context.TODO())
		cancel()
		_, err = svc.Render(ctx, data)
		Expect(err).To(MatchError(context.Canceled))
	})
})
