package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mauriciomholiveira/cobranca-api/internal/models"
	appErrors "github.com/mauriciomholiveira/cobranca-api/pkg/errors"
	"github.com/mauriciomholiveira/cobranca-api/pkg/export"
)

type exportPaymentRepository interface {
	List(ctx context.Context, filter models.PaymentFilter) ([]models.PaymentDetail, int, error)
}

// ExportFormat selects the statement file format.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// ExportFile is a rendered statement ready to stream to the client.
type ExportFile struct {
	FileName    string
	ContentType string
	Data        []byte
}

var statementHeaders = []string{"Aluno", "Curso", "Professor", "Competência", "Vencimento", "Valor", "Status", "Pago em"}

// exportPageSize is the repository page size used while draining a month.
const exportPageSize = 200

// ExportService renders month statements as CSV or PDF.
type ExportService struct {
	payments  exportPaymentRepository
	generator monthGenerator
	csv       *export.CSVExporter
	pdf       *export.PDFExporter
	logger    *zap.Logger
}

// NewExportService constructs the export service.
func NewExportService(payments exportPaymentRepository, generator monthGenerator, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		payments:  payments,
		generator: generator,
		csv:       export.NewCSVExporter(),
		pdf:       export.NewPDFExporter(),
		logger:    logger,
	}
}

// MonthStatement renders the full payment listing of a billing period.
func (s *ExportService) MonthStatement(ctx context.Context, monthRef, professorID string, format ExportFormat) (*ExportFile, error) {
	monthRef, err := models.ParseMonthRef(monthRef)
	if err != nil {
		return nil, err
	}
	if _, err := s.generator.EnsureMonth(ctx, monthRef); err != nil {
		return nil, err
	}

	// Drain every page: a statement must cover the whole period, so keep
	// fetching until the repository has no more rows for the filter.
	var payments []models.PaymentDetail
	for page := 1; ; page++ {
		batch, total, err := s.payments.List(ctx, models.PaymentFilter{
			MonthRef:    monthRef,
			ProfessorID: professorID,
			Page:        page,
			PageSize:    exportPageSize,
			SortBy:      "client_name",
		})
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list payments for export")
		}
		payments = append(payments, batch...)
		if len(batch) == 0 || len(payments) >= total {
			break
		}
	}

	dataset := export.Dataset{Headers: statementHeaders}
	total := decimal.Zero
	received := decimal.Zero
	for _, payment := range payments {
		paidAt := ""
		if payment.PaidAt != nil {
			paidAt = payment.PaidAt.Format("02/01/2006")
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Aluno":       payment.ClientName,
			"Curso":       payment.CourseName,
			"Professor":   payment.ProfessorName,
			"Competência": payment.MonthRef,
			"Vencimento":  payment.DueDate.Format("02/01/2006"),
			"Valor":       FormatBRL(payment.Amount),
			"Status":      string(payment.Status),
			"Pago em":     paidAt,
		})
		total = total.Add(payment.Amount)
		if payment.Status == models.PaymentStatusPago {
			received = received.Add(payment.Amount)
		}
	}
	dataset.Footer = map[string]string{
		"Aluno": fmt.Sprintf("Total: %d", len(payments)),
		"Valor": FormatBRL(total),
		"Pago em": FormatBRL(received),
	}

	switch format {
	case ExportFormatCSV:
		data, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv statement")
		}
		return &ExportFile{
			FileName:    fmt.Sprintf("mensalidades_%s.csv", strings.ReplaceAll(monthRef, "-", "_")),
			ContentType: "text/csv",
			Data:        data,
		}, nil
	case ExportFormatPDF:
		data, err := s.pdf.Render(dataset, fmt.Sprintf("Mensalidades %s", monthRef))
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf statement")
		}
		return &ExportFile{
			FileName:    fmt.Sprintf("mensalidades_%s.pdf", strings.ReplaceAll(monthRef, "-", "_")),
			ContentType: "application/pdf",
			Data:        data,
		}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
}
