package service

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mauriciomholiveira/cobranca-api/internal/models"
)

type mockExportPaymentRepo struct {
	payments []models.PaymentDetail
	pages    []models.PaymentFilter
}

func (m *mockExportPaymentRepo) List(ctx context.Context, filter models.PaymentFilter) ([]models.PaymentDetail, int, error) {
	m.pages = append(m.pages, filter)
	start := (filter.Page - 1) * filter.PageSize
	if start >= len(m.payments) {
		return nil, len(m.payments), nil
	}
	end := start + filter.PageSize
	if end > len(m.payments) {
		end = len(m.payments)
	}
	return m.payments[start:end], len(m.payments), nil
}

func exportDetail(i int) models.PaymentDetail {
	return models.PaymentDetail{
		Payment: models.Payment{
			ID:       fmt.Sprintf("pay-%03d", i),
			MonthRef: "2026-08",
			Amount:   dec("150.00"),
			DueDate:  time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC),
			Status:   models.PaymentStatusPendente,
		},
		ClientName:    fmt.Sprintf("Aluno %03d", i),
		CourseName:    "Violino",
		ProfessorName: "Carlos Lima",
	}
}

func TestMonthStatementCoversEveryPage(t *testing.T) {
	repo := &mockExportPaymentRepo{}
	for i := 0; i < 230; i++ {
		repo.payments = append(repo.payments, exportDetail(i))
	}
	svc := NewExportService(repo, &mockMonthGenerator{}, zap.NewNop())

	file, err := svc.MonthStatement(context.Background(), "2026-08", "", ExportFormatCSV)
	require.NoError(t, err)
	require.Len(t, repo.pages, 2, "expected the export to drain a second page")
	assert.Equal(t, 1, repo.pages[0].Page)
	assert.Equal(t, 2, repo.pages[1].Page)

	// Header + 230 rows + footer.
	lines := bytes.Split(bytes.TrimRight(file.Data, "\n"), []byte("\n"))
	assert.Len(t, lines, 232)
	footer := string(lines[len(lines)-1])
	assert.Contains(t, footer, "Total: 230")
	assert.Contains(t, footer, "R$ 34.500,00")
}

func TestMonthStatementRejectsUnknownFormat(t *testing.T) {
	svc := NewExportService(&mockExportPaymentRepo{}, &mockMonthGenerator{}, zap.NewNop())

	_, err := svc.MonthStatement(context.Background(), "2026-08", "", ExportFormat("xlsx"))
	require.Error(t, err)
}
