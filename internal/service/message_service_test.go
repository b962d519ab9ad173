package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mauriciomholiveira/cobranca-api/internal/models"
	appErrors "github.com/mauriciomholiveira/cobranca-api/pkg/errors"
)

type mockMessagePaymentRepo struct {
	details map[string]models.PaymentDetail
	flags   map[string]models.MessageKind
}

func (m *mockMessagePaymentRepo) FindDetailByID(ctx context.Context, id string) (*models.PaymentDetail, error) {
	if d, ok := m.details[id]; ok {
		return &d, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockMessagePaymentRepo) SetMessageFlag(ctx context.Context, id string, kind models.MessageKind) error {
	if m.flags == nil {
		m.flags = make(map[string]models.MessageKind)
	}
	m.flags[id] = kind
	return nil
}

func messageDetail(status models.PaymentStatus, amount string, dueDate time.Time) models.PaymentDetail {
	return models.PaymentDetail{
		Payment: models.Payment{
			ID:       "pay-1",
			MonthRef: "2026-08",
			Amount:   dec(amount),
			DueDate:  dueDate,
			Status:   status,
		},
		ClientName:     "Ana Souza",
		ClientWhatsApp: "(11) 98888-7777",
		CourseName:     "Violino",
		ProfessorName:  "Carlos Lima",
	}
}

func newMessageService(repo *mockMessagePaymentRepo, now time.Time) *MessageService {
	svc := NewMessageService(repo, nil, zap.NewNop(), MessagingOptions{
		CountryCode:   "55",
		LinkBaseURL:   "https://web.whatsapp.com/send",
		InstituteName: "Escola de Música Harmonia",
	})
	svc.now = func() time.Time { return now }
	return svc
}

func TestMessageBuildReminder(t *testing.T) {
	due := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)
	repo := &mockMessagePaymentRepo{details: map[string]models.PaymentDetail{
		"pay-1": messageDetail(models.PaymentStatusPendente, "150.00", due),
	}}
	svc := newMessageService(repo, due.AddDate(0, 0, -3))

	msg, err := svc.Build(context.Background(), "pay-1", models.MessageKindReminder)
	require.NoError(t, err)
	assert.Equal(t, "5511988887777", msg.Phone)
	assert.Contains(t, msg.Text, "Olá, Ana!")
	assert.Contains(t, msg.Text, "R$ 150,00")
	assert.Contains(t, msg.Text, "10/08/2026")
	assert.Contains(t, msg.Text, "Escola de Música Harmonia")
	assert.True(t, strings.HasPrefix(msg.Link, "https://web.whatsapp.com/send?phone=5511988887777&text="))
	assert.Equal(t, 0, msg.DaysLate)
	assert.Equal(t, models.MessageKindReminder, repo.flags["pay-1"])
}

func TestMessageBuildOverdueCountsDays(t *testing.T) {
	due := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)
	repo := &mockMessagePaymentRepo{details: map[string]models.PaymentDetail{
		"pay-1": messageDetail(models.PaymentStatusAtrasado, "150.00", due),
	}}
	svc := newMessageService(repo, due.AddDate(0, 0, 5))

	msg, err := svc.Build(context.Background(), "pay-1", models.MessageKindOverdue)
	require.NoError(t, err)
	assert.Equal(t, 5, msg.DaysLate)
	assert.Contains(t, msg.Text, "5 dias em atraso")
}

func TestMessageBuildOverdueSingularDay(t *testing.T) {
	due := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)
	repo := &mockMessagePaymentRepo{details: map[string]models.PaymentDetail{
		"pay-1": messageDetail(models.PaymentStatusAtrasado, "150.00", due),
	}}
	svc := newMessageService(repo, due.AddDate(0, 0, 1))

	msg, err := svc.Build(context.Background(), "pay-1", models.MessageKindOverdue)
	require.NoError(t, err)
	assert.Contains(t, msg.Text, "1 dia em atraso")
}

func TestMessageBuildReceiptRequiresSettled(t *testing.T) {
	due := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)
	repo := &mockMessagePaymentRepo{details: map[string]models.PaymentDetail{
		"pay-1": messageDetail(models.PaymentStatusPendente, "150.00", due),
	}}
	svc := newMessageService(repo, due)

	_, err := svc.Build(context.Background(), "pay-1", models.MessageKindReceipt)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestMessageBuildReceiptForSettledPayment(t *testing.T) {
	due := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)
	repo := &mockMessagePaymentRepo{details: map[string]models.PaymentDetail{
		"pay-1": messageDetail(models.PaymentStatusPago, "150.00", due),
	}}
	svc := newMessageService(repo, due)

	msg, err := svc.Build(context.Background(), "pay-1", models.MessageKindReceipt)
	require.NoError(t, err)
	assert.Contains(t, msg.Text, "Recebemos o pagamento")
	// Receipts do not touch the reminder flags.
	assert.Empty(t, repo.flags)
}

func TestMessageBuildSkipsExemptPayments(t *testing.T) {
	due := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)
	repo := &mockMessagePaymentRepo{details: map[string]models.PaymentDetail{
		"pay-1": messageDetail(models.PaymentStatusPendente, "0", due),
	}}
	svc := newMessageService(repo, due)

	_, err := svc.Build(context.Background(), "pay-1", models.MessageKindReminder)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestMessageBuildRejectsSettledForReminder(t *testing.T) {
	due := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)
	repo := &mockMessagePaymentRepo{details: map[string]models.PaymentDetail{
		"pay-1": messageDetail(models.PaymentStatusPago, "150.00", due),
	}}
	svc := newMessageService(repo, due)

	_, err := svc.Build(context.Background(), "pay-1", models.MessageKindReminder)
	require.Error(t, err)
}

func TestMessageBuildUnknownKind(t *testing.T) {
	repo := &mockMessagePaymentRepo{}
	svc := newMessageService(repo, time.Now())

	_, err := svc.Build(context.Background(), "pay-1", models.MessageKind("carrier_pigeon"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestMessageBuildRequiresWhatsAppNumber(t *testing.T) {
	due := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)
	detail := messageDetail(models.PaymentStatusPendente, "150.00", due)
	detail.ClientWhatsApp = ""
	repo := &mockMessagePaymentRepo{details: map[string]models.PaymentDetail{"pay-1": detail}}
	svc := newMessageService(repo, due)

	_, err := svc.Build(context.Background(), "pay-1", models.MessageKindReminder)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestMessageMarkSent(t *testing.T) {
	due := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)
	repo := &mockMessagePaymentRepo{details: map[string]models.PaymentDetail{
		"pay-1": messageDetail(models.PaymentStatusPendente, "150.00", due),
	}}
	svc := newMessageService(repo, due)

	require.NoError(t, svc.MarkSent(context.Background(), "pay-1", models.MessageKindOverdue))
	assert.Equal(t, models.MessageKindOverdue, repo.flags["pay-1"])
}

func TestMessageMarkSentRejectsReceipt(t *testing.T) {
	repo := &mockMessagePaymentRepo{}
	svc := newMessageService(repo, time.Now())

	err := svc.MarkSent(context.Background(), "pay-1", models.MessageKindReceipt)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.flags)
}

func TestMessageMarkSentUnknownPayment(t *testing.T) {
	repo := &mockMessagePaymentRepo{}
	svc := newMessageService(repo, time.Now())

	err := svc.MarkSent(context.Background(), "missing", models.MessageKindReminder)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
