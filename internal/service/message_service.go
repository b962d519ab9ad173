package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mauriciomholiveira/cobranca-api/internal/models"
	appErrors "github.com/mauriciomholiveira/cobranca-api/pkg/errors"
)

type messagePaymentRepository interface {
	FindDetailByID(ctx context.Context, id string) (*models.PaymentDetail, error)
	SetMessageFlag(ctx context.Context, id string, kind models.MessageKind) error
}

// MessagingOptions configures WhatsApp deep-link rendering.
type MessagingOptions struct {
	CountryCode   string
	LinkBaseURL   string
	InstituteName string
}

// MessageService renders WhatsApp charge messages and their deep links. The
// backend never contacts WhatsApp; the operator opens the link themselves.
type MessageService struct {
	payments messagePaymentRepository
	metrics  *MetricsService
	logger   *zap.Logger
	opts     MessagingOptions
	now      func() time.Time
}

// NewMessageService constructs the message service.
func NewMessageService(payments messagePaymentRepository, metrics *MetricsService, logger *zap.Logger, opts MessagingOptions) *MessageService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.CountryCode == "" {
		opts.CountryCode = "55"
	}
	if opts.LinkBaseURL == "" {
		opts.LinkBaseURL = "https://web.whatsapp.com/send"
	}
	return &MessageService{payments: payments, metrics: metrics, logger: logger, opts: opts, now: func() time.Time { return time.Now().UTC() }}
}

// Build renders the message of the given kind for a payment and records the
// send flag for pre-payment kinds.
func (s *MessageService) Build(ctx context.Context, paymentID string, kind models.MessageKind) (*models.PaymentMessage, error) {
	if !models.ValidMessageKind(kind) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown message kind")
	}

	payment, err := s.payments.FindDetailByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "payment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment")
	}

	if payment.ClientWhatsApp == "" {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "client has no whatsapp number")
	}
	if payment.Exempt() && kind != models.MessageKindReceipt {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "exempt payment has no charge to message")
	}
	if kind == models.MessageKindReceipt && payment.Status != models.PaymentStatusPago {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "payment is not settled")
	}
	if kind != models.MessageKindReceipt && payment.Status == models.PaymentStatusPago {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "payment is already settled")
	}

	daysLate := s.daysLate(payment.DueDate)
	text := s.renderText(payment, kind, daysLate)
	phone := NormalizePhone(payment.ClientWhatsApp, s.opts.CountryCode)
	link := s.opts.LinkBaseURL + "?phone=" + phone + "&text=" + url.QueryEscape(text)

	if kind != models.MessageKindReceipt {
		if err := s.payments.SetMessageFlag(ctx, paymentID, kind); err != nil {
			s.logger.Warn("failed to record message flag",
				zap.String("payment_id", paymentID), zap.String("kind", string(kind)), zap.Error(err))
		}
	}
	s.metrics.RecordMessageBuilt(string(kind))

	return &models.PaymentMessage{
		PaymentID: paymentID,
		Kind:      kind,
		Phone:     phone,
		Text:      text,
		Link:      link,
		DaysLate:  daysLate,
	}, nil
}

// MarkSent records that the send UI was triggered for a pre-payment message
// kind. Receipts carry no flag.
func (s *MessageService) MarkSent(ctx context.Context, paymentID string, kind models.MessageKind) error {
	if !models.ValidMessageKind(kind) || kind == models.MessageKindReceipt {
		return appErrors.Clone(appErrors.ErrValidation, "kind must be reminder, due_today or overdue")
	}
	if _, err := s.payments.FindDetailByID(ctx, paymentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "payment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment")
	}
	if err := s.payments.SetMessageFlag(ctx, paymentID, kind); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record message flag")
	}
	return nil
}

func (s *MessageService) daysLate(dueDate time.Time) int {
	days := int(s.now().Sub(dueDate).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

func (s *MessageService) renderText(payment *models.PaymentDetail, kind models.MessageKind, daysLate int) string {
	firstName := strings.SplitN(strings.TrimSpace(payment.ClientName), " ", 2)[0]
	amount := FormatBRL(payment.Amount)
	dueDate := payment.DueDate.Format("02/01/2006")

	var b strings.Builder
	switch kind {
	case models.MessageKindReminder:
		fmt.Fprintf(&b, "Olá, %s! Lembrete: a mensalidade de %s no valor de %s vence em %s.",
			firstName, payment.CourseName, amount, dueDate)
	case models.MessageKindDueToday:
		fmt.Fprintf(&b, "Olá, %s! A mensalidade de %s no valor de %s vence hoje (%s).",
			firstName, payment.CourseName, amount, dueDate)
	case models.MessageKindOverdue:
		if daysLate < 1 {
			daysLate = 1
		}
		unit := "dias"
		if daysLate == 1 {
			unit = "dia"
		}
		fmt.Fprintf(&b, "Olá, %s! A mensalidade de %s no valor de %s venceu em %s e está há %d %s em atraso.",
			firstName, payment.CourseName, amount, dueDate, daysLate, unit)
	case models.MessageKindReceipt:
		fmt.Fprintf(&b, "Olá, %s! Recebemos o pagamento da mensalidade de %s no valor de %s. Obrigado!",
			firstName, payment.CourseName, amount)
	}
	if s.opts.InstituteName != "" {
		fmt.Fprintf(&b, "\n\n%s", s.opts.InstituteName)
	}
	return b.String()
}

// NormalizePhone strips formatting and ensures the country prefix, so local
// numbers like (11) 98888-7777 become 5511988887777.
func NormalizePhone(raw, countryCode string) string {
	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	phone := digits.String()
	if phone == "" {
		return phone
	}
	// Local numbers carry at most 11 digits (DDD + 9-digit mobile); anything
	// longer already includes the country code.
	if len(phone) <= 11 {
		phone = countryCode + phone
	}
	return phone
}

// FormatBRL renders a decimal as Brazilian currency, e.g. R$ 1.150,00.
func FormatBRL(amount decimal.Decimal) string {
	fixed := amount.StringFixed(2)
	neg := strings.HasPrefix(fixed, "-")
	fixed = strings.TrimPrefix(fixed, "-")
	parts := strings.SplitN(fixed, ".", 2)
	intPart, fracPart := parts[0], parts[1]

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	out := "R$ " + b.String() + "," + fracPart
	if neg {
		out = "-" + out
	}
	return out
}
