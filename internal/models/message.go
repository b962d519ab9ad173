package models

// MessageKind selects a WhatsApp message template.
type MessageKind string

const (
	MessageKindReminder MessageKind = "reminder"
	MessageKindDueToday MessageKind = "due_today"
	MessageKindOverdue  MessageKind = "overdue"
	MessageKindReceipt  MessageKind = "receipt"
)

// ValidMessageKind reports whether the kind is one of the four templates.
func ValidMessageKind(kind MessageKind) bool {
	switch kind {
	case MessageKindReminder, MessageKindDueToday, MessageKindOverdue, MessageKindReceipt:
		return true
	}
	return false
}

// PaymentMessage is a rendered WhatsApp message plus its deep link. The
// backend never sends it; the link is opened by the operator's browser.
type PaymentMessage struct {
	PaymentID string      `json:"payment_id"`
	Kind      MessageKind `json:"kind"`
	Phone     string      `json:"phone"`
	Text      string      `json:"text"`
	Link      string      `json:"link"`
	DaysLate  int         `json:"days_late"`
}
