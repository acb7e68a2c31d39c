package entity

import "time"

type TransactionStatus string

const (
	TransactionStatusAuthorized TransactionStatus = "authorized"
	TransactionStatusCaptured   TransactionStatus = "captured"
	TransactionStatusSettled    TransactionStatus = "settled"
	TransactionStatusFailed     TransactionStatus = "failed"
)

const TransactionTypePayment = "payment"

type GatewayResponse struct {
	Gateway           string `json:"gateway"`
	TransactionID     string `json:"transactionId,omitempty"`
	ResponseCode      string `json:"responseCode,omitempty"`
	ResponseMessage   string `json:"responseMessage,omitempty"`
	AuthorizationCode string `json:"authorizationCode,omitempty"`
}

type Transaction struct {
	ID      string
	OrderID string
	UserID  string

	Type          string
	PaymentMethod string

	AmountMinor    int64
	FeesMinor      int64
	NetAmountMinor int64
	Currency       string

	Status  TransactionStatus
	Gateway GatewayResponse

	Revision int64

	CreatedAt   time.Time
	ProcessedAt *time.Time
	SettledAt   *time.Time
}

// Refundable reports whether funds have been captured.
func (t *Transaction) Refundable() bool {
	return t.Status == TransactionStatusCaptured || t.Status == TransactionStatusSettled
}

// Immutable reports whether the transaction reached a final state.
func (t *Transaction) Immutable() bool {
	return t.Status == TransactionStatusSettled || t.Status == TransactionStatusFailed
}

// RefundWindowStart is the instant the refund window is measured from:
// settlement, or capture while settlement is still outstanding.
func (t *Transaction) RefundWindowStart() time.Time {
	if t.SettledAt != nil {
		return *t.SettledAt
	}
	if t.ProcessedAt != nil {
		return *t.ProcessedAt
	}
	return t.CreatedAt
}
