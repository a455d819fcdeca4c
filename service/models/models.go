package models

import (
	"time"

	"github.com/pitabwire/frame"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/werachapchap/service-payments/service/utility"
)

type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentSuccessful PaymentStatus = "successful"
	PaymentFailed     PaymentStatus = "failed"
)

func (s PaymentStatus) IsTerminal() bool {
	switch s {
	case PaymentSuccessful, PaymentFailed:
		return true
	case PaymentPending:
		return false
	default:
		return false
	}
}

type PaymentMethod string

const (
	PaymentMethodMpesa  PaymentMethod = "mpesa"
	PaymentMethodCard   PaymentMethod = "card"
	PaymentMethodWallet PaymentMethod = "wallet"
)

type WithdrawalStatus string

const (
	WithdrawalPending    WithdrawalStatus = "pending"
	WithdrawalProcessing WithdrawalStatus = "processing"
	WithdrawalCompleted  WithdrawalStatus = "completed"
	WithdrawalFailed     WithdrawalStatus = "failed"
)

func (s WithdrawalStatus) IsTerminal() bool {
	switch s {
	case WithdrawalCompleted, WithdrawalFailed:
		return true
	case WithdrawalPending, WithdrawalProcessing:
		return false
	default:
		return false
	}
}

type TaskStatus string

const (
	TaskPaymentPending TaskStatus = "payment_pending"
	TaskNew            TaskStatus = "new"
	TaskAssigned       TaskStatus = "assigned"
	TaskInProgress     TaskStatus = "in_progress"
	TaskCompleted      TaskStatus = "completed"
	TaskCancelled      TaskStatus = "cancelled"
)

// IsPayable reports whether a task still accepts charges.
func (s TaskStatus) IsPayable() bool {
	switch s {
	case TaskPaymentPending, TaskNew:
		return true
	case TaskAssigned, TaskInProgress, TaskCompleted, TaskCancelled:
		return false
	default:
		return false
	}
}

// Payment is one charge attempt against a task. Rows are never deleted.
type Payment struct {
	frame.BaseModel

	TaskID string `gorm:"type:varchar(50);index"`
	UserID string `gorm:"type:varchar(50);index"`

	Amount        decimal.Decimal `gorm:"type:numeric(10,2)" json:"amount"`
	PaymentMethod PaymentMethod   `gorm:"type:varchar(10)"`

	TransactionRef    string            `gorm:"type:varchar(255);uniqueIndex"`
	MpesaReceipt      string            `gorm:"type:text"`
	CheckoutRequestID string            `gorm:"type:varchar(255);index"`
	MerchantRequestID string            `gorm:"type:varchar(255)"`
	PhoneNumber       string            `gorm:"type:varchar(15)"`
	Status            PaymentStatus     `gorm:"type:varchar(20);index"`
	ResultCode        string            `gorm:"type:varchar(20)"`
	ResultDesc        string            `gorm:"type:text"`
	Extra             datatypes.JSONMap `json:"extra"`
}

func (model *Payment) HasCheckout() bool {
	return model.CheckoutRequestID != ""
}

type WithdrawalRequest struct {
	frame.BaseModel

	UserID      string           `gorm:"type:varchar(50);index"`
	Amount      decimal.Decimal  `gorm:"type:numeric(10,2)" json:"amount"`
	PhoneNumber string           `gorm:"type:varchar(15)"`
	Status      WithdrawalStatus `gorm:"type:varchar(20);index"`

	// Reference is sent as the OriginatorConversationID.
	Reference     string `gorm:"type:varchar(255);uniqueIndex"`
	TransactionID string `gorm:"type:varchar(255);index"`
	ResultDesc    string `gorm:"type:text"`
	ProcessedBy   string `gorm:"type:varchar(50)"`
	ProcessedAt   *time.Time
}

func (model *WithdrawalRequest) IsProcessed() bool {
	return utility.IsValidTime(model.ProcessedAt)
}

// Task is the slice of the marketplace task the payment core reads and mutates.
type Task struct {
	frame.BaseModel

	Title          string          `gorm:"type:varchar(100)"`
	PostedBy       string          `gorm:"type:varchar(50);index"`
	Budget         decimal.Decimal `gorm:"type:numeric(10,2)"`
	Status         TaskStatus      `gorm:"type:varchar(20);index"`
	TotalPaid      decimal.Decimal `gorm:"type:numeric(10,2)"`
	TransactionFee decimal.Decimal `gorm:"type:numeric(10,2)"`
}

// RunnerPayout is what the runner receives once the task is settled.
func (model *Task) RunnerPayout() decimal.Decimal {
	return model.TotalPaid.Sub(model.TransactionFee)
}

type Wallet struct {
	frame.BaseModel

	UserID  string          `gorm:"type:varchar(50);uniqueIndex"`
	Balance decimal.Decimal `gorm:"type:numeric(12,2)"`
}

// Notification is the job handed to the notification service.
type Notification struct {
	UserID   string            `json:"user_id"`
	Template string            `json:"template"`
	Context  map[string]string `json:"context"`
}

const (
	TemplatePaymentSuccessful   = "payment_successful"
	TemplatePaymentFailed       = "payment_failed"
	TemplateWithdrawalCompleted = "withdrawal_completed"
	TemplateWithdrawalFailed    = "withdrawal_failed"
)

// AllModels lists every table owned by this service, in migration order.
func AllModels() []any {
	return []any{&Task{}, &Wallet{}, &Payment{}, &WithdrawalRequest{}}
}
