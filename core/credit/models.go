package credit

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/trezcool/masomo-credits/core"
)

// Consumption outcomes
const (
	OutcomeSuccess           = "success"
	OutcomeInsufficientFunds = "insufficient_funds"
)

// Payment methods
const (
	PaymentCard         = "card"
	PaymentMobileMoney  = "mobile_money"
	PaymentBankTransfer = "bank_transfer"
	PaymentCash         = "cash"
	PaymentFree         = "free"
)

// Document categories
const (
	CategoryFinance        = "finance"
	CategoryIdentity       = "identity"
	CategoryAcademic       = "academic"
	CategoryAdministrative = "administrative"
)

var PaymentMethods = []string{PaymentCard, PaymentMobileMoney, PaymentBankTransfer, PaymentCash, PaymentFree}

// Balance is the credit account of one owner (a school/tenant).
// Current == Purchased - Consumed and Current >= 0 always hold.
type Balance struct {
	Owner     string    `json:"owner"`
	Current   int64     `json:"current"`
	Purchased int64     `json:"purchased"`
	Consumed  int64     `json:"consumed"`
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

// Package is a purchasable bundle of credits.
type Package struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Currency    string          `json:"currency"`
	Credits     int64           `json:"credits"`
	IsActive    bool            `json:"is_active"`
}

// CostEntry is the credit cost of one document type.
type CostEntry struct {
	DocumentType string `json:"document_type"`
	Cost         int64  `json:"cost"`
	Category     string `json:"category"`
}

// Transaction records a completed purchase.
type Transaction struct {
	ID            string          `json:"id"`
	Owner         string          `json:"owner"`
	PackageID     string          `json:"package_id"`
	Credits       int64           `json:"credits"`
	Price         decimal.Decimal `json:"price"`
	Currency      string          `json:"currency"`
	PaymentMethod string          `json:"payment_method"`
	CreatedAt     time.Time       `json:"created_at"` // UTC
}

// UsageEntry records a document generation attempt that reached the ledger.
type UsageEntry struct {
	ID           string    `json:"id"`
	Owner        string    `json:"owner"`
	DocumentType string    `json:"document_type"`
	Debited      int64     `json:"debited"`
	Outcome      string    `json:"outcome"`
	CreatedAt    time.Time `json:"created_at"` // UTC
}

// Receipt is the result of a successful purchase.
type Receipt struct {
	Balance     Balance     `json:"balance"`
	Transaction Transaction `json:"transaction"`
}

// Consumption is the result of a successful document generation request.
type Consumption struct {
	Balance Balance    `json:"balance"`
	Usage   UsageEntry `json:"usage"`
}

// NewPurchase contains information needed to buy a credit package.
type NewPurchase struct {
	PackageID     string `json:"package_id" validate:"required,notblank,max=64"`
	PaymentMethod string `json:"payment_method" validate:"required,paymentmethod"`
	ReceiptEmail  string `json:"receipt_email" validate:"omitempty,email"`
}

func (np *NewPurchase) Validate(validate *validator.Validate) error {
	np.PackageID = core.CleanString(np.PackageID)
	np.PaymentMethod = core.CleanString(np.PaymentMethod, true /* lower */)
	np.ReceiptEmail = core.CleanString(np.ReceiptEmail, true /* lower */)
	return validate.Struct(np)
}

// NewConsumption contains information needed to request a document generation.
type NewConsumption struct {
	DocumentType string `json:"document_type" validate:"required,max=64,alphanum_"`
}

func (nc *NewConsumption) Validate(validate *validator.Validate) error {
	nc.DocumentType = core.CleanString(nc.DocumentType, true /* lower */)
	return validate.Struct(nc)
}
